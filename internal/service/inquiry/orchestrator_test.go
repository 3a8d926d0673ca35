package inquiry

import (
	"context"
	"errors"
	"testing"

	"resolvego/internal/ai"
	"resolvego/internal/models"
)

type fakeStore struct {
	inq       *models.Inquiry
	getErr    error
	appendErr func(msg models.Message) error
	appended  []models.Message
	statuses  []models.InquiryStatus
	statusErr error
}

func (f *fakeStore) GetInquiry(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.inq, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if f.appendErr != nil {
		if err := f.appendErr(msg); err != nil {
			return nil, err
		}
	}
	f.appended = append(f.appended, msg)
	saved := msg
	saved.ID = int64(len(f.appended))
	return &saved, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, inquiryID int64, status models.InquiryStatus) error {
	f.statuses = append(f.statuses, status)
	return f.statusErr
}

type fakeResolver struct {
	out   *ai.ResolveInquiryOutput
	err   error
	calls int
}

func (f *fakeResolver) ResolveInquiry(ctx context.Context, in ai.ResolveInquiryInput) (*ai.ResolveInquiryOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeReplier struct {
	out    *ai.InquiryReplyOutput
	err    error
	calls  int
	lastIn ai.InquiryReplyInput
}

func (f *fakeReplier) GenerateInquiryReply(ctx context.Context, in ai.InquiryReplyInput) (*ai.InquiryReplyOutput, error) {
	f.calls++
	f.lastIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func testInquiry() *models.Inquiry {
	return &models.Inquiry{ID: 7, UserID: 3, Title: "Router keeps rebooting", Status: models.StatusOpen}
}

func TestTurnResolvesWithSteps(t *testing.T) {
	store := &fakeStore{inq: testInquiry()}
	resolver := &fakeResolver{out: &ai.ResolveInquiryOutput{
		IsResolved:        true,
		ResolutionSteps:   []string{"Unplug the router", "Wait ten seconds and plug it back in"},
		ResolutionSummary: "If it still reboots, reply here and we'll replace the unit.",
	}}
	replier := &fakeReplier{}
	o := NewOrchestrator(store, resolver, replier)

	result, err := o.HandleCustomerMessage(context.Background(), 3, 7, "It restarted again this morning")
	if err != nil {
		t.Fatalf("HandleCustomerMessage: %v", err)
	}
	want := "1. Unplug the router\n2. Wait ten seconds and plug it back in\n\nIf it still reboots, reply here and we'll replace the unit."
	if result.AssistantMessage.Content != want {
		t.Fatalf("unexpected reply:\n%q\nwant:\n%q", result.AssistantMessage.Content, want)
	}
	if !result.WasResolved || result.Failed {
		t.Fatalf("unexpected flags: %+v", result)
	}
	if len(store.statuses) != 1 || store.statuses[0] != models.StatusResolved {
		t.Fatalf("expected resolved status update, got %v", store.statuses)
	}
	if replier.calls != 0 {
		t.Fatalf("fallback replier should not run when steps exist")
	}
	if len(store.appended) != 2 || store.appended[0].Role != models.RoleCustomer || store.appended[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected transcript writes: %+v", store.appended)
	}
}

func TestTurnStepsWithoutResolvedFlagKeepStatus(t *testing.T) {
	store := &fakeStore{inq: testInquiry()}
	resolver := &fakeResolver{out: &ai.ResolveInquiryOutput{
		IsResolved:        false,
		ResolutionSteps:   []string{"Update the firmware"},
		ResolutionSummary: "This may only be a partial fix.",
	}}
	replier := &fakeReplier{}
	o := NewOrchestrator(store, resolver, replier)

	result, err := o.HandleCustomerMessage(context.Background(), 3, 7, "still broken")
	if err != nil {
		t.Fatalf("HandleCustomerMessage: %v", err)
	}
	if result.WasResolved {
		t.Fatalf("turn must not report resolved")
	}
	if len(store.statuses) != 0 {
		t.Fatalf("status must stay untouched, got %v", store.statuses)
	}
	if result.AssistantMessage.Content != "1. Update the firmware\n\nThis may only be a partial fix." {
		t.Fatalf("unexpected reply %q", result.AssistantMessage.Content)
	}
}

func TestTurnFallsBackWhenNoSteps(t *testing.T) {
	store := &fakeStore{inq: testInquiry()}
	// A resolver claiming success without steps is treated as a miss.
	resolver := &fakeResolver{out: &ai.ResolveInquiryOutput{IsResolved: true}}
	replier := &fakeReplier{out: &ai.InquiryReplyOutput{
		Response:  "Could you tell me which model you have?",
		Sentiment: "neutral",
	}}
	o := NewOrchestrator(store, resolver, replier)

	result, err := o.HandleCustomerMessage(context.Background(), 3, 7, "it's doing the thing again")
	if err != nil {
		t.Fatalf("HandleCustomerMessage: %v", err)
	}
	if result.WasResolved || result.Failed {
		t.Fatalf("unexpected flags: %+v", result)
	}
	if replier.calls != 1 {
		t.Fatalf("expected fallback reply, calls=%d", replier.calls)
	}
	if replier.lastIn.CustomerServiceContext != "Router keeps rebooting" {
		t.Fatalf("fallback should carry the inquiry title as context, got %q", replier.lastIn.CustomerServiceContext)
	}
	if result.AssistantMessage.Sentiment != models.SentimentNeutral {
		t.Fatalf("fallback sentiment should be stored, got %q", result.AssistantMessage.Sentiment)
	}
	if len(store.statuses) != 0 {
		t.Fatalf("status must stay untouched on fallback, got %v", store.statuses)
	}
}

func TestTurnResolverFailureDegrades(t *testing.T) {
	store := &fakeStore{inq: testInquiry()}
	boom := errors.New("upstream down")
	resolver := &fakeResolver{err: boom}
	replier := &fakeReplier{}
	o := NewOrchestrator(store, resolver, replier)

	result, err := o.HandleCustomerMessage(context.Background(), 3, 7, "help")
	if err != nil {
		t.Fatalf("turn error should surface through the result, got %v", err)
	}
	if !result.Failed || !errors.Is(result.Err, boom) {
		t.Fatalf("expected failed result carrying cause, got %+v", result)
	}
	if result.AssistantMessage.Content != FailureReplyText {
		t.Fatalf("expected failure reply, got %q", result.AssistantMessage.Content)
	}
	if len(store.statuses) != 0 {
		t.Fatalf("status must stay untouched on failure, got %v", store.statuses)
	}
	if replier.calls != 0 {
		t.Fatalf("replier must not run after resolver failure")
	}
}

func TestTurnReplierFailureDegrades(t *testing.T) {
	store := &fakeStore{inq: testInquiry()}
	resolver := &fakeResolver{out: &ai.ResolveInquiryOutput{}}
	boom := errors.New("timeout")
	replier := &fakeReplier{err: boom}
	o := NewOrchestrator(store, resolver, replier)

	result, err := o.HandleCustomerMessage(context.Background(), 3, 7, "help")
	if err != nil {
		t.Fatalf("HandleCustomerMessage: %v", err)
	}
	if !result.Failed || !errors.Is(result.Err, boom) {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if result.AssistantMessage.Content != FailureReplyText {
		t.Fatalf("expected failure reply, got %q", result.AssistantMessage.Content)
	}
}

func TestTurnCustomerPersistFailureAborts(t *testing.T) {
	boom := errors.New("disk full")
	store := &fakeStore{
		inq: testInquiry(),
		appendErr: func(msg models.Message) error {
			if msg.Role == models.RoleCustomer {
				return boom
			}
			return nil
		},
	}
	resolver := &fakeResolver{}
	o := NewOrchestrator(store, resolver, &fakeReplier{})

	_, err := o.HandleCustomerMessage(context.Background(), 3, 7, "help")
	if !errors.Is(err, boom) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if resolver.calls != 0 {
		t.Fatalf("no AI call may happen when the customer message is not persisted")
	}
}

func TestTurnAssistantPersistFailureStillReturnsReply(t *testing.T) {
	store := &fakeStore{
		inq: testInquiry(),
		appendErr: func(msg models.Message) error {
			if msg.Role == models.RoleAssistant {
				return errors.New("disk full")
			}
			return nil
		},
	}
	resolver := &fakeResolver{out: &ai.ResolveInquiryOutput{
		ResolutionSteps:   []string{"Reset the device"},
		ResolutionSummary: "Done.",
	}}
	o := NewOrchestrator(store, resolver, &fakeReplier{})

	result, err := o.HandleCustomerMessage(context.Background(), 3, 7, "help")
	if err != nil {
		t.Fatalf("HandleCustomerMessage: %v", err)
	}
	if result.Failed {
		t.Fatalf("assistant persist failure is not a turn failure")
	}
	if result.AssistantMessage == nil || result.AssistantMessage.Content != "1. Reset the device\n\nDone." {
		t.Fatalf("generated text must still reach the caller, got %+v", result.AssistantMessage)
	}
	if result.AssistantMessage.ID != 0 {
		t.Fatalf("unpersisted message must not carry an id")
	}
}

func TestTurnRejectsEmptyMessage(t *testing.T) {
	o := NewOrchestrator(&fakeStore{inq: testInquiry()}, &fakeResolver{}, &fakeReplier{})
	if _, err := o.HandleCustomerMessage(context.Background(), 3, 7, "   "); err == nil {
		t.Fatalf("expected error for blank message")
	}
}

func TestComposeResolutionReply(t *testing.T) {
	got := composeResolutionReply([]string{"a"}, "")
	if got != "1. a" {
		t.Fatalf("unexpected reply %q", got)
	}
	got = composeResolutionReply([]string{"a", "b"}, "s")
	if got != "1. a\n2. b\n\ns" {
		t.Fatalf("unexpected reply %q", got)
	}
}
