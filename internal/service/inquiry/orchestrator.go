package inquiry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"resolvego/internal/ai"
	"resolvego/internal/models"
)

// FailureReplyText is appended to the transcript as the assistant turn
// when every AI path for the turn has failed.
const FailureReplyText = "Sorry, I had trouble getting a response. Please try again."

// Resolver attempts a step-by-step resolution for an inquiry.
type Resolver interface {
	ResolveInquiry(ctx context.Context, in ai.ResolveInquiryInput) (*ai.ResolveInquiryOutput, error)
}

// Replier generates a contextual answer when no resolution is available.
type Replier interface {
	GenerateInquiryReply(ctx context.Context, in ai.InquiryReplyInput) (*ai.InquiryReplyOutput, error)
}

// Store is the slice of the persistence gateway the orchestrator needs.
type Store interface {
	GetInquiry(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, error)
	AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	UpdateStatus(ctx context.Context, inquiryID int64, status models.InquiryStatus) error
}

// Orchestrator runs one customer turn: persist the customer message, try
// an automatic resolution, fall back to a contextual reply, and degrade
// to a fixed failure message when both AI paths fail.
type Orchestrator struct {
	store    Store
	resolver Resolver
	replier  Replier
}

// NewOrchestrator builds an orchestrator over the given store and AI paths.
func NewOrchestrator(store Store, resolver Resolver, replier Replier) *Orchestrator {
	return &Orchestrator{store: store, resolver: resolver, replier: replier}
}

// TurnResult is the outcome of one customer turn.
type TurnResult struct {
	CustomerMessage  *models.Message `json:"customerMessage"`
	AssistantMessage *models.Message `json:"assistantMessage"`
	WasResolved      bool            `json:"wasResolved"`
	Failed           bool            `json:"failed"`
	Err              error           `json:"-"`
}

// HandleCustomerMessage runs the turn workflow for one incoming customer
// message. A persistence failure on the customer message aborts the turn
// before any AI call; AI failures degrade to FailureReplyText and are
// reported through the result, not the error return.
func (o *Orchestrator) HandleCustomerMessage(ctx context.Context, userID, inquiryID int64, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message cannot be empty")
	}

	inq, err := o.store.GetInquiry(ctx, userID, inquiryID)
	if err != nil {
		return nil, err
	}

	customerMsg, err := o.store.AppendMessage(ctx, models.Message{
		InquiryID: inq.ID,
		UserID:    inq.UserID,
		Role:      models.RoleCustomer,
		Content:   text,
	})
	if err != nil {
		return nil, err
	}

	res, err := o.resolver.ResolveInquiry(ctx, ai.ResolveInquiryInput{
		InquiryTitle:   inq.Title,
		InquiryMessage: text,
	})
	if err != nil {
		log.Printf("resolve inquiry %d failed: %v", inq.ID, err)
		return o.failTurn(ctx, inq, customerMsg, err), nil
	}

	if len(res.ResolutionSteps) > 0 {
		reply := composeResolutionReply(res.ResolutionSteps, res.ResolutionSummary)
		if res.IsResolved {
			if err := o.store.UpdateStatus(ctx, inq.ID, models.StatusResolved); err != nil {
				log.Printf("mark inquiry %d resolved failed: %v", inq.ID, err)
			}
		}
		assistantMsg := o.appendAssistant(ctx, inq, reply, "")
		return &TurnResult{
			CustomerMessage:  customerMsg,
			AssistantMessage: assistantMsg,
			WasResolved:      res.IsResolved,
		}, nil
	}

	// No actionable steps: the resolution attempt is treated as a miss
	// even when it claims success.
	rep, err := o.replier.GenerateInquiryReply(ctx, ai.InquiryReplyInput{
		CustomerInquiry:        text,
		CustomerServiceContext: inq.Title,
	})
	if err != nil {
		log.Printf("reply for inquiry %d failed: %v", inq.ID, err)
		return o.failTurn(ctx, inq, customerMsg, err), nil
	}

	assistantMsg := o.appendAssistant(ctx, inq, rep.Response, models.Sentiment(rep.Sentiment))
	return &TurnResult{
		CustomerMessage:  customerMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// composeResolutionReply renders numbered steps followed by the summary.
func composeResolutionReply(steps []string, summary string) string {
	var b strings.Builder
	for i, step := range steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, step)
	}
	if summary != "" {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}
	return b.String()
}

// appendAssistant persists the assistant turn. A persist failure here is
// logged only; the generated text still reaches the caller.
func (o *Orchestrator) appendAssistant(ctx context.Context, inq *models.Inquiry, content string, sentiment models.Sentiment) *models.Message {
	msg, err := o.store.AppendMessage(ctx, models.Message{
		InquiryID: inq.ID,
		UserID:    inq.UserID,
		Role:      models.RoleAssistant,
		Content:   content,
		Sentiment: sentiment,
	})
	if err != nil {
		log.Printf("persist assistant message for inquiry %d failed: %v", inq.ID, err)
		return &models.Message{
			InquiryID: inq.ID,
			UserID:    inq.UserID,
			Role:      models.RoleAssistant,
			Content:   content,
			Sentiment: sentiment,
		}
	}
	return msg
}

// failTurn records the fixed failure reply and reports the AI error
// through the result. Inquiry status is left untouched.
func (o *Orchestrator) failTurn(ctx context.Context, inq *models.Inquiry, customerMsg *models.Message, aiErr error) *TurnResult {
	assistantMsg := o.appendAssistant(ctx, inq, FailureReplyText, "")
	return &TurnResult{
		CustomerMessage:  customerMsg,
		AssistantMessage: assistantMsg,
		Failed:           true,
		Err:              aiErr,
	}
}
