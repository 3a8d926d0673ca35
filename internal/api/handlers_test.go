package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"resolvego/internal/ai"
	"resolvego/internal/auth"
	"resolvego/internal/config"
	"resolvego/internal/models"
	"resolvego/internal/service/inquiry"
	"resolvego/internal/storage"
	"resolvego/internal/worker"
)

func TestInquiryLifecycleFlow(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	userID, authHeader := registerAndLogin(t, router)

	// Create an inquiry; the mock analyzer labels the first message.
	createResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries", userID),
		map[string]string{"title": "Router keeps rebooting", "message": "It restarts every ten minutes."},
		authHeader)
	assertStatus(t, createResp, http.StatusCreated)
	var createBody struct {
		Inquiry models.Inquiry `json:"inquiry"`
		Message models.Message `json:"message"`
	}
	decodeJSON(t, createResp.Body.Bytes(), &createBody)
	if createBody.Inquiry.Status != models.StatusOpen {
		t.Fatalf("new inquiry must be open, got %q", createBody.Inquiry.Status)
	}
	if createBody.Message.Sentiment != models.SentimentNegative {
		t.Fatalf("expected first message labeled, got %q", createBody.Message.Sentiment)
	}

	// List inquiries.
	listResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/inquiries", userID), nil, authHeader)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Inquiries []models.Inquiry `json:"inquiries"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Inquiries) != 1 {
		t.Fatalf("expected 1 inquiry, got %d", len(listBody.Inquiries))
	}

	// Post a customer message; the mock worker appends both turn messages.
	turnResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries/%d/messages", userID, createBody.Inquiry.ID),
		map[string]string{"content": "Any progress on this?"},
		authHeader)
	assertStatus(t, turnResp, http.StatusOK)
	var turnBody struct {
		CustomerMessage  models.Message `json:"customer_message"`
		AssistantMessage models.Message `json:"assistant_message"`
		WasResolved      bool           `json:"was_resolved"`
		Failed           bool           `json:"failed"`
	}
	decodeJSON(t, turnResp.Body.Bytes(), &turnBody)
	if turnBody.Failed {
		t.Fatalf("unexpected failed turn: %s", turnResp.Body.String())
	}
	if turnBody.AssistantMessage.Role != models.RoleAssistant {
		t.Fatalf("unexpected assistant message: %+v", turnBody.AssistantMessage)
	}

	// Read the transcript back.
	detailResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/inquiries/%d", userID, createBody.Inquiry.ID), nil, authHeader)
	assertStatus(t, detailResp, http.StatusOK)
	var detailBody struct {
		Inquiry  models.Inquiry    `json:"inquiry"`
		Messages []*models.Message `json:"messages"`
	}
	decodeJSON(t, detailResp.Body.Bytes(), &detailBody)
	if len(detailBody.Messages) != 3 {
		t.Fatalf("expected 3 messages in transcript, got %d", len(detailBody.Messages))
	}

	// Close, then delete.
	closeResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries/%d/close", userID, createBody.Inquiry.ID), nil, authHeader)
	assertStatus(t, closeResp, http.StatusNoContent)

	delResp := doJSONRequest(t, router, http.MethodDelete,
		fmt.Sprintf("/api/users/%d/inquiries/%d", userID, createBody.Inquiry.ID), nil, authHeader)
	assertStatus(t, delResp, http.StatusNoContent)

	missingResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/inquiries/%d", userID, createBody.Inquiry.ID), nil, authHeader)
	assertStatus(t, missingResp, http.StatusNotFound)
}

func TestCreateInquiryValidation(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries", userID),
		map[string]string{"title": "hey", "message": "It restarts every ten minutes."},
		authHeader)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries", userID),
		map[string]string{"title": "Router keeps rebooting", "message": "short"},
		authHeader)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCreateInquirySurvivesAnalyzerOutage(t *testing.T) {
	router, db, handler := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	mock := handler.ai.(*mockAI)
	mock.sentimentErr = fmt.Errorf("upstream down")

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries", userID),
		map[string]string{"title": "Billing question", "message": "I was charged twice this month."},
		authHeader)
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		Message models.Message `json:"message"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Message.Sentiment != "" {
		t.Fatalf("expected unlabeled message when analysis fails, got %q", body.Message.Sentiment)
	}
}

func TestTurnBusyMapsTo429(t *testing.T) {
	router, db, handler := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)
	inquiryID := createTestInquiry(t, router, userID, authHeader)

	mw := handler.workers.(*mockWorker)
	mw.busy = true

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries/%d/messages", userID, inquiryID),
		map[string]string{"content": "hello?"},
		authHeader)
	assertStatus(t, resp, http.StatusTooManyRequests)
}

func TestTurnUnknownInquiry(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries/9999/messages", userID),
		map[string]string{"content": "hello?"},
		authHeader)
	assertStatus(t, resp, http.StatusNotFound)
}

func TestTurnFailureSurfacesInPayload(t *testing.T) {
	router, db, handler := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)
	inquiryID := createTestInquiry(t, router, userID, authHeader)

	mw := handler.workers.(*mockWorker)
	mw.degrade = true

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries/%d/messages", userID, inquiryID),
		map[string]string{"content": "hello?"},
		authHeader)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Failed           bool           `json:"failed"`
		Error            string         `json:"error"`
		AssistantMessage models.Message `json:"assistant_message"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if !body.Failed || body.Error == "" {
		t.Fatalf("expected degraded turn in payload, got %s", resp.Body.String())
	}
	if body.AssistantMessage.Content != inquiry.FailureReplyText {
		t.Fatalf("expected failure reply, got %q", body.AssistantMessage.Content)
	}
}

func TestChatbotAndSentimentEndpoints(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chatbot", userID),
		map[string]string{"message": "hi"},
		authHeader)
	assertStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Body.String(), "Mock chatbot reply") {
		t.Fatalf("unexpected chatbot body: %s", resp.Body.String())
	}

	resp = doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/sentiment", userID),
		map[string]string{"message": "this is terrible"},
		authHeader)
	assertStatus(t, resp, http.StatusOK)
	var sentBody ai.SentimentOutput
	decodeJSON(t, resp.Body.Bytes(), &sentBody)
	if sentBody.Sentiment != "negative" {
		t.Fatalf("unexpected sentiment: %+v", sentBody)
	}
}

func TestAIUpstreamFailureMapsTo502(t *testing.T) {
	router, db, handler := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	mock := handler.ai.(*mockAI)
	mock.chatbotErr = &ai.UpstreamError{Capability: "chatbot_reply", Err: fmt.Errorf("timeout")}

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chatbot", userID),
		map[string]string{"message": "hi"},
		authHeader)
	assertStatus(t, resp, http.StatusBadGateway)
}

func TestRecurringIssuesDashboard(t *testing.T) {
	router, db, handler := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)
	createTestInquiry(t, router, userID, authHeader)

	resp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/dashboard/recurring-issues", userID), nil, authHeader)
	assertStatus(t, resp, http.StatusOK)
	var body ai.RecurringIssuesOutput
	decodeJSON(t, resp.Body.Bytes(), &body)
	if len(body.RecurringIssues) != 1 || body.RecurringIssues[0].Theme != "connectivity" {
		t.Fatalf("unexpected dashboard body: %s", resp.Body.String())
	}

	mock := handler.ai.(*mockAI)
	if mock.recurringCalls != 1 {
		t.Fatalf("expected one analysis call, got %d", mock.recurringCalls)
	}
}

func TestSentimentSummaryDashboard(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)
	createTestInquiry(t, router, userID, authHeader)

	resp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/dashboard/sentiment", userID), nil, authHeader)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Positive int `json:"positive"`
		Negative int `json:"negative"`
		Neutral  int `json:"neutral"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Negative != 1 || body.Positive != 0 || body.Neutral != 0 {
		t.Fatalf("unexpected summary: %s", resp.Body.String())
	}
}

func TestTranscriptionDataURI(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	uri := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString([]byte("RIFF....WAVE"))
	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/transcriptions", userID),
		map[string]string{"audio": uri},
		authHeader)
	assertStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Body.String(), "mock transcript") {
		t.Fatalf("unexpected transcription body: %s", resp.Body.String())
	}

	resp = doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/transcriptions", userID),
		map[string]string{"audio": "not a data uri"},
		authHeader)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCookieAuthEnforcesCSRFToken(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	userID, cookies, csrfToken := registerAndLoginWithCookies(t, router)
	createBody := map[string]string{
		"title":   "Mail not syncing",
		"message": "My inbox stopped updating yesterday.",
	}
	path := fmt.Sprintf("/api/users/%d/inquiries", userID)

	// Mutating request via cookies without the CSRF header is rejected.
	resp := doCookieRequest(t, router, http.MethodPost, path, createBody, cookies, "")
	assertStatus(t, resp, http.StatusForbidden)

	// A stale or forged token is also rejected.
	resp = doCookieRequest(t, router, http.MethodPost, path, createBody, cookies, "not-the-derived-token")
	assertStatus(t, resp, http.StatusForbidden)

	// The token issued at login passes.
	resp = doCookieRequest(t, router, http.MethodPost, path, createBody, cookies, csrfToken)
	assertStatus(t, resp, http.StatusCreated)

	// Safe methods never need the header.
	resp = doCookieRequest(t, router, http.MethodGet, path, nil, cookies, "")
	assertStatus(t, resp, http.StatusOK)
}

func TestRoutesRequireAuth(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	resp := doJSONRequest(t, router, http.MethodGet, "/api/users/1/inquiries", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestRoutesRejectForeignUser(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()
	userID, authHeader := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/inquiries", userID+1), nil, authHeader)
	assertStatus(t, resp, http.StatusForbidden)
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	svc := inquiry.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	handler := NewHandler(svc, &mockAI{}, authSvc, newMockWorker(svc), nil, time.Minute)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, handler
}

func createTestInquiry(t *testing.T, router *gin.Engine, userID int64, authHeader map[string]string) int64 {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/inquiries", userID),
		map[string]string{"title": "Internet outage", "message": "My connection dropped an hour ago."},
		authHeader)
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		Inquiry models.Inquiry `json:"inquiry"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Inquiry.ID <= 0 {
		t.Fatalf("expected inquiry id")
	}
	return body.Inquiry.ID
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine) (int64, map[string]string) {
	t.Helper()
	username := fmt.Sprintf("tester_%d", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token after login")
	}
	authHeader := map[string]string{"Authorization": fmt.Sprintf("Bearer %s", loginBody.AuthToken)}
	return regBody.ID, authHeader
}

// registerAndLoginWithCookies logs in and returns the session cookies plus
// the CSRF token the server issued for them.
func registerAndLoginWithCookies(t *testing.T, router *gin.Engine) (int64, []*http.Cookie, string) {
	t.Helper()
	username := fmt.Sprintf("cookie_tester_%d", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)

	cookies := loginResp.Result().Cookies()
	csrfToken := ""
	for _, ck := range cookies {
		if ck.Name == "csrf_token" {
			csrfToken = ck.Value
		}
	}
	if csrfToken == "" {
		t.Fatalf("login did not set a csrf cookie")
	}
	return regBody.ID, cookies, csrfToken
}

func doCookieRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, cookies []*http.Cookie, csrfToken string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	if csrfToken != "" {
		req.Header.Set("X-CSRF-Token", csrfToken)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type mockAI struct {
	sentimentErr   error
	chatbotErr     error
	recurringCalls int
}

func (m *mockAI) AnalyzeSentiment(ctx context.Context, in ai.SentimentInput) (*ai.SentimentOutput, error) {
	if m.sentimentErr != nil {
		return nil, m.sentimentErr
	}
	return &ai.SentimentOutput{Sentiment: "negative", Score: -0.6, Reason: "complaint"}, nil
}

func (m *mockAI) ChatbotReply(ctx context.Context, in ai.ChatbotInput) (*ai.ChatbotOutput, error) {
	if m.chatbotErr != nil {
		return nil, m.chatbotErr
	}
	return &ai.ChatbotOutput{Response: fmt.Sprintf("Mock chatbot reply to %q", in.Message)}, nil
}

func (m *mockAI) DetectRecurringIssues(ctx context.Context, in ai.RecurringIssuesInput) (*ai.RecurringIssuesOutput, error) {
	m.recurringCalls++
	return &ai.RecurringIssuesOutput{RecurringIssues: []ai.RecurringIssue{
		{Theme: "connectivity", Summary: "dropped connections", Count: len(in.InquiryTitles)},
	}}, nil
}

func (m *mockAI) Transcribe(ctx context.Context, in ai.TranscriptionInput) (*ai.TranscriptionOutput, error) {
	return &ai.TranscriptionOutput{Text: "mock transcript"}, nil
}

type mockWorker struct {
	svc     *inquiry.Service
	busy    bool
	degrade bool
}

func newMockWorker(svc *inquiry.Service) *mockWorker {
	return &mockWorker{svc: svc}
}

func (m *mockWorker) SubmitTurn(req worker.TurnRequest) (*inquiry.TurnResult, error) {
	if m.busy {
		return nil, worker.ErrDispatcherBusy
	}
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	inq, err := m.svc.GetInquiry(ctx, req.UserID, req.InquiryID)
	if err != nil {
		return nil, err
	}
	customer, err := m.svc.AppendMessage(ctx, models.Message{
		InquiryID: inq.ID,
		UserID:    inq.UserID,
		Role:      models.RoleCustomer,
		Content:   req.Message,
	})
	if err != nil {
		return nil, err
	}
	if m.degrade {
		assistant, err := m.svc.AppendMessage(ctx, models.Message{
			InquiryID: inq.ID,
			UserID:    inq.UserID,
			Role:      models.RoleAssistant,
			Content:   inquiry.FailureReplyText,
		})
		if err != nil {
			return nil, err
		}
		return &inquiry.TurnResult{
			CustomerMessage:  customer,
			AssistantMessage: assistant,
			Failed:           true,
			Err:              errors.New("mock upstream failure"),
		}, nil
	}
	assistant, err := m.svc.AppendMessage(ctx, models.Message{
		InquiryID: inq.ID,
		UserID:    inq.UserID,
		Role:      models.RoleAssistant,
		Content:   fmt.Sprintf("Mock reply to %q", req.Message),
	})
	if err != nil {
		return nil, err
	}
	return &inquiry.TurnResult{CustomerMessage: customer, AssistantMessage: assistant}, nil
}

func (m *mockWorker) GetTranscript(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, []*models.Message, error) {
	return m.svc.GetInquiryWithMessages(ctx, userID, inquiryID)
}

func (m *mockWorker) Invalidate(int64, int64) {}
func (m *mockWorker) InvalidateUser(int64)    {}
func (m *mockWorker) CancelUser(int64)        {}
