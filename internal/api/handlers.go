package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resolvego/internal/ai"
	"resolvego/internal/auth"
	"resolvego/internal/models"
	"resolvego/internal/redis"
	"resolvego/internal/service/inquiry"
	"resolvego/internal/worker"
)

const (
	minTitleLen   = 5
	minMessageLen = 10

	maxAudioBytes = 10 << 20 // 10 MB

	sentimentTimeout = 15 * time.Second
)

// AIService is the slice of the capability client the handlers call
// directly; the turn capabilities run behind the worker gateway instead.
type AIService interface {
	AnalyzeSentiment(ctx context.Context, in ai.SentimentInput) (*ai.SentimentOutput, error)
	ChatbotReply(ctx context.Context, in ai.ChatbotInput) (*ai.ChatbotOutput, error)
	DetectRecurringIssues(ctx context.Context, in ai.RecurringIssuesInput) (*ai.RecurringIssuesOutput, error)
	Transcribe(ctx context.Context, in ai.TranscriptionInput) (*ai.TranscriptionOutput, error)
}

// WorkerGateway is the turn-execution and cache surface the handlers need.
type WorkerGateway interface {
	SubmitTurn(worker.TurnRequest) (*inquiry.TurnResult, error)
	GetTranscript(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, []*models.Message, error)
	Invalidate(userID, inquiryID int64)
	InvalidateUser(userID int64)
	CancelUser(userID int64)
}

// Handler wires HTTP routes to the inquiry service, the AI capabilities and
// the per-user turn workers.
type Handler struct {
	inquiries *inquiry.Service
	ai        AIService
	auth      *auth.Service
	workers   WorkerGateway
	cache     *redis.Client
	issueTTL  time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(store *inquiry.Service, aiClient AIService, authService *auth.Service, workers WorkerGateway, cacheClient *redis.Client, issueTTL time.Duration) *Handler {
	return &Handler{
		inquiries: store,
		ai:        aiClient,
		auth:      authService,
		workers:   workers,
		cache:     cacheClient,
		issueTTL:  issueTTL,
	}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	authMW := h.auth.Middleware()
	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.auth.CSRFMiddleware())
	userRoutes.GET("/inquiries", h.listInquiries)
	userRoutes.POST("/inquiries", h.createInquiry)
	userRoutes.GET("/inquiries/:inquiry_id", h.getInquiry)
	userRoutes.DELETE("/inquiries/:inquiry_id", h.deleteInquiry)
	userRoutes.POST("/inquiries/:inquiry_id/messages", h.postInquiryMessage)
	userRoutes.POST("/inquiries/:inquiry_id/close", h.closeInquiry)
	userRoutes.POST("/chatbot", h.chatbotReply)
	userRoutes.POST("/sentiment", h.analyzeSentiment)
	userRoutes.POST("/transcriptions", h.transcribeAudio)
	userRoutes.GET("/dashboard/recurring-issues", h.recurringIssues)
	userRoutes.GET("/dashboard/sentiment", h.sentimentSummary)
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.inquiries.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.inquiries.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, h.auth.CSRFTokenFor(authToken))
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	h.workers.CancelUser(userID)
	h.workers.InvalidateUser(userID)
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.workers.CancelUser(id)
	h.workers.InvalidateUser(id)
	if err := h.inquiries.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// Inquiry interfaces

func (h *Handler) listInquiries(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	inquiries, err := h.inquiries.ListInquiries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(inquiries) == 0 {
		inquiries = make([]models.Inquiry, 0)
	}
	c.JSON(http.StatusOK, gin.H{"inquiries": inquiries})
}

type createInquiryRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (h *Handler) createInquiry(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	title := strings.TrimSpace(req.Title)
	message := strings.TrimSpace(req.Message)
	if len(title) < minTitleLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("title must be at least %d characters", minTitleLen)})
		return
	}
	if len(message) < minMessageLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("message must be at least %d characters", minMessageLen)})
		return
	}

	// Best effort; the inquiry is created even when analysis fails.
	sentiment := h.bestEffortSentiment(c.Request.Context(), message)

	inq, msg, err := h.inquiries.CreateInquiry(c.Request.Context(), userID, title, message, sentiment)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"inquiry": inq,
		"message": msg,
	})
}

func (h *Handler) bestEffortSentiment(ctx context.Context, message string) models.Sentiment {
	if h.ai == nil {
		return ""
	}
	sctx, cancel := context.WithTimeout(ctx, sentimentTimeout)
	defer cancel()
	out, err := h.ai.AnalyzeSentiment(sctx, ai.SentimentInput{Message: message})
	if err != nil {
		return ""
	}
	return models.Sentiment(out.Sentiment)
}

func (h *Handler) getInquiry(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	inquiryID, err := strconv.ParseInt(c.Param("inquiry_id"), 10, 64)
	if err != nil || inquiryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inquiry id"})
		return
	}
	inq, messages, err := h.workers.GetTranscript(c.Request.Context(), userID, inquiryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "inquiry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"inquiry":  inq,
		"messages": messages,
	})
}

func (h *Handler) deleteInquiry(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	inquiryID, err := strconv.ParseInt(c.Param("inquiry_id"), 10, 64)
	if err != nil || inquiryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inquiry id"})
		return
	}
	if err := h.inquiries.DeleteInquiry(c.Request.Context(), userID, inquiryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "inquiry not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.workers.Invalidate(userID, inquiryID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) closeInquiry(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	inquiryID, err := strconv.ParseInt(c.Param("inquiry_id"), 10, 64)
	if err != nil || inquiryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inquiry id"})
		return
	}
	if err := h.inquiries.CloseInquiry(c.Request.Context(), userID, inquiryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "inquiry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.workers.Invalidate(userID, inquiryID)
	c.Status(http.StatusNoContent)
}

// Turn interface

type turnRequestBody struct {
	Content string `json:"content"`
}

func (h *Handler) postInquiryMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	inquiryID, err := strconv.ParseInt(c.Param("inquiry_id"), 10, 64)
	if err != nil || inquiryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inquiry id"})
		return
	}
	var req turnRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content cannot be empty"})
		return
	}

	turnCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	result, err := h.workers.SubmitTurn(worker.TurnRequest{
		Context:   turnCtx,
		UserID:    userID,
		InquiryID: inquiryID,
		Message:   req.Content,
	})
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "inquiry not found"})
			return
		}
		var pe *inquiry.PersistenceError
		if errors.As(err, &pe) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := gin.H{
		"customer_message":  result.CustomerMessage,
		"assistant_message": result.AssistantMessage,
		"was_resolved":      result.WasResolved,
		"failed":            result.Failed,
	}
	if result.Failed && result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	c.JSON(http.StatusOK, payload)
}

// AI interfaces

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) chatbotReply(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.ai.ChatbotReply(c.Request.Context(), ai.ChatbotInput{Message: req.Message})
	if err != nil {
		c.JSON(aiErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": out.Response})
}

func (h *Handler) analyzeSentiment(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.ai.AnalyzeSentiment(c.Request.Context(), ai.SentimentInput{Message: req.Message})
	if err != nil {
		c.JSON(aiErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// Transcription interface. Accepts either a multipart "audio" file or a
// JSON body with a base64 data URI.
func (h *Handler) transcribeAudio(c *gin.Context) {
	in, ok := h.readAudio(c)
	if !ok {
		return
	}
	out, err := h.ai.Transcribe(c.Request.Context(), in)
	if err != nil {
		c.JSON(aiErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": out.Text})
}

func (h *Handler) readAudio(c *gin.Context) (ai.TranscriptionInput, bool) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, err := c.FormFile("audio")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
			return ai.TranscriptionInput{}, false
		}
		if file.Size > maxAudioBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file too large"})
			return ai.TranscriptionInput{}, false
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open audio failed"})
			return ai.TranscriptionInput{}, false
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read audio failed"})
			return ai.TranscriptionInput{}, false
		}
		if len(data) > maxAudioBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file too large"})
			return ai.TranscriptionInput{}, false
		}
		mime := file.Header.Get("Content-Type")
		if mime == "" {
			mime = http.DetectContentType(data)
		}
		return ai.TranscriptionInput{Data: data, MIMEType: mime}, true
	}

	var req struct {
		Audio string `json:"audio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Audio) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio is required"})
		return ai.TranscriptionInput{}, false
	}
	in, err := ai.ParseAudioDataURI(req.Audio)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ai.TranscriptionInput{}, false
	}
	return in, true
}

// Dashboard interfaces

func (h *Handler) recurringIssues(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	cacheKey := fmt.Sprintf("dashboard:recurring:%d", userID)
	if h.cache != nil {
		if cached, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			return
		} else if err != redis.ErrCacheMiss {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	titles, err := h.inquiries.ListInquiryTitles(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out, err := h.ai.DetectRecurringIssues(c.Request.Context(), ai.RecurringIssuesInput{InquiryTitles: titles})
	if err != nil {
		c.JSON(aiErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	payload, err := json.Marshal(out)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.cache != nil && h.issueTTL > 0 {
		if err := h.cache.Set(c.Request.Context(), cacheKey, payload, h.issueTTL); err != nil {
			log.Printf("cache recurring issues for user %d failed: %v", userID, err)
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *Handler) sentimentSummary(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	summary, err := h.inquiries.SentimentSummary(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positive": summary[models.SentimentPositive],
		"negative": summary[models.SentimentNegative],
		"neutral":  summary[models.SentimentNeutral],
	})
}

// aiErrorStatus maps capability errors onto HTTP statuses: caller mistakes
// are 400s, upstream trouble is a 502.
func aiErrorStatus(err error) int {
	var ve *ai.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var ue *ai.UpstreamError
	if errors.As(err, &ue) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
