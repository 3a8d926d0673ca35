package worker

import (
	"context"

	"resolvego/internal/models"
	"resolvego/internal/redis"
	"resolvego/internal/service/inquiry"
)

// Orchestrating runs one customer turn end to end.
type Orchestrating interface {
	HandleCustomerMessage(ctx context.Context, userID, inquiryID int64, text string) (*inquiry.TurnResult, error)
}

// TranscriptStore loads an inquiry with its ordered transcript.
type TranscriptStore interface {
	GetInquiryWithMessages(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, []*models.Message, error)
}

// Manager executes turn jobs and keeps the two-level transcript cache
// (in-process, then redis) coherent across instances via pub/sub
// invalidation.
type Manager struct {
	orchestrator Orchestrating
	store        TranscriptStore
	state        *inquiryState
	cache        *stateRedis
}

func NewManager(orchestrator Orchestrating, store TranscriptStore, cache *redis.Client) *Manager {
	m := &Manager{
		orchestrator: orchestrator,
		store:        store,
		state:        newInquiryState(),
	}
	if cache != nil {
		m.cache = newStateCache(cache)
		m.cache.startListener(m.applyInvalidation)
	}
	return m
}

func (m *Manager) handleTurn(task *turnTask) {
	if task == nil {
		return
	}
	req := task.req
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := m.orchestrator.HandleCustomerMessage(ctx, req.UserID, req.InquiryID, req.Message)
	if err == nil {
		// The transcript changed; drop stale copies everywhere.
		m.state.purge(req.InquiryID)
		if m.cache != nil {
			m.cache.invalidateInquiry(req.InquiryID)
			m.cache.publishInvalidation(invalidateMessage{
				UserID:    req.UserID,
				InquiryID: req.InquiryID,
				Scope:     scopeInquiry,
			})
		}
	}

	if task.resultCh != nil {
		task.resultCh <- turnReturn{result: result, err: err}
	}
}

// GetTranscript serves an inquiry and its transcript, memory first, then
// redis, then the store. Cache layers are refilled on the way back up.
func (m *Manager) GetTranscript(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, []*models.Message, error) {
	if inq, transcript, ok := m.state.get(userID, inquiryID); ok {
		traceTurn("transcript %d served from memory", inquiryID)
		return inq, transcript, nil
	}
	if m.cache != nil {
		if inq, transcript, ok := m.cache.loadInquiry(userID, inquiryID); ok {
			traceTurn("transcript %d served from redis", inquiryID)
			m.state.set(inq, transcript)
			return inq, transcript, nil
		}
	}

	inq, transcript, err := m.store.GetInquiryWithMessages(ctx, userID, inquiryID)
	if err != nil {
		return nil, nil, err
	}
	m.state.set(inq, transcript)
	if m.cache != nil {
		m.cache.cacheInquiry(inq, transcript)
	}
	return inq, transcript, nil
}

// Invalidate drops cached state for one inquiry on every instance.
func (m *Manager) Invalidate(userID, inquiryID int64) {
	m.state.purge(inquiryID)
	if m.cache != nil {
		m.cache.invalidateInquiry(inquiryID)
		m.cache.publishInvalidation(invalidateMessage{
			UserID:    userID,
			InquiryID: inquiryID,
			Scope:     scopeInquiry,
		})
	}
}

// InvalidateUser drops cached state for all of a user's inquiries.
func (m *Manager) InvalidateUser(userID int64) {
	m.state.purgeUser(userID)
	if m.cache != nil {
		m.cache.publishInvalidation(invalidateMessage{
			UserID: userID,
			Scope:  scopeUser,
		})
	}
}

// applyInvalidation reacts to invalidations published by other instances.
// Local memory only; inquiry-scope publishers clear redis themselves, and
// user-scope redis entries lapse via TTL.
func (m *Manager) applyInvalidation(msg invalidateMessage) {
	switch msg.Scope {
	case scopeInquiry:
		m.state.purge(msg.InquiryID)
	case scopeUser:
		m.state.purgeUser(msg.UserID)
	}
}
