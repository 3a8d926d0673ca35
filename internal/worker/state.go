package worker

import (
	"sync"

	"resolvego/internal/models"
)

// inquiryState is the in-process cache of recently served inquiries and
// their transcripts, keyed by inquiry ID.
type inquiryState struct {
	mu          sync.RWMutex
	inquiries   map[int64]*models.Inquiry
	transcripts map[int64][]*models.Message
}

func newInquiryState() *inquiryState {
	return &inquiryState{
		inquiries:   make(map[int64]*models.Inquiry),
		transcripts: make(map[int64][]*models.Message),
	}
}

func (s *inquiryState) set(inq *models.Inquiry, transcript []*models.Message) {
	if inq == nil {
		return
	}
	s.mu.Lock()
	s.inquiries[inq.ID] = inq
	s.transcripts[inq.ID] = transcript
	s.mu.Unlock()
}

func (s *inquiryState) get(userID, inquiryID int64) (*models.Inquiry, []*models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inq, ok := s.inquiries[inquiryID]
	if !ok || inq.UserID != userID {
		return nil, nil, false
	}
	return inq, s.transcripts[inquiryID], true
}

func (s *inquiryState) purge(inquiryID int64) {
	s.mu.Lock()
	delete(s.inquiries, inquiryID)
	delete(s.transcripts, inquiryID)
	s.mu.Unlock()
}

func (s *inquiryState) purgeUser(userID int64) {
	s.mu.Lock()
	for id, inq := range s.inquiries {
		if inq.UserID == userID {
			delete(s.inquiries, id)
			delete(s.transcripts, id)
		}
	}
	s.mu.Unlock()
}

func (s *inquiryState) reset() {
	s.mu.Lock()
	s.inquiries = make(map[int64]*models.Inquiry)
	s.transcripts = make(map[int64][]*models.Message)
	s.mu.Unlock()
}
