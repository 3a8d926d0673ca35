package inquiry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"resolvego/internal/models"
)

// Service is the persistence gateway for inquiries and their transcripts.
// Transcripts are append-only; thread order is (created_at, id) ascending.
type Service struct {
	db *sql.DB
}

// NewService builds a new inquiry service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateInquiry inserts a new ticket plus its first customer message. The
// sentiment label, when known, is attached to that first message.
func (s *Service) CreateInquiry(ctx context.Context, userID int64, title, firstMessage string, sentiment models.Sentiment) (*models.Inquiry, *models.Message, error) {
	if userID <= 0 {
		return nil, nil, errors.New("user_id is required")
	}
	title = strings.TrimSpace(title)
	firstMessage = strings.TrimSpace(firstMessage)
	if title == "" {
		return nil, nil, errors.New("title is required")
	}
	if firstMessage == "" {
		return nil, nil, errors.New("message is required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inquiries (user_id, title, status, last_message, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, title, models.StatusOpen, firstMessage, now, now,
	)
	if err != nil {
		return nil, nil, persistenceErr("create inquiry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, nil, persistenceErr("inquiry id", err)
	}
	inq := &models.Inquiry{
		ID:          id,
		UserID:      userID,
		Title:       title,
		Status:      models.StatusOpen,
		LastMessage: firstMessage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	msg, err := s.AppendMessage(ctx, models.Message{
		InquiryID: id,
		UserID:    userID,
		Role:      models.RoleCustomer,
		Content:   firstMessage,
		Sentiment: sentiment,
	})
	if err != nil {
		return nil, nil, err
	}
	return inq, msg, nil
}

// GetInquiry returns one ticket owned by the user.
func (s *Service) GetInquiry(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, status, last_message, created_at, updated_at FROM inquiries WHERE id = ? AND user_id = ?`,
		inquiryID, userID,
	).Scan(&inq.ID, &inq.UserID, &inq.Title, &inq.Status, &inq.LastMessage, &inq.CreatedAt, &inq.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, persistenceErr("get inquiry", err)
	}
	return &inq, nil
}

// ListInquiries returns all tickets for a user ordered by last activity.
func (s *Service) ListInquiries(ctx context.Context, userID int64) ([]models.Inquiry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, status, last_message, created_at, updated_at FROM inquiries WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, persistenceErr("list inquiries", err)
	}
	defer rows.Close()

	var inquiries []models.Inquiry
	for rows.Next() {
		var inq models.Inquiry
		if err := rows.Scan(&inq.ID, &inq.UserID, &inq.Title, &inq.Status, &inq.LastMessage, &inq.CreatedAt, &inq.UpdatedAt); err != nil {
			return nil, persistenceErr("scan inquiry", err)
		}
		inquiries = append(inquiries, inq)
	}
	return inquiries, rows.Err()
}

// ListInquiryTitles returns the user's ticket titles, newest first. Feeds
// recurring-issue detection.
func (s *Service) ListInquiryTitles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title FROM inquiries WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, persistenceErr("list inquiry titles", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, persistenceErr("scan inquiry title", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// GetInquiryWithMessages returns one ticket and its ordered transcript.
func (s *Service) GetInquiryWithMessages(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, []*models.Message, error) {
	inq, err := s.GetInquiry(ctx, userID, inquiryID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.ListMessages(ctx, inquiryID)
	if err != nil {
		return inq, nil, err
	}
	return inq, msgs, nil
}

// ListMessages returns the transcript in thread order.
func (s *Service) ListMessages(ctx context.Context, inquiryID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, inquiry_id, user_id, role, content, COALESCE(sentiment, ''), created_at
		 FROM messages WHERE inquiry_id = ? ORDER BY created_at ASC, id ASC`,
		inquiryID,
	)
	if err != nil {
		return nil, persistenceErr("list messages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.InquiryID, &m.UserID, &m.Role, &m.Content, &m.Sentiment, &m.CreatedAt); err != nil {
			return nil, persistenceErr("scan message", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessage stores a new transcript entry and refreshes the ticket's
// last_message/updated_at. The two writes are independent, not a
// transaction; the ticket fields are last-writer-wins under concurrency.
func (s *Service) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.InquiryID <= 0 {
		return nil, errors.New("inquiry_id is required")
	}
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return nil, errors.New("content cannot be empty")
	}

	now := time.Now().UTC()
	var sentiment interface{}
	if msg.Sentiment != "" {
		sentiment = string(msg.Sentiment)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (inquiry_id, user_id, role, content, sentiment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.InquiryID, msg.UserID, msg.Role, msg.Content, sentiment, now,
	)
	if err != nil {
		return nil, persistenceErr("insert message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistenceErr("message id", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE inquiries SET last_message = ?, updated_at = ? WHERE id = ?`,
		msg.Content, now, msg.InquiryID,
	); err != nil {
		return nil, persistenceErr("touch inquiry", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}

// UpdateStatus changes the ticket lifecycle state. Only the orchestrator's
// resolved path and the explicit close action call this.
func (s *Service) UpdateStatus(ctx context.Context, inquiryID int64, status models.InquiryStatus) error {
	if inquiryID <= 0 {
		return errors.New("invalid inquiry id")
	}
	if !status.Valid() {
		return errors.New("invalid status")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE inquiries SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), inquiryID,
	)
	if err != nil {
		return persistenceErr("update status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("status rows affected", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CloseInquiry marks the user's ticket closed.
func (s *Service) CloseInquiry(ctx context.Context, userID, inquiryID int64) error {
	if inquiryID <= 0 {
		return errors.New("invalid inquiry id")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE inquiries SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		models.StatusClosed, time.Now().UTC(), inquiryID, userID,
	)
	if err != nil {
		return persistenceErr("close inquiry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("close rows affected", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteInquiry removes a ticket and its transcript for the user. External
// administrative action; never called by the orchestrator.
func (s *Service) DeleteInquiry(ctx context.Context, userID, inquiryID int64) error {
	if inquiryID <= 0 {
		return errors.New("invalid inquiry id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM inquiries WHERE id = ? AND user_id = ?`, inquiryID, userID)
	if err != nil {
		return persistenceErr("delete inquiry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("inquiry rows affected", err)
	}
	if affected == 0 {
		tx.Rollback()
		return sql.ErrNoRows
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE inquiry_id = ?`, inquiryID); err != nil {
		return persistenceErr("delete messages", err)
	}
	if err = tx.Commit(); err != nil {
		return persistenceErr("commit delete inquiry", err)
	}
	return nil
}

// SentimentSummary counts analyzed customer messages per sentiment label.
func (s *Service) SentimentSummary(ctx context.Context, userID int64) (map[models.Sentiment]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sentiment, COUNT(*) FROM messages
		 WHERE user_id = ? AND role = ? AND sentiment IS NOT NULL AND sentiment != ''
		 GROUP BY sentiment`,
		userID, models.RoleCustomer,
	)
	if err != nil {
		return nil, persistenceErr("sentiment summary", err)
	}
	defer rows.Close()

	summary := make(map[models.Sentiment]int)
	for rows.Next() {
		var label models.Sentiment
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, persistenceErr("scan sentiment", err)
		}
		summary[label] = count
	}
	return summary, rows.Err()
}
