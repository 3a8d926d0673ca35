package models

import "time"

// InquiryStatus is the ticket lifecycle state.
type InquiryStatus string

const (
	StatusOpen       InquiryStatus = "open"
	StatusInProgress InquiryStatus = "in_progress"
	StatusResolved   InquiryStatus = "resolved"
	StatusClosed     InquiryStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s InquiryStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Inquiry is a customer support ticket. LastMessage is a denormalized copy
// of the most recent transcript entry, kept for list views.
type Inquiry struct {
	ID          int64         `json:"id"`
	UserID      int64         `json:"user_id"`
	Title       string        `json:"title"`
	Status      InquiryStatus `json:"status"`
	LastMessage string        `json:"last_message"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
