package models

import "time"

// Role identifies who produced a transcript entry.

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// Sentiment is the label attached by sentiment analysis. Empty means
// no analysis was run for the message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Message is one append-only transcript entry of an inquiry. Thread order
// is created_at ascending, id as the tie-break.
type Message struct {
	ID        int64     `json:"id"`
	InquiryID int64     `json:"inquiry_id"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
