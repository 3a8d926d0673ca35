package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// SentimentInput is one customer message to analyze.
type SentimentInput struct {
	Message string `json:"message" validate:"required" jsonschema:"description=The customer message to analyze."`
}

// SentimentOutput is the analysis result.
type SentimentOutput struct {
	Sentiment string  `json:"sentiment" validate:"required" jsonschema:"description=The sentiment of the customer message: positive negative or neutral."`
	Score     float64 `json:"score" validate:"gte=-1,lte=1" jsonschema:"description=A numerical score between -1 and 1 indicating the strength of the sentiment."`
	Reason    string  `json:"reason,omitempty" jsonschema:"description=Explanation for the sentiment analysis result."`
}

var sentimentTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("You are a sentiment analysis expert. Analyze the sentiment of the customer message and provide a sentiment label (positive, negative, or neutral), a numerical score between -1 and 1 indicating strength, and a short explanation."),
	schema.UserMessage("Message: {message}"),
)

// AnalyzeSentiment classifies one customer message.
func (c *Client) AnalyzeSentiment(ctx context.Context, in SentimentInput) (*SentimentOutput, error) {
	out, err := invokeStructured[SentimentInput, SentimentOutput](ctx, c, "analyze_sentiment", sentimentTemplate, in, map[string]any{
		"message": in.Message,
	})
	if err != nil {
		return nil, err
	}
	// Labels are normalized before the membership check so a capitalized
	// reply from the model still passes.
	out.Sentiment = strings.ToLower(strings.TrimSpace(out.Sentiment))
	if !validSentimentLabel(out.Sentiment) {
		return nil, upstreamErr("analyze_sentiment", fmt.Errorf("unexpected sentiment label %q", out.Sentiment))
	}
	// Score/label disagreement is a model quality issue, not a hard failure.
	if (out.Sentiment == "positive" && out.Score < 0) || (out.Sentiment == "negative" && out.Score > 0) {
		log.Printf("sentiment score %.2f disagrees with label %q", out.Score, out.Sentiment)
	}
	return out, nil
}

func validSentimentLabel(label string) bool {
	switch label {
	case "positive", "negative", "neutral":
		return true
	}
	return false
}
