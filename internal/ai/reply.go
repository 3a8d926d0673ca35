package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// InquiryReplyInput is a customer inquiry plus optional grounding context.
type InquiryReplyInput struct {
	CustomerInquiry        string `json:"customerInquiry" validate:"required" jsonschema:"description=The customer inquiry."`
	CustomerServiceContext string `json:"customerServiceContext,omitempty" jsonschema:"description=Contextual information about the customer or their issue."`
}

// InquiryReplyOutput is the generated reply and inquiry sentiment.
type InquiryReplyOutput struct {
	Response  string `json:"response" validate:"required" jsonschema:"description=The generated response to the customer inquiry."`
	Sentiment string `json:"sentiment" validate:"required" jsonschema:"description=The sentiment of the customer inquiry: positive negative or neutral."`
}

var inquiryReplyTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("You are an AI-powered customer service agent. Your goal is to provide real-time, accurate answers to customer inquiries. Analyze the customer inquiry and generate a helpful and informative response. Also, determine the sentiment of the customer inquiry (positive, negative, or neutral)."),
	schema.UserMessage("Customer Inquiry: {customer_inquiry}{context_section}"),
)

// GenerateInquiryReply produces a contextual answer to a customer inquiry.
// The context section is omitted from the prompt entirely when absent.
func (c *Client) GenerateInquiryReply(ctx context.Context, in InquiryReplyInput) (*InquiryReplyOutput, error) {
	contextSection := ""
	if strings.TrimSpace(in.CustomerServiceContext) != "" {
		contextSection = "\n\nCustomer Service Context: " + in.CustomerServiceContext
	}

	out, err := invokeStructured[InquiryReplyInput, InquiryReplyOutput](ctx, c, "inquiry_reply", inquiryReplyTemplate, in, map[string]any{
		"customer_inquiry": in.CustomerInquiry,
		"context_section":  contextSection,
	})
	if err != nil {
		return nil, err
	}
	out.Sentiment = strings.ToLower(strings.TrimSpace(out.Sentiment))
	if !validSentimentLabel(out.Sentiment) {
		return nil, upstreamErr("inquiry_reply", fmt.Errorf("unexpected sentiment label %q", out.Sentiment))
	}
	return out, nil
}
