package ai

import (
	"context"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// ResolveInquiryInput identifies the inquiry being resolved.
type ResolveInquiryInput struct {
	InquiryTitle   string `json:"inquiryTitle" validate:"required" jsonschema:"description=The title of the customer inquiry."`
	InquiryMessage string `json:"inquiryMessage" validate:"required" jsonschema:"description=The latest message from the customer."`
}

// ResolveInquiryOutput is the attempted step-by-step resolution. Callers
// must treat an empty ResolutionSteps as "not resolved" regardless of
// IsResolved; the decision to fall back keys on step emptiness alone.
type ResolveInquiryOutput struct {
	IsResolved        bool     `json:"isResolved" jsonschema:"description=Whether the provided steps are likely to fully resolve the issue."`
	ResolutionSteps   []string `json:"resolutionSteps" jsonschema:"description=A list of concrete actionable steps for the user to take. Keep steps concise."`
	ResolutionSummary string   `json:"resolutionSummary" jsonschema:"description=A concluding summary of the resolution steps and what to do if the issue persists."`
}

var resolveInquiryTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("You are an expert customer support agent. Your task is to resolve a customer's issue based on their inquiry.\n\nAnalyze the inquiry title and the customer's message.\n- If you can provide a clear, step-by-step solution, populate the 'resolutionSteps' array.\n- Determine if your solution is likely to fully resolve the problem and set 'isResolved' to true or false.\n- Provide a brief 'resolutionSummary' to explain the outcome or next steps.\n- If you cannot resolve the issue or need more information, leave 'resolutionSteps' empty and set 'isResolved' to false."),
	schema.UserMessage("Inquiry Title: {inquiry_title}\nCustomer Message: {inquiry_message}"),
)

// ResolveInquiry attempts an automatic step-by-step resolution.
func (c *Client) ResolveInquiry(ctx context.Context, in ResolveInquiryInput) (*ResolveInquiryOutput, error) {
	return invokeStructured[ResolveInquiryInput, ResolveInquiryOutput](ctx, c, "resolve_inquiry", resolveInquiryTemplate, in, map[string]any{
		"inquiry_title":   in.InquiryTitle,
		"inquiry_message": in.InquiryMessage,
	})
}
