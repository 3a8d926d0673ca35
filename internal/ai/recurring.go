package ai

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// RecurringIssuesInput is a batch of inquiry titles to mine for themes.
type RecurringIssuesInput struct {
	InquiryTitles []string `json:"inquiryTitles" validate:"dive,required" jsonschema:"description=A list of titles from customer inquiries."`
}

// RecurringIssue is one detected theme.
type RecurringIssue struct {
	Theme   string `json:"theme" validate:"required" jsonschema:"description=The common theme or category of the issue."`
	Summary string `json:"summary" validate:"required" jsonschema:"description=A brief summary of the recurring problem."`
	Count   int    `json:"count" validate:"gte=0" jsonschema:"description=The number of inquiries related to this theme."`
}

// RecurringIssuesOutput lists detected themes, most frequent first.
type RecurringIssuesOutput struct {
	RecurringIssues []RecurringIssue `json:"recurringIssues" jsonschema:"description=A list of detected recurring issues sorted from most to least frequent."`
}

var recurringIssuesTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("You are a data analyst specializing in customer support trends. Your task is to identify recurring issues from a list of customer inquiry titles."),
	schema.UserMessage("Analyze the following inquiry titles:\n{inquiry_titles}\nGroup similar issues into themes. For each theme, provide a concise summary of the problem and count how many inquiries fall into that theme. Return a list of these themes, ordered by the count from highest to lowest. If there are no recurring issues, return an empty array."),
)

// DetectRecurringIssues groups inquiry titles into themes. An empty title
// list short-circuits to an empty result without touching the network.
func (c *Client) DetectRecurringIssues(ctx context.Context, in RecurringIssuesInput) (*RecurringIssuesOutput, error) {
	if len(in.InquiryTitles) == 0 {
		return &RecurringIssuesOutput{RecurringIssues: []RecurringIssue{}}, nil
	}

	var list strings.Builder
	for _, title := range in.InquiryTitles {
		list.WriteString("- ")
		list.WriteString(title)
		list.WriteString("\n")
	}

	out, err := invokeStructured[RecurringIssuesInput, RecurringIssuesOutput](ctx, c, "detect_recurring_issues", recurringIssuesTemplate, in, map[string]any{
		"inquiry_titles": list.String(),
	})
	if err != nil {
		return nil, err
	}
	if out.RecurringIssues == nil {
		out.RecurringIssues = []RecurringIssue{}
	}
	// The prompt asks for descending order; enforce it regardless. Equal
	// counts keep the model's relative order.
	sort.SliceStable(out.RecurringIssues, func(i, j int) bool {
		return out.RecurringIssues[i].Count > out.RecurringIssues[j].Count
	})
	return out, nil
}
