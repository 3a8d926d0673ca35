package ai

import (
	"context"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// ChatbotInput is a single user message for the stateless chatbot.
type ChatbotInput struct {
	Message string `json:"message" validate:"required" jsonschema:"description=The user message to the chatbot."`
}

// ChatbotOutput is the chatbot reply.
type ChatbotOutput struct {
	Response string `json:"response" validate:"required" jsonschema:"description=The chatbot's response."`
}

var chatbotTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("You are a helpful AI assistant. Respond to the user's message."),
	schema.UserMessage("User Message: {message}"),
)

// ChatbotReply answers a single message with no conversation memory.
func (c *Client) ChatbotReply(ctx context.Context, in ChatbotInput) (*ChatbotOutput, error) {
	return invokeStructured[ChatbotInput, ChatbotOutput](ctx, c, "chatbot_reply", chatbotTemplate, in, map[string]any{
		"message": in.Message,
	})
}
