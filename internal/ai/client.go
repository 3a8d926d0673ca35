package ai

import (
	"context"
	"fmt"

	"resolvego/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/go-playground/validator/v10"
	"google.golang.org/genai"
)

const defaultTranscriptionModel = "gemini-2.5-flash"

// Client bundles the completion model behind every capability. It holds no
// request state and is safe for concurrent use.
type Client struct {
	chat        model.BaseChatModel
	speech      *genai.Client
	speechModel string
	validate    *validator.Validate
}

// NewClient builds the capability client for the provider selected in cfg.
// All handles are passed in explicitly; nothing is read from process-global
// state after construction.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	provider := cfg.AI.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	c := &Client{
		speechModel: cfg.AI.TranscriptionModel,
		validate:    validator.New(),
	}
	if c.speechModel == "" {
		c.speechModel = defaultTranscriptionModel
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		c.speech = client
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	c.chat = chatModel

	// Transcription always runs on gemini; when another provider drives the
	// text capabilities, a configured gemini key still enables speech.
	if c.speech == nil {
		if gemCfg, ok := cfg.Providers["gemini"]; ok && gemCfg.APIKey != "" {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: gemCfg.APIKey})
			if err != nil {
				return nil, fmt.Errorf("gemini client: %w", err)
			}
			c.speech = client
		}
	}

	return c, nil
}
