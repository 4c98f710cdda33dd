// Package openai implements the Generator interface using an
// OpenAI-compatible Chat Completions API (OpenAI, Groq, vLLM, Ollama).
//
// Text-only requests use the configured model; multimodal requests use the
// vision model and send the image inline as a base64 data URL.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/generate"
	"github.com/nadzzz/medivoice/internal/message"
)

// Generator uses the Chat Completions API.
type Generator struct {
	client      openai.Client
	model       string
	visionModel string
	logger      *slog.Logger
}

// New creates a new chat completion generator from config.
func New(cfg config.GenerationConfig) *Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	vision := cfg.VisionModel
	if vision == "" {
		vision = cfg.Model
	}
	return &Generator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		visionModel: vision,
		logger:      slog.Default().With("component", "generate.openai"),
	}
}

// Name returns the backend identifier.
func (g *Generator) Name() string { return "openai" }

// Generate sends the conversation to the model and returns its reply.
func (g *Generator) Generate(ctx context.Context, req generate.Request) (string, error) {
	var (
		model    string
		messages []openai.ChatCompletionMessageParamUnion
	)
	switch r := req.(type) {
	case generate.TextOnly:
		model = g.model
		messages = convertHistory(r.History)
	case generate.Multimodal:
		model = g.visionModel
		messages = append(convertHistory(r.History), imageTurn(r.UserText, r.Image))
	default:
		return "", fmt.Errorf("unsupported generation request %T", req)
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", generate.ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", generate.ErrEmptyResponse
	}

	g.logger.Debug("generation complete", "model", model, "messages", len(messages), "reply_length", len(content))
	return content, nil
}

// Close is a no-op; the SDK client holds no long-lived resources.
func (g *Generator) Close() error { return nil }

func convertHistory(history []message.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case message.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func imageTurn(text string, img generate.Image) openai.ChatCompletionMessageParamUnion {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(text),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
	})
}
