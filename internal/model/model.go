// Package model calls the hosted language model. Generators never fail: provider errors are
// mapped to user-facing fallback replies.
package model

import (
	"context"
	"fmt"
	"io"
	"time"

	"dm-relay/internal/config"
)

// Roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User-facing replies used when the provider cannot answer.
const (
	ReplyRateLimited    = "I'm a bit overwhelmed right now. Please try again in a moment! 😅"
	ReplyContextTooLong = "I'm sorry, but this conversation has become too long for me to process. Let's start a fresh topic! 🔄"
	ReplyUnavailable    = "I apologize, but I'm having trouble processing that request. Could you try again or rephrase your message? 🙏"
)

// DefaultSystemPrompt is used when SYSTEM_PROMPT is empty.
const DefaultSystemPrompt = "You are a friendly assistant chatting with people in direct messages. " +
	"Keep replies conversational and concise, and ask a clarifying question when a request is ambiguous."

// Sampling parameters sent with every request.
const (
	maxTokens        = 500
	temperature      = 0.7
	topP             = 1
	frequencyPenalty = 0.2
	presencePenalty  = 0.2
)

// Turn is one prior message in the conversation, role and content only.
type Turn struct {
	Role    string
	Content string
}

// Generator produces a reply to text given prior turns.
type Generator interface {
	// Generate always returns a reply, substituting a fallback string on failure.
	Generate(ctx context.Context, history []Turn, text string) string
}

// Options shared by the providers.
type Options struct {
	Model        string
	SystemPrompt string
}

func (o Options) systemPrompt() string {
	if o.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return o.SystemPrompt
}

// New builds the Generator selected by cfg.LLMProvider. Gemini generators hold a client that
// should be released with io.Closer.
func New(ctx context.Context, cfg *config.Config) (Generator, error) {
	opts := Options{Model: cfg.LLMModel, SystemPrompt: cfg.SystemPrompt}
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey), opts), nil
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.LLMAPIKey, opts)
	default:
		return nil, fmt.Errorf("model: unknown provider %q", cfg.LLMProvider)
	}
}

// Close releases g if it holds resources.
func Close(g Generator) error {
	if c, ok := g.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WithTimeout bounds every Generate call on g by d. The returned Generator still closes g.
// d <= 0 returns g unchanged.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: d}
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

func (t *timeoutGenerator) Generate(ctx context.Context, history []Turn, text string) string {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, history, text)
}

func (t *timeoutGenerator) Close() error {
	return Close(t.next)
}
