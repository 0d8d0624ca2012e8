package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const codeContextLengthExceeded = "context_length_exceeded"

// ChatClient is the subset of openai.Client used here; it is easy to mock in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient returns a client for any OpenAI-compatible host.
func NewOpenAIClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAIGenerator generates replies through the chat completions API.
type OpenAIGenerator struct {
	client ChatClient
	opts   Options
}

func NewOpenAIGenerator(client ChatClient, opts Options) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, opts: opts}
}

// Generate sends the system prompt, history and text as one completion request.
func (g *OpenAIGenerator) Generate(ctx context.Context, history []Turn, text string) string {
	resp, err := g.client.CreateChatCompletion(ctx, g.request(history, text))
	if err != nil {
		log.Printf("model: completion failed: %v", err)
		return fallbackForOpenAI(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		log.Printf("model: completion returned no content")
		return ReplyUnavailable
	}
	return resp.Choices[0].Message.Content
}

func (g *OpenAIGenerator) request(history []Turn, text string) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: g.opts.systemPrompt()})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
	return openai.ChatCompletionRequest{
		Model:            g.opts.Model,
		Messages:         msgs,
		MaxTokens:        maxTokens,
		Temperature:      temperature,
		TopP:             topP,
		FrequencyPenalty: frequencyPenalty,
		PresencePenalty:  presencePenalty,
	}
}

func fallbackForOpenAI(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return ReplyRateLimited
		}
		if apiErr.Code != nil && fmt.Sprint(apiErr.Code) == codeContextLengthExceeded {
			return ReplyContextTooLong
		}
		return ReplyUnavailable
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return ReplyRateLimited
	}
	return ReplyUnavailable
}
