package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// chatFunc sends text after history and returns the raw response.
type chatFunc func(ctx context.Context, history []*genai.Content, text string) (*genai.GenerateContentResponse, error)

// GeminiGenerator generates replies with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	send   chatFunc
}

// NewGeminiGenerator creates a Gemini client for apiKey. Call Close when done.
func NewGeminiGenerator(ctx context.Context, apiKey string, opts Options) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("model: create gemini client: %w", err)
	}
	m := client.GenerativeModel(opts.Model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.systemPrompt())}}
	m.SetMaxOutputTokens(maxTokens)
	m.SetTemperature(temperature)
	m.SetTopP(topP)

	g := &GeminiGenerator{client: client}
	g.send = func(ctx context.Context, history []*genai.Content, text string) (*genai.GenerateContentResponse, error) {
		cs := m.StartChat()
		cs.History = history
		return cs.SendMessage(ctx, genai.Text(text))
	}
	return g, nil
}

// Generate replays history as a chat session and sends text.
func (g *GeminiGenerator) Generate(ctx context.Context, history []Turn, text string) string {
	resp, err := g.send(ctx, geminiHistory(history), text)
	if err != nil {
		log.Printf("model: gemini request failed: %v", err)
		return fallbackForGemini(err)
	}
	reply := geminiText(resp)
	if strings.TrimSpace(reply) == "" {
		log.Printf("model: gemini returned no text")
		return ReplyUnavailable
	}
	return reply
}

func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func geminiHistory(history []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	return out
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func fallbackForGemini(err error) string {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return ReplyRateLimited
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return ReplyRateLimited
	}
	return ReplyUnavailable
}
