package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

// ChatAdapter calls an OpenAI-compatible chat-completions endpoint.
// Groq, DeepSeek and OpenRouter deployments all share this envelope and
// differ only in URL, model and key.
type ChatAdapter struct {
	name    string
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	session httpSession
}

// NewChatAdapter builds a chat-completions adapter from provider config.
func NewChatAdapter(cfg config.ProviderConfig, timeout time.Duration) *ChatAdapter {
	return &ChatAdapter{
		name:    cfg.Name,
		url:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
	}
}

// Name implements Adapter.
func (a *ChatAdapter) Name() string { return a.name }

// Invoke implements Adapter.
func (a *ChatAdapter) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	payload := models.ChatCompletionRequest{
		Model: a.model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Provider: a.name, Kind: FailNetworkError, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: a.name, Kind: FailNetworkError, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.session.get().Do(req)
	if err != nil {
		return "", classify(ctx, a.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(ctx, a.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamError(a.name, resp.StatusCode, respBody)
	}

	var envelope models.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return "", &Error{Provider: a.name, Kind: FailUpstreamError, Detail: "malformed response: " + err.Error()}
	}
	if len(envelope.Choices) == 0 {
		return "", emptyError(a.name)
	}

	text := strings.TrimSpace(envelope.Choices[0].Message.Content)
	if text == "" {
		return "", emptyError(a.name)
	}
	return text, nil
}

// Close implements Adapter.
func (a *ChatAdapter) Close() error {
	a.session.close()
	return nil
}
