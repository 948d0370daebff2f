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

// TextGenAdapter calls a text-generation inference endpoint that returns
// a single-generation array envelope and echoes the prompt back in the
// generated text.
type TextGenAdapter struct {
	name    string
	url     string
	apiKey  string
	timeout time.Duration
	session httpSession
}

// NewTextGenAdapter builds a text-generation adapter from provider config.
func NewTextGenAdapter(cfg config.ProviderConfig, timeout time.Duration) *TextGenAdapter {
	return &TextGenAdapter{
		name:    cfg.Name,
		url:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}
}

// Name implements Adapter.
func (a *TextGenAdapter) Name() string { return a.name }

// Invoke implements Adapter.
func (a *TextGenAdapter) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	fullPrompt := userPrompt
	if systemPrompt != "" {
		fullPrompt = systemPrompt + "\n\nUser: " + userPrompt + "\nAssistant:"
	}

	payload := models.GenerationRequest{
		Inputs: fullPrompt,
		Parameters: models.GenerationParameters{
			MaxNewTokens: 512,
			Temperature:  0.7,
		},
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

	var generations []models.Generation
	if err := json.Unmarshal(respBody, &generations); err != nil {
		return "", &Error{Provider: a.name, Kind: FailUpstreamError, Detail: "malformed response: " + err.Error()}
	}
	if len(generations) == 0 {
		return "", emptyError(a.name)
	}

	text := extractCompletion(generations[0].GeneratedText, fullPrompt)
	if text == "" {
		return "", emptyError(a.name)
	}
	return text, nil
}

// extractCompletion strips the echoed prompt from generated text. The API
// returns the whole exchange, so keep only what follows the last
// "Assistant:" marker, falling back to removing the prompt itself.
func extractCompletion(generated, prompt string) string {
	if idx := strings.LastIndex(generated, "Assistant:"); idx >= 0 {
		return strings.TrimSpace(generated[idx+len("Assistant:"):])
	}
	return strings.TrimSpace(strings.TrimPrefix(generated, prompt))
}

// Close implements Adapter.
func (a *TextGenAdapter) Close() error {
	a.session.close()
	return nil
}
