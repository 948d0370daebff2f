package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

// MathAdapter calls a computational math engine. The query travels as a
// URL parameter and the answer comes back as titled pods of plaintext.
// The system prompt has no slot in this API and is ignored.
type MathAdapter struct {
	name    string
	url     string
	appID   string
	timeout time.Duration
	session httpSession
}

// NewMathAdapter builds a math-engine adapter from provider config.
// The api_key field carries the engine's application ID.
func NewMathAdapter(cfg config.ProviderConfig, timeout time.Duration) *MathAdapter {
	return &MathAdapter{
		name:    cfg.Name,
		url:     strings.TrimSuffix(cfg.URL, "/"),
		appID:   cfg.APIKey,
		timeout: timeout,
	}
}

// Name implements Adapter.
func (a *MathAdapter) Name() string { return a.name }

// Invoke implements Adapter.
func (a *MathAdapter) Invoke(ctx context.Context, _, userPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("input", userPrompt)
	params.Set("appid", a.appID)
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"?"+params.Encode(), nil)
	if err != nil {
		return "", &Error{Provider: a.name, Kind: FailNetworkError, Detail: err.Error()}
	}

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

	var envelope models.MathQueryEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return "", &Error{Provider: a.name, Kind: FailUpstreamError, Detail: "malformed response: " + err.Error()}
	}

	text := formatPods(envelope.QueryResult.Pods)
	if text == "" {
		return "", emptyError(a.name)
	}
	return text, nil
}

// formatPods renders each pod with plaintext as "**Title**: text" lines.
func formatPods(pods []models.MathPod) string {
	var lines []string
	for _, pod := range pods {
		if len(pod.SubPods) == 0 {
			continue
		}
		text := strings.TrimSpace(pod.SubPods[0].PlainText)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", pod.Title, text))
	}
	return strings.Join(lines, "\n")
}

// Close implements Adapter.
func (a *MathAdapter) Close() error {
	a.session.close()
	return nil
}
