package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

func textgenConfig(url string) config.ProviderConfig {
	return config.ProviderConfig{
		Name:   "codegen",
		Kind:   "textgen",
		URL:    url,
		APIKey: "hf-test",
	}
}

func TestTextGenInvoke(t *testing.T) {
	var gotReq models.GenerationRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode([]models.Generation{
			{GeneratedText: gotReq.Inputs + " here is your code"},
		})
	}))
	defer srv.Close()

	a := NewTextGenAdapter(textgenConfig(srv.URL), 5*time.Second)
	defer a.Close()

	text, err := a.Invoke(context.Background(), "be a code helper", "write a loop")
	if err != nil {
		t.Fatal(err)
	}
	// The echoed prompt ends with "Assistant:" so only the completion
	// survives extraction.
	if text != "here is your code" {
		t.Errorf("unexpected text: %q", text)
	}
	if gotReq.Parameters.MaxNewTokens != 512 {
		t.Errorf("expected max_new_tokens 512, got %d", gotReq.Parameters.MaxNewTokens)
	}
}

func TestTextGenNoSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.GenerationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode([]models.Generation{
			{GeneratedText: req.Inputs + " and the answer"},
		})
	}))
	defer srv.Close()

	a := NewTextGenAdapter(textgenConfig(srv.URL), 5*time.Second)
	defer a.Close()

	text, err := a.Invoke(context.Background(), "", "question")
	if err != nil {
		t.Fatal(err)
	}
	if text != "and the answer" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestTextGenEmptyGenerations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	a := NewTextGenAdapter(textgenConfig(srv.URL), 5*time.Second)
	defer a.Close()

	_, err := a.Invoke(context.Background(), "", "q")
	if kind := failureKind(t, err); kind != FailEmptyResponse {
		t.Errorf("expected empty_response, got %s", kind)
	}
}

func TestTextGenUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewTextGenAdapter(textgenConfig(srv.URL), 5*time.Second)
	defer a.Close()

	_, err := a.Invoke(context.Background(), "", "q")
	if kind := failureKind(t, err); kind != FailUpstreamError {
		t.Errorf("expected upstream_error, got %s", kind)
	}
}

func TestExtractCompletion(t *testing.T) {
	tests := []struct {
		name      string
		generated string
		prompt    string
		want      string
	}{
		{"assistant marker", "sys\nUser: q\nAssistant: the answer", "sys\nUser: q\nAssistant:", "the answer"},
		{"prompt echo only", "a prompt and more", "a prompt", "and more"},
		{"no overlap", "plain output", "unrelated", "plain output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractCompletion(tt.generated, tt.prompt); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
