// Package provider contains the backend adapters that normalize external
// AI APIs into a single invoke contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// FailureKind classifies why an adapter call produced no usable text.
type FailureKind string

const (
	FailTimeout       FailureKind = "timeout"
	FailUpstreamError FailureKind = "upstream_error"
	FailEmptyResponse FailureKind = "empty_response"
	FailNetworkError  FailureKind = "network_error"
)

// Error is the only error type adapters return. Detail is operator-facing
// and never shown to end users.
type Error struct {
	Provider string
	Kind     FailureKind
	Detail   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Detail)
}

// Adapter wraps one external AI backend.
type Adapter interface {
	// Name returns the configured provider name.
	Name() string
	// Invoke sends one prompt and returns the extracted, trimmed reply
	// text. Any failure is reported as a *provider.Error.
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Close releases the adapter's network resources.
	Close() error
}

// httpSession is the lazily created HTTP resource shared by the adapters:
// built on first use, released once on Close, never leaked per request.
type httpSession struct {
	once   sync.Once
	client *http.Client
}

func (s *httpSession) get() *http.Client {
	s.once.Do(func() {
		s.client = &http.Client{}
	})
	return s.client
}

func (s *httpSession) close() {
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
}

// classify converts a transport error into a *provider.Error, telling a
// fired deadline apart from other network failures.
func classify(ctx context.Context, name string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &Error{Provider: name, Kind: FailTimeout, Detail: err.Error()}
	}
	return &Error{Provider: name, Kind: FailNetworkError, Detail: err.Error()}
}

// upstreamError builds the non-2xx failure with status and body detail.
func upstreamError(name string, status int, body []byte) *Error {
	detail := fmt.Sprintf("status %d: %s", status, truncate(string(body), 512))
	return &Error{Provider: name, Kind: FailUpstreamError, Detail: detail}
}

func emptyError(name string) *Error {
	return &Error{Provider: name, Kind: FailEmptyResponse, Detail: "extracted text was empty"}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// withTimeout applies the adapter's request timeout unless the caller
// already set an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
