// Package router selects the backend adapter for each prompt.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/provider"
)

// Reply is the normalized result of a routed provider call.
type Reply struct {
	Text     string
	Provider string
	Category string
}

type rule struct {
	category string
	keywords []string
	adapter  provider.Adapter
}

// Router maps prompts to adapters, either by keyword classification or by
// sending everything to a single configured provider.
type Router struct {
	mode     string
	rules    []rule
	fallback provider.Adapter
}

// defaultRules are the keyword sets applied when keyword mode is active
// and the config names categories without keyword lists of its own.
var defaultRules = map[string][]string{
	"math": {"integral", "matrix", "logic", "function", "equation", "sin", "cos", "limit"},
	"code": {"code", "python", "javascript", "error", "bug", "function", "script", "compile"},
}

// New builds a Router from config against the given adapters, keyed by
// provider name. Rules naming unknown providers are skipped.
func New(cfg config.RouterConfig, adapters map[string]provider.Adapter) (*Router, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	fallback, err := pickFallback(cfg.Default, adapters)
	if err != nil {
		return nil, err
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "keyword"
	}

	r := &Router{mode: mode, fallback: fallback}
	if mode != "keyword" {
		return r, nil
	}

	for _, rc := range cfg.Rules {
		adapter, ok := adapters[rc.Provider]
		if !ok {
			continue // skip unknown providers
		}
		keywords := rc.Keywords
		if len(keywords) == 0 {
			keywords = defaultRules[rc.Category]
		}
		if len(keywords) == 0 {
			continue
		}
		lowered := make([]string, len(keywords))
		for i, k := range keywords {
			lowered[i] = strings.ToLower(k)
		}
		r.rules = append(r.rules, rule{
			category: rc.Category,
			keywords: lowered,
			adapter:  adapter,
		})
	}
	return r, nil
}

func pickFallback(name string, adapters map[string]provider.Adapter) (provider.Adapter, error) {
	if name == "" {
		// No explicit default: only unambiguous with one provider.
		if len(adapters) == 1 {
			for _, a := range adapters {
				return a, nil
			}
		}
		return nil, fmt.Errorf("router: default provider required with multiple providers")
	}
	a, ok := adapters[name]
	if !ok {
		return nil, fmt.Errorf("router: default provider %q not configured", name)
	}
	return a, nil
}

// Pick classifies the prompt and returns the adapter that should serve it
// plus the matched category. The first matching rule wins; no match falls
// through to the default adapter with an empty category.
func (r *Router) Pick(prompt string) (provider.Adapter, string) {
	if r.mode != "keyword" {
		return r.fallback, ""
	}
	lower := strings.ToLower(prompt)
	for _, rl := range r.rules {
		for _, kw := range rl.keywords {
			if strings.Contains(lower, kw) {
				return rl.adapter, rl.category
			}
		}
	}
	return r.fallback, ""
}

// Route invokes the selected adapter and normalizes its result. Every
// failure surfaces as a *provider.Error; no adapter-specific error shapes
// leak to the caller.
func (r *Router) Route(ctx context.Context, systemPrompt, prompt string) (Reply, error) {
	adapter, category := r.Pick(prompt)

	text, err := adapter.Invoke(ctx, systemPrompt, prompt)
	if err != nil {
		var perr *provider.Error
		if !errors.As(err, &perr) {
			perr = &provider.Error{
				Provider: adapter.Name(),
				Kind:     provider.FailUpstreamError,
				Detail:   err.Error(),
			}
		}
		return Reply{Provider: adapter.Name(), Category: category}, perr
	}
	return Reply{Text: text, Provider: adapter.Name(), Category: category}, nil
}
