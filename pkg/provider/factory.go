package provider

import (
	"fmt"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/config"
)

// FromConfig builds the adapter for one configured provider.
func FromConfig(cfg config.ProviderConfig, timeout time.Duration) (Adapter, error) {
	switch cfg.Kind {
	case "", "chat":
		return NewChatAdapter(cfg, timeout), nil
	case "textgen":
		return NewTextGenAdapter(cfg, timeout), nil
	case "math":
		return NewMathAdapter(cfg, timeout), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}
