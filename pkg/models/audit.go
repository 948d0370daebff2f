package models

import "time"

// Request outcomes recorded in the audit log.
const (
	OutcomeOK      = "ok"
	OutcomeCached  = "cached"
	OutcomeDenied  = "denied"
	OutcomeBlocked = "blocked"
	OutcomeError   = "error"
)

// AuditEntry represents a single handled relay request.
type AuditEntry struct {
	RequestID  string    `json:"request_id"`
	UserHash   string    `json:"user_hash"`
	UserPrefix string    `json:"user_prefix"`
	Provider   string    `json:"provider"`
	Category   string    `json:"category"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	Response   string    `json:"response,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"`       // "prompts", "responses"
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	RequestID  string
	UserPrefix string
	Provider   string
	Outcome    string
	Since      time.Time
	Limit      int
}

// AuditStat holds aggregate audit counts for a provider/day combination.
type AuditStat struct {
	Provider string
	Day      string
	Count    int
}
