package models

// UsageSnapshot reports one user's position against the daily quota.
type UsageSnapshot struct {
	UserID    string `json:"user_id"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Status reports the live state of the relay core.
type Status struct {
	ActiveRequests int `json:"active_requests"`
	MaxConcurrent  int `json:"max_concurrent"`
	CacheSize      int `json:"cache_size"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
