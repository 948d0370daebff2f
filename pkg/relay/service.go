// Package relay sequences a request through moderation, the cache, the
// rate limiter and the provider router, and guarantees cleanup on every
// exit path.
package relay

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/audit"
	"github.com/chatrelay-ai/chatrelay/pkg/cache"
	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/limiter"
	"github.com/chatrelay-ai/chatrelay/pkg/models"
	"github.com/chatrelay-ai/chatrelay/pkg/router"
)

// fallbackMessage is the only thing an end user sees when a provider
// fails. Detail stays in the operator log.
const fallbackMessage = "The AI service is busy right now, please try again later."

// groundingRule is appended to the system prompt when strict grounding is
// active.
const groundingRule = "Answer only from the facts provided above. If the answer is not covered by them, say you do not know instead of guessing."

const (
	sweepInterval      = 5 * time.Minute
	dailyResetInterval = 24 * time.Hour
)

// Service is the request orchestrator.
type Service struct {
	cfg          *config.Config
	limiter      *limiter.Limiter
	cache        *cache.Cache
	router       *router.Router
	auditor      *audit.Logger
	systemPrompt string
	blocked      []string

	done chan struct{}
	wg   sync.WaitGroup
}

// New wires a Service. The auditor may be nil.
func New(cfg *config.Config, lim *limiter.Limiter, c *cache.Cache, r *router.Router, a *audit.Logger) *Service {
	systemPrompt := cfg.SystemPrompt
	if cfg.StrictGrounding {
		systemPrompt = systemPrompt + "\n\n" + groundingRule
	}

	blocked := make([]string, 0, len(cfg.Moderation.BlockedWords))
	for _, w := range cfg.Moderation.BlockedWords {
		blocked = append(blocked, strings.ToLower(w))
	}

	return &Service{
		cfg:          cfg,
		limiter:      lim,
		cache:        c,
		router:       r,
		auditor:      a,
		systemPrompt: systemPrompt,
		blocked:      blocked,
		done:         make(chan struct{}),
	}
}

// Handle runs one inbound request through the full admission sequence and
// returns exactly one of Text, Denied or Error.
func (s *Service) Handle(ctx context.Context, requestID string, req models.AskRequest) models.AskResponse {
	start := time.Now()

	if word := s.blockedWord(req.Prompt); word != "" {
		resp := models.AskResponse{Denied: s.moderationMessage()}
		s.record(requestID, req, "", "", models.OutcomeBlocked, "blocked word: "+word, resp, start)
		return resp
	}

	// With charge_cached off, cached replies cost nothing: the cache is
	// consulted before any limiter bookkeeping.
	if !s.cfg.Limits.ChargeCached {
		if text, ok := s.cacheLookup(req); ok {
			resp := models.AskResponse{Text: text}
			s.record(requestID, req, "", "", models.OutcomeCached, "", resp, start)
			return resp
		}
	}

	if err := s.limiter.Acquire(req.UserID, req.IsAdmin); err != nil {
		var denied *limiter.DeniedError
		reason := err.Error()
		if errors.As(err, &denied) {
			reason = string(denied.Reason)
		}
		resp := models.AskResponse{Denied: err.Error()}
		s.record(requestID, req, "", "", models.OutcomeDenied, reason, resp, start)
		return resp
	}

	resp, reply, outcome, reason := s.invoke(ctx, req)
	s.record(requestID, req, reply.Provider, reply.Category, outcome, reason, resp, start)
	return resp
}

// invoke holds the acquired slot for the cache-recheck and provider call.
// The deferred End releases the slot on every branch, including panics.
func (s *Service) invoke(ctx context.Context, req models.AskRequest) (models.AskResponse, router.Reply, string, string) {
	defer s.limiter.End()

	if s.cfg.Limits.ChargeCached {
		if text, ok := s.cacheLookup(req); ok {
			return models.AskResponse{Text: text}, router.Reply{}, models.OutcomeCached, ""
		}
	}

	reply, err := s.router.Route(ctx, s.systemPrompt, req.Prompt)
	if err != nil {
		log.Printf("provider call failed: %v", err)
		return models.AskResponse{Error: fallbackMessage}, reply, models.OutcomeError, err.Error()
	}

	if s.cfg.Cache.Enabled {
		s.cache.Store(req.UserID, req.Prompt, reply.Text)
	}
	return models.AskResponse{Text: reply.Text}, reply, models.OutcomeOK, ""
}

func (s *Service) cacheLookup(req models.AskRequest) (string, bool) {
	if !s.cfg.Cache.Enabled {
		return "", false
	}
	return s.cache.Lookup(req.UserID, req.Prompt)
}

func (s *Service) blockedWord(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, w := range s.blocked {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}

func (s *Service) moderationMessage() string {
	if s.cfg.Moderation.Message != "" {
		return s.cfg.Moderation.Message
	}
	return "Please keep the conversation civil."
}

// record writes the audit entry off the request path.
func (s *Service) record(requestID string, req models.AskRequest, providerName, category, outcome, reason string, resp models.AskResponse, start time.Time) {
	if s.auditor == nil {
		return
	}
	userHash, userPrefix := audit.HashUserID(req.UserID)
	entry := models.AuditEntry{
		RequestID:  requestID,
		UserHash:   userHash,
		UserPrefix: userPrefix,
		Provider:   providerName,
		Category:   category,
		Outcome:    outcome,
		Reason:     reason,
		Prompt:     req.Prompt,
		Response:   resp.Text,
		LatencyMs:  time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	go func() {
		if err := s.auditor.Log(context.Background(), entry); err != nil {
			log.Printf("audit log error: %v", err)
		}
	}()
}

// ResetAllLimits clears every user's daily counts and cooldowns.
func (s *Service) ResetAllLimits() {
	s.limiter.ResetDaily()
}

// ResetUserLimits clears one user's daily count and cooldown.
func (s *Service) ResetUserLimits(userID string) {
	s.limiter.ResetUser(userID)
}

// UsageSnapshot reports a user's quota position.
func (s *Service) UsageSnapshot(userID string, isAdmin bool) models.UsageSnapshot {
	return s.limiter.Snapshot(userID, isAdmin)
}

// GetStatus reports live concurrency and cache occupancy.
func (s *Service) GetStatus() models.Status {
	return models.Status{
		ActiveRequests: s.limiter.Active(),
		MaxConcurrent:  s.limiter.MaxConcurrent(),
		CacheSize:      s.cache.Len(),
	}
}

// Start launches the background sweeps: cache expiry every five minutes
// and the daily quota reset every 24 hours. Each tick is isolated so one
// failure cannot kill the loop.
func (s *Service) Start() {
	s.wg.Add(2)
	go s.loop(sweepInterval, func() {
		if n := s.cache.SweepExpired(); n > 0 {
			log.Printf("cache sweep removed %d expired entries", n)
		}
	})
	go s.loop(dailyResetInterval, func() {
		s.limiter.ResetDaily()
		log.Printf("daily limits reset")
	})
}

// Stop halts the background sweeps.
func (s *Service) Stop() {
	close(s.done)
	s.wg.Wait()
}

func (s *Service) loop(interval time.Duration, tick func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			runIsolated(tick)
		}
	}
}

func runIsolated(tick func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("background sweep panic: %v", r)
		}
	}()
	tick()
}
