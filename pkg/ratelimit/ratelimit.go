// Package ratelimit bounds the rate of LLM-initiated MCP tool invocations.
// It uses a token bucket per tool so a misbehaving model cannot hammer the
// server subprocess with chained tool calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/StacklokLabs/mkc/pkg/session"
)

const (
	// DefaultLimit is the default number of invocations per minute per tool
	DefaultLimit = 60

	cleanupInterval = 10 * time.Minute
	bucketTimeout   = 30 * time.Minute
)

// RateLimiter limits tool invocations per tool name
type RateLimiter struct {
	mu            sync.RWMutex
	limits        map[string]int // Tool name to invocations per minute
	defaultLimit  int
	buckets       map[string]*bucket
	cleanupTicker *time.Ticker
}

// bucket is a token bucket for one tool
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// Option configures a RateLimiter
type Option func(*RateLimiter)

// WithToolLimit sets the rate limit for a specific tool
func WithToolLimit(toolName string, perMinute int) Option {
	return func(rl *RateLimiter) {
		rl.limits[toolName] = perMinute
	}
}

// WithDefaultLimit sets the default rate limit for all tools
func WithDefaultLimit(perMinute int) Option {
	return func(rl *RateLimiter) {
		rl.defaultLimit = perMinute
	}
}

// New creates a rate limiter with the given options
func New(opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		limits:       make(map[string]int),
		defaultLimit: DefaultLimit,
		buckets:      make(map[string]*bucket),
	}

	for _, opt := range opts {
		opt(rl)
	}

	// Remove buckets for tools that have gone idle
	rl.cleanupTicker = time.NewTicker(cleanupInterval)
	go func() {
		for range rl.cleanupTicker.C {
			rl.cleanup()
		}
	}()

	return rl
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for tool, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastSeen) > bucketTimeout {
			delete(rl.buckets, tool)
		}
		b.mu.Unlock()
	}
}

// Stop stops the cleanup ticker
func (rl *RateLimiter) Stop() {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}
}

func (rl *RateLimiter) getBucket(tool string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, ok := rl.buckets[tool]; !ok {
		rl.buckets[tool] = &bucket{
			tokens:   float64(rl.getLimit(tool)), // Start with a full bucket
			lastSeen: time.Now(),
		}
	}
	return rl.buckets[tool]
}

// getLimit must be called with rl.mu held or from a context where the limits
// map is no longer mutated
func (rl *RateLimiter) getLimit(tool string) int {
	if limit, ok := rl.limits[tool]; ok {
		return limit
	}
	return rl.defaultLimit
}

// Allow reports whether one invocation of the tool may proceed now,
// consuming a token if so
func (rl *RateLimiter) Allow(tool string) bool {
	b := rl.getBucket(tool)

	rl.mu.RLock()
	limit := rl.getLimit(tool)
	rl.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastSeen).Seconds()
	b.lastSeen = now

	// Refill based on elapsed time, capped at the per-minute limit
	b.tokens = min(b.tokens+elapsed*float64(limit)/60.0, float64(limit))

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware returns a tool middleware that rejects invocations over the
// limit with a ToolError, which is fed back to the model as the tool result
func (rl *RateLimiter) Middleware() session.ToolMiddleware {
	return func(next session.ToolInvoker) session.ToolInvoker {
		return func(ctx context.Context, name string, args map[string]any) (string, error) {
			if !rl.Allow(name) {
				return "", &session.ToolError{Tool: name, Reason: "rate limit exceeded, try again later"}
			}
			return next(ctx, name, args)
		}
	}
}
