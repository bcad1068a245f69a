// Package dedup collapses identical submissions seen within a short window.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/exedis/omnicore-back/internal/logging"
)

const (
	DefaultWindow        = 60 * time.Second
	DefaultSweepInterval = 120 * time.Second
)

// Result is the outcome of a Check.
type Result struct {
	IsDuplicate bool
	Key         string
}

// Stats describes the guard's cache.
type Stats struct {
	CacheSize         int   `json:"cacheSize"`
	WindowMs          int64 `json:"windowMs"`
	CleanupIntervalMs int64 `json:"cleanupIntervalMs"`
}

// Guard is an in-memory, time-windowed duplicate detector.
// Entries are lost on restart.
type Guard struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	window   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a Guard. Non-positive durations fall back to the defaults.
func New(window, sweepInterval time.Duration, logger *logging.Logger, opts ...Option) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	g := &Guard{
		seen:     make(map[string]time.Time),
		window:   window,
		interval: sweepInterval,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reports whether an identical submission was accepted within the window.
// A duplicate does not refresh the stored timestamp.
func (g *Guard) Check(ownerID, siteName, formName string, data map[string]interface{}) Result {
	key, err := Key(ownerID, siteName, formName, data)
	if err != nil {
		g.logger.Warnf("Dedup hash failed, accepting submission: %v", err)
		return Result{}
	}

	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.seen[key]; ok && now.Sub(last) < g.window {
		return Result{IsDuplicate: true, Key: key}
	}
	g.seen[key] = now
	return Result{Key: key}
}

// Forget releases a key recorded by Check so the same submission can be
// accepted again, e.g. after it failed to reach the queue.
func (g *Guard) Forget(key string) {
	if key == "" {
		return
	}
	g.mu.Lock()
	delete(g.seen, key)
	g.mu.Unlock()
}

// Key hashes the identifying fields of a submission. encoding/json writes map
// keys in sorted order, so equal payloads always produce equal keys.
func Key(ownerID, siteName, formName string, data map[string]interface{}) (string, error) {
	raw, err := json.Marshal(map[string]interface{}{
		"userId":   ownerID,
		"siteName": siteName,
		"formName": formName,
		"data":     data,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Start sweeps expired entries until ctx is cancelled.
func (g *Guard) Start(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.logger.Debugf("Dedup sweep removed %d entries", n)
			}
		}
	}
}

// Sweep removes entries older than the window and returns how many were removed.
func (g *Guard) Sweep() int {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, last := range g.seen {
		if now.Sub(last) >= g.window {
			delete(g.seen, key)
			removed++
		}
	}
	return removed
}

// Stats returns the current cache size and timing settings.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	size := len(g.seen)
	g.mu.Unlock()
	return Stats{
		CacheSize:         size,
		WindowMs:          g.window.Milliseconds(),
		CleanupIntervalMs: g.interval.Milliseconds(),
	}
}

// Clear drops every cached entry.
func (g *Guard) Clear() {
	g.mu.Lock()
	g.seen = make(map[string]time.Time)
	g.mu.Unlock()
}
