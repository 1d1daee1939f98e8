package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Actions throttled per user.
const (
	ActionSendMessage       = "send_message"
	ActionStartConversation = "start_conversation"
	ActionTyping            = "typing"
)

type bucketConfig struct {
	maxTokens  int
	refillRate int
	refillTime time.Duration
}

var bucketConfigs = map[string]bucketConfig{
	ActionSendMessage:       {maxTokens: 10, refillRate: 1, refillTime: 6 * time.Second},
	ActionStartConversation: {maxTokens: 5, refillRate: 1, refillTime: 12 * time.Minute},
	ActionTyping:            {maxTokens: 30, refillRate: 1, refillTime: 2 * time.Second},
}

var defaultConfig = bucketConfig{maxTokens: 20, refillRate: 1, refillTime: 3 * time.Second}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate int
	refillTime time.Duration
	lastRefill time.Time
}

func newTokenBucket(cfg bucketConfig) *tokenBucket {
	return &tokenBucket{
		tokens:     cfg.maxTokens,
		maxTokens:  cfg.maxTokens,
		refillRate: cfg.refillRate,
		refillTime: cfg.refillTime,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int(elapsed/tb.refillTime) * tb.refillRate

	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}

	nextRefill := tb.lastRefill.Add(tb.refillTime)
	return false, nextRefill.Sub(now)
}

// Limiter throttles per-user actions with token buckets.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
}

func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*tokenBucket),
	}
}

// Allow reports whether the action may proceed, and how long to wait when
// it may not.
func (l *Limiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action

	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		if bucket, exists = l.buckets[key]; !exists {
			cfg, ok := bucketConfigs[action]
			if !ok {
				cfg = defaultConfig
			}
			bucket = newTokenBucket(cfg)
			l.buckets[key] = bucket
		}
		l.mu.Unlock()
	}

	return bucket.allow()
}

// StartCleanup drops buckets idle for over an hour, until ctx ends.
func (l *Limiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, bucket := range l.buckets {
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastRefill) > time.Hour
		bucket.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}
