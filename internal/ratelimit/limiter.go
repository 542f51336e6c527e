// Package ratelimit admits or rejects requests per caller identity using a
// sliding window. Backends are swappable behind Limiter.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Limiter decides whether one more request from key fits inside the
// trailing window. A denial is not an error.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Rule is a request budget.
type Rule struct {
	Max    int
	Window time.Duration
}

// RetryAfterSeconds is the Retry-After hint for a denied request.
func (r Rule) RetryAfterSeconds() int {
	s := int(r.Window / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// FailurePolicy decides what happens when the limiter itself errors.
type FailurePolicy int

const (
	// FailClosed denies the request. Used for economy mutations.
	FailClosed FailurePolicy = iota
	// FailOpen admits the request. Used for coarse abuse filtering.
	FailOpen
)

func (p FailurePolicy) String() string {
	if p == FailOpen {
		return "fail-open"
	}
	return "fail-closed"
}

// Gate binds a limiter to a key namespace and a failure policy.
type Gate struct {
	limiter Limiter
	scope   string
	policy  FailurePolicy
	errors  atomic.Int64
	denied  atomic.Int64
}

// NewGate creates a gate. scope prefixes every key so that budgets of
// different operations never share counters.
func NewGate(limiter Limiter, scope string, policy FailurePolicy) *Gate {
	return &Gate{limiter: limiter, scope: scope, policy: policy}
}

// Admit reports whether the request identified by id may proceed.
func (g *Gate) Admit(ctx context.Context, id string, rule Rule) bool {
	key := g.scope + ":" + id

	allowed, err := g.limiter.Allow(ctx, key, rule.Max, rule.Window)
	if err != nil {
		g.errors.Add(1)
		allowed = g.policy == FailOpen
		log.WithFields(log.Fields{
			"component": "ratelimit",
			"scope":     g.scope,
			"policy":    g.policy.String(),
			"allowed":   allowed,
		}).WithError(err).Warn("Rate limit check failed")
		return allowed
	}

	if !allowed {
		g.denied.Add(1)
	}
	return allowed
}

// Stats returns the number of limiter errors and denials seen so far.
func (g *Gate) Stats() (errors, denied int64) {
	return g.errors.Load(), g.denied.Load()
}
