// Package handler reports service readiness over HTTP (GET /health) and the standard gRPC health protocol.
package handler

import (
	"context"
	"time"
)

const checkTimeout = 2 * time.Second

// Pinger checks connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the readiness probes. Nil probes are skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. pinger and policy may be nil.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns per-component results ("ok" or the error text) and whether every component is healthy.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	components := make(map[string]string, 2)
	healthy := true
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			components["database"] = err.Error()
			healthy = false
		} else {
			components["database"] = "ok"
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			components["policy"] = err.Error()
			healthy = false
		} else {
			components["policy"] = "ok"
		}
	}
	return components, healthy
}
