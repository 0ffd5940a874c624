// Package gate implements the weighted request budget shared by all REST calls.
package gate

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/coachpo/zebpay/errs"
)

// Gate is a token-bucket limiter measured in request weight per refill period.
// Permits are released by time, not by call; every outbound REST request must
// acquire its weight before issuing the HTTP request.
type Gate struct {
	limiter *rate.Limiter
	budget  int
}

// New constructs a gate holding budget units of weight in total, refilled at
// limit weight units per second.
func New(budget int, limit rate.Limit) *Gate {
	if budget <= 0 {
		budget = 1
	}
	return &Gate{
		limiter: rate.NewLimiter(limit, budget),
		budget:  budget,
	}
}

// Acquire blocks until the shared budget has capacity for weight units within
// the current rate period. Context cancellation propagates immediately.
func (g *Gate) Acquire(ctx context.Context, weight int) error {
	if weight <= 0 {
		weight = 1
	}
	if weight > g.budget {
		return errs.New("gate/acquire", errs.CodeInvalid,
			errs.WithMessage("request weight exceeds total budget"))
	}
	if err := g.limiter.WaitN(ctx, weight); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New("gate/acquire", errs.CodeRateLimited, errs.WithCause(err),
			errs.WithCanonicalCode(errs.CanonicalRateLimited))
	}
	return nil
}
