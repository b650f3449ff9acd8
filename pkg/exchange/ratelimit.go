package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Gateway so outbound calls respect the venue's request
// budget. Waiting is bounded by the caller's context deadline.
type RateLimited struct {
	inner   Gateway
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
func NewRateLimited(inner Gateway, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (g *RateLimited) PlaceOrder(ctx context.Context, req OrderRequest) (PlaceAck, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return PlaceAck{Status: StatusUnknown}, ErrGatewayTimeout
	}
	return g.inner.PlaceOrder(ctx, req)
}

func (g *RateLimited) CancelOrder(ctx context.Context, symbol, clientID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return ErrGatewayTimeout
	}
	return g.inner.CancelOrder(ctx, symbol, clientID)
}

func (g *RateLimited) Status(ctx context.Context, symbol, clientID string) (OrderStatus, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return StatusUnknown, ErrGatewayTimeout
	}
	return g.inner.Status(ctx, symbol, clientID)
}

func (g *RateLimited) Fills() <-chan FillEvent { return g.inner.Fills() }

func (g *RateLimited) Cancels() <-chan CancelEvent { return g.inner.Cancels() }
