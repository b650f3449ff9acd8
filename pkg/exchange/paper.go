package exchange

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaperConfig tunes fill simulation.
type PaperConfig struct {
	FeeRate     decimal.Decimal // e.g. 0.0004 = 4 bps per fill
	SlippageBps float64         // max random slippage applied against the taker
	FillDelay   time.Duration   // latency between placement and fill
}

// Paper is a simulated venue for dry runs and tests. Every placed order fills
// after FillDelay at the requested price adjusted by random slippage.
type Paper struct {
	cfg     PaperConfig
	mu      sync.Mutex
	orders  map[string]OrderStatus
	fills   chan FillEvent
	cancels chan CancelEvent
	rng     *rand.Rand
}

// NewPaper builds a paper gateway.
func NewPaper(cfg PaperConfig) *Paper {
	return &Paper{
		cfg:     cfg,
		orders:  make(map[string]OrderStatus),
		fills:   make(chan FillEvent, 256),
		cancels: make(chan CancelEvent, 64),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (PlaceAck, error) {
	select {
	case <-ctx.Done():
		return PlaceAck{Status: StatusUnknown}, ErrGatewayTimeout
	default:
	}

	p.mu.Lock()
	p.orders[req.ClientID] = StatusNew
	slip := p.rng.Float64() * p.cfg.SlippageBps / 10000.0
	p.mu.Unlock()

	price := req.Price
	if !price.IsPositive() {
		return PlaceAck{Status: StatusRejected}, nil
	}
	noise := decimal.NewFromFloat(slip)
	if req.Side == SideBuy {
		price = price.Mul(decimal.NewFromInt(1).Add(noise))
	} else {
		price = price.Mul(decimal.NewFromInt(1).Sub(noise))
	}
	fee := price.Mul(req.Quantity).Mul(p.cfg.FeeRate)

	go func() {
		if p.cfg.FillDelay > 0 {
			time.Sleep(p.cfg.FillDelay)
		}
		p.mu.Lock()
		p.orders[req.ClientID] = StatusFilled
		p.mu.Unlock()
		select {
		case p.fills <- FillEvent{
			TradeID:   req.ClientID,
			Price:     price,
			Quantity:  req.Quantity,
			Fee:       fee,
			Timestamp: time.Now().UnixMilli(),
		}:
		default:
			log.Printf("paper: fill channel full, dropping fill for %s", req.ClientID)
		}
	}()

	return PlaceAck{ExchangeOrderID: "paper-" + req.ClientID, Status: StatusNew}, nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, clientID string) error {
	select {
	case <-ctx.Done():
		return ErrGatewayTimeout
	default:
	}

	p.mu.Lock()
	st, ok := p.orders[clientID]
	if ok && st == StatusNew {
		p.orders[clientID] = StatusCanceled
	}
	p.mu.Unlock()

	if !ok {
		return ErrOrderNotFound
	}
	if st == StatusNew {
		select {
		case p.cancels <- CancelEvent{TradeID: clientID, Reason: "canceled by request"}:
		default:
		}
	}
	return nil
}

func (p *Paper) Status(ctx context.Context, symbol, clientID string) (OrderStatus, error) {
	select {
	case <-ctx.Done():
		return StatusUnknown, ErrGatewayTimeout
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.orders[clientID]
	if !ok {
		return StatusUnknown, ErrOrderNotFound
	}
	return st, nil
}

func (p *Paper) Fills() <-chan FillEvent { return p.fills }

func (p *Paper) Cancels() <-chan CancelEvent { return p.cancels }
