package engine

import (
	"context"
	"fmt"
	"sort"
)

// Service groups the per-symbol workers and starts them together.
type Service struct {
	workers map[string]*Worker
}

func NewService() *Service {
	return &Service{workers: make(map[string]*Worker)}
}

// Add registers a worker. Must be called before Start.
func (s *Service) Add(w *Worker) error {
	if _, ok := s.workers[w.Symbol]; ok {
		return fmt.Errorf("duplicate worker for %s", w.Symbol)
	}
	s.workers[w.Symbol] = w
	return nil
}

// Worker returns the worker for a symbol.
func (s *Service) Worker(symbol string) (*Worker, bool) {
	w, ok := s.workers[symbol]
	return w, ok
}

// Symbols lists registered symbols in stable order.
func (s *Service) Symbols() []string {
	out := make([]string, 0, len(s.workers))
	for sym := range s.workers {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Start warms every worker from stored history then launches its loop.
func (s *Service) Start(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.Warmup(ctx); err != nil {
			return fmt.Errorf("warmup %s: %w", w.Symbol, err)
		}
		w.Start(ctx)
	}
	return nil
}

// Statuses snapshots every worker for the control API.
func (s *Service) Statuses() []Status {
	out := make([]Status, 0, len(s.workers))
	for _, sym := range s.Symbols() {
		out = append(out, s.workers[sym].Status())
	}
	return out
}
