package persistence

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"grid-core/pkg/db"
)

// Writer drains audit-trail writes (signals, candles, outcome updates) off
// the decision loop through a buffered queue. Transient failures are retried
// with backoff; a write that exhausts its retries is logged and counted, not
// allowed to stall the loop. Trade rows do not go through here, they are
// written synchronously because a trade is only durable once acknowledged.
type Writer struct {
	store *db.Database

	// Retries is the attempt budget per job.
	Retries int
	// AttemptTimeout bounds a single database call.
	AttemptTimeout time.Duration
	// Backoff is the delay between attempts.
	Backoff time.Duration

	queue chan job
	done  chan struct{}
	wg    sync.WaitGroup

	enqueued atomic.Uint64
	written  atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Metrics is a point-in-time view of writer throughput for status endpoints.
type Metrics struct {
	Enqueued uint64 `json:"enqueued"`
	Written  uint64 `json:"written"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Queued   int    `json:"queued"`
}

// NewWriter starts the background drain goroutine.
func NewWriter(store *db.Database, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		store:          store,
		Retries:        3,
		AttemptTimeout: 5 * time.Second,
		Backoff:        200 * time.Millisecond,
		queue:          make(chan job, queueSize),
		done:           make(chan struct{}),
	}
	w.wg.Add(1)
	go w.drain()
	return w
}

// Signal queues one signal row for the audit trail.
func (w *Writer) Signal(s db.Signal) {
	w.enqueue(job{name: "signal", run: func(ctx context.Context) error {
		return w.store.InsertSignal(ctx, s)
	}})
}

// SignalOutcome queues an outcome update for a previously written signal.
func (w *Writer) SignalOutcome(id, outcome string) {
	w.enqueue(job{name: "signal outcome", run: func(ctx context.Context) error {
		return w.store.SetSignalOutcome(ctx, id, outcome)
	}})
}

// Candle queues one closed candle for history.
func (w *Writer) Candle(c db.Candle) {
	w.enqueue(job{name: "candle", run: func(ctx context.Context) error {
		return w.store.InsertCandle(ctx, c)
	}})
}

func (w *Writer) enqueue(j job) {
	w.enqueued.Add(1)
	select {
	case w.queue <- j:
	default:
		w.dropped.Add(1)
		log.Printf("persistence: queue full, dropping %s write", j.name)
	}
}

func (w *Writer) drain() {
	defer w.wg.Done()
	for {
		select {
		case j := <-w.queue:
			w.execute(j)
		case <-w.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case j := <-w.queue:
					w.execute(j)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) execute(j job) {
	var err error
	for attempt := 1; attempt <= w.Retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.AttemptTimeout)
		err = j.run(ctx)
		cancel()
		if err == nil {
			w.written.Add(1)
			return
		}
		if attempt < w.Retries {
			time.Sleep(w.Backoff)
		}
	}
	w.failed.Add(1)
	log.Printf("persistence: %s write failed after %d attempts: %v", j.name, w.Retries, err)
}

// Metrics returns current counters.
func (w *Writer) Metrics() Metrics {
	return Metrics{
		Enqueued: w.enqueued.Load(),
		Written:  w.written.Load(),
		Failed:   w.failed.Load(),
		Dropped:  w.dropped.Load(),
		Queued:   len(w.queue),
	}
}

// Close stops the writer after flushing queued jobs.
func (w *Writer) Close() {
	close(w.done)
	w.wg.Wait()
}
