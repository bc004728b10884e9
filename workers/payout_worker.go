package workers

import (
	"context"
	"log"
	"time"
)

// PayoutRetrier re-drives outstanding payouts.
type PayoutRetrier interface {
	RetryOutstanding(ctx context.Context) (int, error)
}

// PayoutRetryWorker periodically retries payouts that failed, were never
// attempted, or are stuck behind a stale claim.
type PayoutRetryWorker struct {
	retrier  PayoutRetrier
	interval time.Duration
}

func NewPayoutRetryWorker(retrier PayoutRetrier, interval time.Duration) *PayoutRetryWorker {
	return &PayoutRetryWorker{retrier: retrier, interval: interval}
}

func (w *PayoutRetryWorker) Start(ctx context.Context) {
	log.Printf("🔁 Starting payout retry worker (every %s)…", w.interval)
	go w.run(ctx)
}

func (w *PayoutRetryWorker) run(ctx context.Context) {
	// Pick up anything left behind by a previous process first.
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			log.Println("⏹️ Payout retry worker stopped")
			return
		}
	}
}

func (w *PayoutRetryWorker) tick(ctx context.Context) {
	n, err := w.retrier.RetryOutstanding(ctx)
	if err != nil {
		log.Printf("❌ Payout retry pass failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("💸 Retried payouts for %d match(es)", n)
	}
}
