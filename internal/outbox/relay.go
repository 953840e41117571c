package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"procureflow/pkg/logkey"
)

const defaultBatchSize = 100

type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Relay polls the outbox and hands pending events to a Publisher in creation order.
type Relay struct {
	store    Store
	pub      Publisher
	interval time.Duration
	batch    int
}

func NewRelay(store Store, pub Publisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{store: store, pub: pub, interval: interval, batch: defaultBatchSize}
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("outbox relay started", slog.Duration("Interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				slog.Error("outbox flush failed", slog.String(logkey.ERROR, err.Error()))
			}
		}
	}
}

// Flush publishes one batch and returns how many events were delivered. It stops at the
// first publish failure so later events never overtake an earlier one.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	for i, e := range events {
		if err := r.pub.Publish(ctx, e.Topic, e.Key, e.Payload); err != nil {
			return i, fmt.Errorf("publishing event %s: %w", e.ID, err)
		}
		// A failure here republishes the event on the next tick.
		if err := r.store.MarkPublished(ctx, e.ID); err != nil {
			return i, err
		}
	}
	return len(events), nil
}
