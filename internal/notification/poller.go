package notification

import (
	"context"
	"fmt"
	"time"

	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

const defaultBatchSize = 100

// Poller delivers committed outbox events to their publishers.
type Poller struct {
	repo       Repository
	publishers map[string]Publisher
	interval   time.Duration
	batchSize  int
	wake       chan struct{}
	observe    func(eventType string, err error)
}

func NewPoller(repo Repository, interval time.Duration, publishers map[string]Publisher) *Poller {
	return &Poller{
		repo:       repo,
		publishers: publishers,
		interval:   interval,
		batchSize:  defaultBatchSize,
		wake:       make(chan struct{}, 1),
	}
}

// OnPublish registers fn to be called after every publish attempt.
func (p *Poller) OnPublish(fn func(eventType string, err error)) {
	p.observe = fn
}

// Notify wakes the poller without waiting for the next tick. It never blocks.
func (p *Poller) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logger.L().Info("outbox poller started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ticker.C:
			p.processPending(ctx)
		case <-p.wake:
			p.processPending(ctx)
		case <-ctx.Done():
			logger.L().Info("outbox poller stopped")
			return
		}
	}
}

// processPending publishes one batch and returns how many events were sent.
func (p *Poller) processPending(ctx context.Context) int {
	log := logger.L().With(zap.String("component", "outbox_poller"))

	events, err := p.repo.FetchPending(ctx, p.batchSize)
	if err != nil {
		log.Error("failed to fetch events", zap.Error(err))
		return 0
	}

	sent := 0
	for _, e := range events {
		err := p.publish(ctx, e)
		if p.observe != nil {
			p.observe(e.EventType, err)
		}
		if err != nil {
			log.Warn("failed to publish event",
				zap.Int64("id", e.ID),
				zap.String("event_type", e.EventType),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(err),
			)
			if markErr := p.repo.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				log.Error("failed to mark event failed", zap.Int64("id", e.ID), zap.Error(markErr))
			}
			continue
		}

		if err := p.repo.MarkSent(ctx, e.ID); err != nil {
			log.Error("failed to mark event sent", zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (p *Poller) publish(ctx context.Context, e Event) error {
	pub, ok := p.publishers[e.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPublisher, e.EventType)
	}
	return pub.Publish(ctx, e)
}
