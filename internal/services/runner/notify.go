package runner

import (
	"context"
	"time"

	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/rs/zerolog"
)

const (
	notifyBuffer  = 64
	notifyTimeout = 10 * time.Second
)

// Notifier receives status changes, e.g. Telegram or RabbitMQ.
type Notifier interface {
	Notify(ctx context.Context, ev models.StatusEvent) error
}

// notifyQueue delivers status events off the state machine's critical path.
// Events are dropped when the queue is full so a slow notifier never stalls
// a wake cycle.
type notifyQueue struct {
	notifiers []Notifier
	queue     chan models.StatusEvent
	logger    zerolog.Logger
}

func newNotifyQueue(logger zerolog.Logger, notifiers []Notifier) *notifyQueue {
	return &notifyQueue{
		notifiers: notifiers,
		queue:     make(chan models.StatusEvent, notifyBuffer),
		logger:    logger,
	}
}

func (q *notifyQueue) push(ev models.StatusEvent) {
	if len(q.notifiers) == 0 {
		return
	}
	select {
	case q.queue <- ev:
	default:
		q.logger.Warn().Str("phase", ev.Phase).Uint64("cycle", ev.Cycle).Msg("notification queue full, dropping event")
	}
}

// run delivers events until ctx ends, then flushes what is still queued so
// the outcome of a one-shot command is not lost on exit.
func (q *notifyQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case ev := <-q.queue:
			q.deliver(ctx, ev)
		}
	}
}

func (q *notifyQueue) drain() {
	for {
		select {
		case ev := <-q.queue:
			q.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (q *notifyQueue) deliver(ctx context.Context, ev models.StatusEvent) {
	for _, n := range q.notifiers {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		if err := n.Notify(nctx, ev); err != nil {
			q.logger.Warn().Err(err).Str("phase", ev.Phase).Msg("failed to deliver notification")
		}
		cancel()
	}
}
