package broadcast

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"

	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
)

const DefaultRatePerSecond = 25

type Sender interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type Worker struct {
	sender  Sender
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func NewWorker(sender Sender, ratePerSecond int, m *metrics.Metrics, logger *logging.Logger) *Worker {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		metrics: m,
		logger:  logger,
	}
}

// Run drains deliveries until the channel closes or ctx is canceled.
// Malformed jobs and failed sends are rejected without requeue so they land
// in the dead-letter queue.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, d); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) error {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil || job.LeadID == 0 {
		w.logger.Error("invalid broadcast job", "delivery_tag", d.DeliveryTag, "error", err)
		w.metrics.ObserveBroadcast("invalid")
		_ = d.Nack(false, false)
		return nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		_ = d.Nack(false, true)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	if err := w.sender.Notify(ctx, job.LeadID, job.Text); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			_ = d.Nack(false, true)
			return ctx.Err()
		}
		w.logger.Warn("broadcast send failed", "broadcast_id", job.BroadcastID, "lead_id", job.LeadID, "error", err)
		w.metrics.ObserveBroadcast("failed")
		_ = d.Nack(false, false)
		return nil
	}
	w.metrics.ObserveBroadcast("sent")
	_ = d.Ack(false)
	return nil
}
