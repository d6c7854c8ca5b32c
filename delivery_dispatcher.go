package goOTP

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goOTP/internal/queue"
)

type deliveryJob struct {
	email string
	code  string
}

// deliveryDispatcher hands issued codes to the Deliverer off the request path.
// Failures are logged and counted; the issuing caller never sees them.
type deliveryDispatcher struct {
	q         *queue.Queue[deliveryJob]
	deliverer Deliverer
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

func newDeliveryDispatcher(cfg DeliveryConfig, d Deliverer, logger *slog.Logger, metrics *Metrics) *deliveryDispatcher {
	dd := &deliveryDispatcher{
		deliverer: d,
		timeout:   cfg.Timeout,
		logger:    logger,
		metrics:   metrics,
	}
	dd.q = queue.New(queue.Config{
		BufferSize: cfg.QueueSize,
		Workers:    cfg.Workers,
		DropIfFull: cfg.DropIfFull,
	}, dd.deliver)
	return dd
}

func (d *deliveryDispatcher) deliver(job deliveryJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.deliverer.Deliver(ctx, job.email, job.code); err != nil {
		d.metrics.Inc(MetricDeliveryFailure)
		d.logger.Warn("goOTP: code delivery failed", "email", job.email, "error", err)
		return
	}
	d.metrics.Inc(MetricDeliverySuccess)
}

// Enqueue schedules delivery. The request ctx bounds only the wait for queue
// space; the delivery itself runs under its own timeout.
func (d *deliveryDispatcher) Enqueue(ctx context.Context, email, code string) {
	if d == nil {
		return
	}
	if !d.q.Push(ctx, deliveryJob{email: email, code: code}) {
		d.metrics.Inc(MetricDeliveryDropped)
		d.logger.Warn("goOTP: code delivery dropped", "email", email)
	}
}

func (d *deliveryDispatcher) Close() {
	if d == nil {
		return
	}
	d.q.Close()
}
