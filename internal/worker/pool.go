package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// spawnWorkerPool launches the configured number of processing goroutines.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// runWorker processes jobs from the shared channel until it is closed.
// Every delivery is acked once handled; only transient infrastructure
// failures (signaled by ErrRequeueDelivery) push the delivery back to
// the broker for another worker.
func (w *Worker) runWorker(ctx context.Context, n int) {
	defer w.wg.Done()

	logger := w.logger.With(
		slog.String("worker_id", w.workerID),
		slog.Int("worker_n", n),
	)
	logger.Debug("Worker goroutine started")

	for msg := range w.jobsChan {
		channel := w.channel()
		err := w.processor.Process(ctx, msg.JobID, w.workerID)
		if err != nil && errors.Is(err, domain.ErrRequeueDelivery) {
			logger.Warn("Requeueing delivery after transient failure",
				slog.String("job_id", msg.JobID),
				slog.Any("error", err),
			)
			if nackErr := channel.Nack(msg.DeliveryTag, false, true); nackErr != nil {
				logger.Error("Failed to nack delivery", slog.Any("error", nackErr))
			}
			continue
		}
		if err != nil {
			logger.Error("Job processing failed",
				slog.String("job_id", msg.JobID),
				slog.Any("error", err),
			)
		}

		if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
			logger.Error("Failed to ack delivery",
				slog.String("job_id", msg.JobID),
				slog.Any("error", ackErr),
			)
		}
	}

	logger.Debug("Worker goroutine stopped")
}
