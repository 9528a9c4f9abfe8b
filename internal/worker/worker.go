// Package worker consumes migration jobs from the broker and drives each
// one through the validation/verification/publish/submit state machine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/windingtree/orgid-migrator/shared/rabbitmq"
)

// Config holds worker configuration.
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Processor     *Processor
	Concurrency   int
	PrefetchCount int
}

// Worker is the background migration worker: one consumer, one
// dispatcher and a pool of processing goroutines.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	processor     *Processor
	concurrency   int
	prefetchCount int
	workerID      string
	jobsChan      chan *jobMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
	channel       func() brokerChannel
}

// brokerChannel is the slice of the amqp channel the pool settles
// deliveries on.
type brokerChannel interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
}

// jobMessage pairs a job id with its broker delivery tag.
type jobMessage struct {
	JobID       string
	DeliveryTag uint64
}

// NewWorker creates a new worker instance.
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		processor:     cfg.Processor,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		workerID:      fmt.Sprintf("migrator-%s", uuid.NewString()[:8]),
		jobsChan:      make(chan *jobMessage),
		stopChan:      make(chan struct{}),
		// Resolved per message so acks land on the live channel after
		// a broker reconnect.
		channel: func() brokerChannel { return cfg.RabbitClient.GetChannel() },
	}
}

// Start begins consuming and processing jobs; it blocks until the
// context is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker pool.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
