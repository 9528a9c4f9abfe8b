package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/windingtree/orgid-migrator/internal/queue"
)

// setupConsumer configures QoS and starts consuming from the jobs queue.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()

	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, err
	}

	return w.rabbitClient.Consume(w.workerID)
}

// startMessageDispatcher reads broker deliveries, decodes them and hands
// them to the worker pool. Malformed deliveries are rejected without
// requeue since they can never succeed.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(w.jobsChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Dispatcher stopping: context canceled")
			return
		case <-w.stopChan:
			w.logger.Info("Dispatcher stopping: worker stopped")
			return
		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed by broker")
				return
			}

			var msg queue.Message
			if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.JobID == "" {
				w.logger.Error("Discarding malformed delivery",
					slog.Any("error", err),
					slog.Int("body_size", len(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to nack malformed delivery", slog.Any("error", nackErr))
				}
				continue
			}

			select {
			case w.jobsChan <- &jobMessage{JobID: msg.JobID, DeliveryTag: delivery.DeliveryTag}:
			case <-ctx.Done():
				return
			case <-w.stopChan:
				return
			}
		}
	}
}
