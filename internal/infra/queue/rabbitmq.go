package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
)

// RabbitRefreshQueue реализует очередь задач поверх AMQP.
type RabbitRefreshQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queue     string
	deliverCh <-chan amqp.Delivery
}

// NewRabbitRefreshQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitRefreshQueue(amqpURL, queue string) (*RabbitRefreshQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitRefreshQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitRefreshQueue) Enqueue(ctx context.Context, job domain.RefreshJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RabbitRefreshQueue) Pop(ctx context.Context) (domain.RefreshJob, error) {
	if q.deliverCh == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.RefreshJob{}, fmt.Errorf("consume: %w", err)
		}
		q.deliverCh = deliveries
	}
	for {
		select {
		case <-ctx.Done():
			return domain.RefreshJob{}, ctx.Err()
		case delivery, ok := <-q.deliverCh:
			if !ok {
				return domain.RefreshJob{}, errors.New("amqp queue: delivery channel closed")
			}
			var job domain.RefreshJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				_ = delivery.Nack(false, false)
				return domain.RefreshJob{}, fmt.Errorf("decode job: %w", err)
			}
			if err := delivery.Ack(false); err != nil {
				return domain.RefreshJob{}, fmt.Errorf("ack job: %w", err)
			}
			return job, nil
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitRefreshQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
