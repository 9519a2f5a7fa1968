// Package messaging содержит общий для транспортов разбор событий и контракт приёмника.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

// Транспорты, которые проставляются в метки метрик.
const (
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
)

// Ingestor принимает разобранное событие. Реализуется orders.Service.
type Ingestor interface {
	Ingest(ctx context.Context, event domain.OrderCreatedEvent) error
}

// IngestorFunc адаптирует функцию к Ingestor.
type IngestorFunc func(ctx context.Context, event domain.OrderCreatedEvent) error

// Ingest вызывает f.
func (f IngestorFunc) Ingest(ctx context.Context, event domain.OrderCreatedEvent) error {
	return f(ctx, event)
}

// DecodeOrderCreated разбирает JSON-тело сообщения.
// Любая ошибка разбора оборачивается в domain.ErrMalformedEvent.
func DecodeOrderCreated(body []byte) (domain.OrderCreatedEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.OrderCreatedEvent{}, fmt.Errorf("%w: body is not a json object", domain.ErrMalformedEvent)
	}

	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return domain.OrderCreatedEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return event, nil
}

// EncodeOrderCreated сериализует событие в формат, который принимает DecodeOrderCreated.
func EncodeOrderCreated(event domain.OrderCreatedEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode order created event: %w", err)
	}
	return body, nil
}

// Handle разбирает тело и передаёт событие приёмнику.
func Handle(ctx context.Context, ingestor Ingestor, body []byte) error {
	event, err := DecodeOrderCreated(body)
	if err != nil {
		return err
	}
	return ingestor.Ingest(ctx, event)
}

// Publisher отправляет событие создания заказа во внешний брокер.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error
}
