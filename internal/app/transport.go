package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/orderms/internal/health"
	"github.com/vladislavdragonenkov/orderms/internal/messaging"
	"github.com/vladislavdragonenkov/orderms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderms/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/orderms/internal/metrics"
)

// eventConsumer общий контракт транспортов.
type eventConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// kafkaTransport закрывает DLQ producer вместе с consumer.
type kafkaTransport struct {
	consumer *kafka.Consumer
	producer *kafka.Producer
}

func (t *kafkaTransport) Start(ctx context.Context) error {
	return t.consumer.Start(ctx)
}

func (t *kafkaTransport) Stop() error {
	err := t.consumer.Stop()
	if closeErr := t.producer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// initTransport создаёт consumer выбранного брокера. Для TransportNone возвращает nil.
func initTransport(cfg Config, ingestor messaging.Ingestor, orderMetrics *metrics.OrderMetrics, logger *log.Entry) (eventConsumer, healthcheck.Checker, error) {
	switch cfg.Transport {
	case TransportNone, "":
		logger.Info("no transport configured, events are not consumed")
		return nil, nil, nil

	case TransportKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, fmt.Errorf("kafka transport requires KAFKA_BROKERS")
		}
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, nil, fmt.Errorf("create kafka dlq producer: %w", err)
		}
		consumer, err := kafka.NewConsumerWithDLQ(
			cfg.KafkaBrokers,
			cfg.KafkaGroup,
			[]string{cfg.KafkaTopic},
			kafka.NewOrderCreatedHandler(ingestor),
			producer,
			cfg.KafkaMaxRetries,
			kafka.WithRetryDelay(cfg.KafkaRetryDelay),
			kafka.WithDLQTopic(cfg.KafkaDLQTopic),
			kafka.WithConsumerMetrics(orderMetrics),
			kafka.WithConsumerLogger(logger),
		)
		if err != nil {
			_ = producer.Close()
			return nil, nil, err
		}
		logger.WithFields(log.Fields{
			"brokers": cfg.KafkaBrokers,
			"topic":   cfg.KafkaTopic,
			"group":   cfg.KafkaGroup,
		}).Info("kafka transport initialized")
		return &kafkaTransport{consumer: consumer, producer: producer}, nil, nil

	case TransportRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		consumer := rabbitmq.NewConsumer(conn, cfg.RabbitMQQueue, ingestor,
			rabbitmq.WithPrefetch(cfg.RabbitMQPrefetch),
			rabbitmq.WithLogger(logger),
			rabbitmq.WithMetrics(orderMetrics),
		)
		logger.WithField("queue", cfg.RabbitMQQueue).Info("rabbitmq transport initialized")
		return consumer, healthcheck.NewPingChecker("rabbitmq", conn.Ping), nil

	default:
		return nil, nil, fmt.Errorf("unsupported transport: %q", cfg.Transport)
	}
}
