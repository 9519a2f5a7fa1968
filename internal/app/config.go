package app

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderms/internal/cache"
	"github.com/vladislavdragonenkov/orderms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderms/internal/messaging/rabbitmq"
)

// StorageDriver выбирает бэкенд хранилища заказов.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverMongo    StorageDriver = "mongo"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Transport выбирает брокер, из которого читаются события.
type Transport string

const (
	TransportNone     Transport = "none"
	TransportKafka    Transport = "kafka"
	TransportRabbitMQ Transport = "rabbitmq"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration

	StorageDriver       StorageDriver
	MongoURI            string
	MongoDatabase       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	Transport        Transport
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroup       string
	KafkaDLQTopic    string
	KafkaMaxRetries  int
	KafkaRetryDelay  time.Duration
	RabbitMQURL      string
	RabbitMQQueue    string
	RabbitMQPrefetch int

	// RedisAddr пустой отключает кэш сумм.
	RedisAddr string
	RedisTTL  time.Duration

	HealthInterval time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		ShutdownTimeout: 5 * time.Second,

		StorageDriver:       StorageDriverMemory,
		MongoDatabase:       "orderms",
		PostgresAutoMigrate: true,

		Transport:        TransportNone,
		KafkaTopic:       kafka.TopicOrderCreated,
		KafkaGroup:       kafka.DefaultGroupID,
		KafkaDLQTopic:    kafka.TopicDeadLetterQueue,
		KafkaMaxRetries:  kafka.DefaultMaxRetries,
		KafkaRetryDelay:  kafka.DefaultRetryDelay,
		RabbitMQQueue:    rabbitmq.DefaultQueue,
		RabbitMQPrefetch: rabbitmq.DefaultPrefetch,

		RedisTTL: cache.DefaultTTL,

		HealthInterval: 10 * time.Second,
	}
}

// Validate проверяет согласованность настроек до открытия соединений.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo storage requires ORDERMS_MONGO_URI")
		}
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires ORDERMS_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.StorageDriver)
	}

	switch c.Transport {
	case TransportNone:
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka transport requires KAFKA_BROKERS")
		}
		if c.KafkaTopic == "" || c.KafkaGroup == "" {
			return fmt.Errorf("kafka transport requires topic and consumer group")
		}
	case TransportRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("rabbitmq transport requires ORDERMS_RABBITMQ_URL")
		}
	default:
		return fmt.Errorf("unsupported transport: %q", c.Transport)
	}

	return nil
}

func (c Config) mongoDatabase() string {
	if c.MongoDatabase == "" {
		return "orderms"
	}
	return c.MongoDatabase
}
