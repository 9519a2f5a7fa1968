package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/app"
)

const (
	envHTTPAddr            = "ORDERMS_HTTP_ADDR"
	envGRPCAddr            = "ORDERMS_GRPC_ADDR"
	envLogLevel            = "ORDERMS_LOG_LEVEL"
	envStorageDriver       = "ORDERMS_STORAGE_DRIVER"
	envMongoURI            = "ORDERMS_MONGO_URI"
	envMongoDatabase       = "ORDERMS_MONGO_DATABASE"
	envPostgresDSN         = "ORDERMS_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERMS_POSTGRES_AUTO_MIGRATE"
	envTransport           = "ORDERMS_TRANSPORT"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaTopic          = "ORDERMS_KAFKA_TOPIC"
	envKafkaGroup          = "ORDERMS_KAFKA_GROUP"
	envKafkaMaxRetries     = "ORDERMS_KAFKA_MAX_RETRIES"
	envKafkaRetryDelay     = "ORDERMS_KAFKA_RETRY_DELAY"
	envRabbitMQURL         = "ORDERMS_RABBITMQ_URL"
	envRabbitMQQueue       = "ORDERMS_RABBITMQ_QUEUE"
	envRedisAddr           = "ORDERMS_REDIS_ADDR"
	envRedisTTL            = "ORDERMS_REDIS_TTL"
)

type envLookup func(string) (string, bool)

type configWarning struct {
	key   string
	value string
	err   error
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(parseLogLevel(lookup))
}

func parseLogLevel(lookup envLookup) log.Level {
	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []configWarning) {
	cfg := app.DefaultConfig()
	warnings := make([]configWarning, 0)

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	positiveInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, msg)
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	str(envMongoURI, &cfg.MongoURI)
	str(envMongoDatabase, &cfg.MongoDatabase)
	str(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, configWarning{key: envPostgresAutoMigrate, value: v, err: err})
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	if v, ok := lookup(envTransport); ok && strings.TrimSpace(v) != "" {
		cfg.Transport = app.Transport(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaGroup, &cfg.KafkaGroup)
	positiveInt(envKafkaMaxRetries, &cfg.KafkaMaxRetries)
	duration(envKafkaRetryDelay, &cfg.KafkaRetryDelay, func(d time.Duration) bool { return d >= 0 }, "must be >= 0")
	str(envRabbitMQURL, &cfg.RabbitMQURL)
	str(envRabbitMQQueue, &cfg.RabbitMQQueue)

	str(envRedisAddr, &cfg.RedisAddr)
	duration(envRedisTTL, &cfg.RedisTTL, func(d time.Duration) bool { return d > 0 }, "must be > 0")

	return cfg, warnings
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(msg)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(msg)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithError(w.err).WithFields(log.Fields{
			"env":   w.key,
			"value": w.value,
		}).Warn("некорректное значение переменной окружения, используем значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
		"storage":   cfg.StorageDriver,
		"transport": cfg.Transport,
	}).Info("запускаем orderms")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("orderms остановлен")
}
