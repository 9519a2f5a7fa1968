package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	require.Equal(t, TransportNone, cfg.Transport)
	require.Equal(t, "orderms", cfg.mongoDatabase())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unsupported storage",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: `unsupported storage driver: "sqlite"`,
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverMongo },
			wantErr: "ORDERMS_MONGO_URI",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "ORDERMS_POSTGRES_DSN",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Transport = TransportKafka },
			wantErr: "KAFKA_BROKERS",
		},
		{
			name: "kafka without group",
			mutate: func(c *Config) {
				c.Transport = TransportKafka
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaGroup = ""
			},
			wantErr: "consumer group",
		},
		{
			name:    "rabbitmq without url",
			mutate:  func(c *Config) { c.Transport = TransportRabbitMQ },
			wantErr: "ORDERMS_RABBITMQ_URL",
		},
		{
			name:    "unsupported transport",
			mutate:  func(c *Config) { c.Transport = "nats" },
			wantErr: `unsupported transport: "nats"`,
		},
		{
			name: "mongo with uri",
			mutate: func(c *Config) {
				c.StorageDriver = StorageDriverMongo
				c.MongoURI = "mongodb://localhost:27017"
				c.MongoDatabase = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
