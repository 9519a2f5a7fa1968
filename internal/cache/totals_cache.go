// Package cache содержит кэширующий декоратор поверх OrderRepository.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
	"github.com/vladislavdragonenkov/orderms/internal/metrics"
)

const (
	// DefaultTTL время жизни закэшированной суммы.
	DefaultTTL = 30 * time.Second

	keyPrefix        = "orderms:total:"
	generationPrefix = "orderms:total-gen:"

	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

// Options конфигурирует TotalsCache.
type Options struct {
	TTL     time.Duration
	Logger  *log.Entry
	Metrics *metrics.OrderMetrics
}

// Option модифицирует Options.
type Option func(*Options)

// WithTTL задаёт время жизни записи.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMetrics включает учёт попаданий в кэш.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// storeIfCurrent кладёт сумму, только если поколение клиента не менялось с начала чтения.
// Иначе параллельный Save уже сбросил ключ, и сумма могла его не учесть.
var storeIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// TotalsCache кэширует SumTotalsByCustomer в Redis.
// Save сбрасывает ключ клиента и увеличивает его поколение; ошибки Redis не ломают
// запрос и ведут к чтению из хранилища.
type TotalsCache struct {
	next    domain.OrderRepository
	client  redis.Cmdable
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewTotalsCache оборачивает репозиторий.
func NewTotalsCache(next domain.OrderRepository, client redis.Cmdable, opts ...Option) *TotalsCache {
	options := Options{
		TTL:    DefaultTTL,
		Logger: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &TotalsCache{
		next:    next,
		client:  client,
		ttl:     options.TTL,
		logger:  options.Logger.WithField("component", "totals-cache"),
		metrics: options.Metrics,
	}
}

// Save сохраняет заказ и инвалидирует сумму клиента.
// Поколение увеличивается после записи в хранилище, поэтому чтение, начатое до неё,
// не сможет положить в кэш устаревшую сумму.
func (c *TotalsCache) Save(ctx context.Context, order domain.Order) error {
	if err := c.next.Save(ctx, order); err != nil {
		return err
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(order.CustomerID))
		pipe.Del(ctx, totalKey(order.CustomerID))
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("customer_id", order.CustomerID).Warn("failed to invalidate cached total")
	}
	return nil
}

// FindByCustomer не кэшируется.
func (c *TotalsCache) FindByCustomer(ctx context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	return c.next.FindByCustomer(ctx, customerID, page)
}

// SumTotalsByCustomer читает сумму из Redis, при промахе считает в хранилище и кладёт результат с TTL.
func (c *TotalsCache) SumTotalsByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	key := totalKey(customerID)
	logger := c.logger.WithField("customer_id", customerID)

	generation, genErr := c.client.Get(ctx, generationKey(customerID)).Result()
	if errors.Is(genErr, redis.Nil) {
		generation, genErr = "0", nil
	}

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached, parseErr := decimal.NewFromString(raw); parseErr == nil {
			c.metrics.RecordCacheLookup(lookupHit)
			return cached, nil
		}
		logger.WithField("value", raw).Warn("discarding malformed cached total")
		c.metrics.RecordCacheLookup(lookupError)
	case errors.Is(err, redis.Nil):
		c.metrics.RecordCacheLookup(lookupMiss)
	default:
		logger.WithError(err).Warn("redis lookup failed, falling back to storage")
		c.metrics.RecordCacheLookup(lookupError)
	}

	total, err := c.next.SumTotalsByCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}

	if genErr != nil {
		return total, nil
	}
	stored, err := storeIfCurrent.Run(ctx, c.client,
		[]string{key, generationKey(customerID)},
		generation, total.String(), c.ttl.Milliseconds(),
	).Int()
	switch {
	case err != nil:
		logger.WithError(err).Warn("failed to cache total")
	case stored == 0:
		logger.Debug("orders changed during lookup, total not cached")
	}
	return total, nil
}

// Ping проверяет доступность Redis.
func (c *TotalsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func totalKey(customerID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, customerID)
}

func generationKey(customerID int64) string {
	return fmt.Sprintf("%s%d", generationPrefix, customerID)
}

var _ domain.OrderRepository = (*TotalsCache)(nil)
