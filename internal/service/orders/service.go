// Package orders содержит приём событий создания заказа и запросы чтения по клиенту.
package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
	"github.com/vladislavdragonenkov/orderms/internal/metrics"
)

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.OrderMetrics
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает запись метрик приёма и чтения.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// Service связывает Transform, хранилище и агрегацию сумм.
// Собственного изменяемого состояния между вызовами не хранит.
type Service struct {
	store   domain.OrderStore
	totals  domain.TotalsAggregator
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewService конструирует сервис поверх хранилища и агрегатора сумм.
func NewService(store domain.OrderStore, totals domain.TotalsAggregator, opts ...Option) *Service {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = log.New().WithField("component", "order-service")
	}

	return &Service{
		store:   store,
		totals:  totals,
		logger:  options.Logger,
		metrics: options.Metrics,
	}
}

// Ingest преобразует событие и сохраняет агрегат. Повторов и проверки
// идемпотентности нет: повторная доставка создаёт ещё одну запись.
func (s *Service) Ingest(ctx context.Context, event domain.OrderCreatedEvent) error {
	start := time.Now()
	logger := s.logger.WithFields(log.Fields{
		"order_id":    event.OrderID,
		"customer_id": event.CustomerID,
	})

	order, err := Transform(event)
	if err != nil {
		s.metrics.RecordIngestFailure(metrics.ReasonValidation)
		logger.WithError(err).Warn("order created event rejected")
		return err
	}

	if err := s.store.Save(ctx, order); err != nil {
		if !domain.IsStorage(err) {
			err = domain.StorageError("save order", err)
		}
		s.metrics.RecordIngestFailure(metrics.ReasonStorage)
		logger.WithError(err).Error("failed to persist order")
		return err
	}

	s.metrics.RecordIngested(time.Since(start))
	logger.WithFields(log.Fields{
		"items": len(order.Items),
		"total": order.Total.String(),
	}).Debug("order persisted")

	return nil
}

// ListOrders возвращает страницу заказов клиента во внешнем представлении.
// page начинается с 1.
func (s *Service) ListOrders(ctx context.Context, customerID int64, page, size int) (domain.Page[OrderResponse], error) {
	start := time.Now()
	defer func() { s.metrics.RecordQuery(metrics.QueryListOrders, time.Since(start)) }()

	if customerID <= 0 {
		return domain.Page[OrderResponse]{}, domain.ErrCustomerRequired
	}
	req := domain.PageRequest{Number: page, Size: size}
	if err := req.Validate(); err != nil {
		return domain.Page[OrderResponse]{}, err
	}

	result, err := s.store.FindByCustomer(ctx, customerID, req)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to list orders")
		return domain.Page[OrderResponse]{}, err
	}

	return domain.MapPage(result, ToResponse), nil
}

// TotalSpend возвращает сумму total всех заказов клиента; без заказов — ноль.
func (s *Service) TotalSpend(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	start := time.Now()
	defer func() { s.metrics.RecordQuery(metrics.QueryTotalSpend, time.Since(start)) }()

	if customerID <= 0 {
		return decimal.Zero, domain.ErrCustomerRequired
	}

	total, err := s.totals.SumTotalsByCustomer(ctx, customerID)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to sum customer totals")
		return decimal.Zero, err
	}
	return total, nil
}
