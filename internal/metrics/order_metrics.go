package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачного приёма события.
const (
	ReasonValidation = "validation"
	ReasonStorage    = "storage"
)

// Запросы чтения, для которых снимается длительность.
const (
	QueryListOrders = "list_orders"
	QueryTotalSpend = "total_spend"
)

// Результаты обработки сообщения транспортом.
const (
	MessageProcessed = "processed"
	MessageRetried   = "retried"
	MessageDLQ       = "dlq"
	MessageFailed    = "failed"
)

// OrderMetrics содержит метрики приёма заказов и запросов чтения.
// Методы безопасны для nil-получателя: компоненты могут работать без метрик.
type OrderMetrics struct {
	ordersIngested prometheus.Counter
	ingestFailures *prometheus.CounterVec
	ingestDuration prometheus.Histogram

	queryDuration *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec
	messages     *prometheus.CounterVec
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersIngested: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderms_orders_ingested_total",
			Help: "Total number of order created events persisted",
		}),
		ingestFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderms_ingest_failures_total",
			Help: "Total number of order created events rejected, grouped by reason",
		}, []string{"reason"}),
		ingestDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orderms_ingest_duration_seconds",
			Help:    "Duration of order ingestion (transform + save) in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		queryDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderms_query_duration_seconds",
			Help:    "Duration of read queries in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		cacheLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderms_totals_cache_lookups_total",
			Help: "Total number of customer total cache lookups grouped by result",
		}, []string{"result"}),
		messages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderms_transport_messages_total",
			Help: "Total number of broker messages handled grouped by transport and result",
		}, []string{"transport", "result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordIngested фиксирует успешно сохранённый заказ и время обработки.
func (m *OrderMetrics) RecordIngested(duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersIngested.Inc()
	m.ingestDuration.Observe(duration.Seconds())
}

// RecordIngestFailure увеличивает счётчик отклонённых событий.
func (m *OrderMetrics) RecordIngestFailure(reason string) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(reason).Inc()
}

// RecordQuery записывает длительность запроса чтения.
func (m *OrderMetrics) RecordQuery(query string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordCacheLookup учитывает обращение к кэшу сумм (hit/miss/error).
func (m *OrderMetrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordMessage учитывает результат обработки сообщения брокера.
func (m *OrderMetrics) RecordMessage(transport, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(transport, result).Inc()
}
