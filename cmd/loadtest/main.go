// Command loadtest публикует поток событий создания заказа и опционально нагружает HTTP API чтения.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
	"github.com/vladislavdragonenkov/orderms/internal/messaging"
	"github.com/vladislavdragonenkov/orderms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderms/internal/messaging/rabbitmq"
)

const (
	resultOK    = "OK"
	resultError = "ERROR"
)

type loadMode string

const (
	modePublish      loadMode = "publish"
	modePublishQuery loadMode = "publish-query"
)

type config struct {
	transport   string
	brokers     []string
	topic       string
	rabbitURL   string
	queue       string
	apiURL      string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	customers   int
	items       int
	price       decimal.Decimal
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Results   map[string]int64 `json:"results"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	results   map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{results: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if result == resultOK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.results[result]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		resultsCopy := make(map[string]int64, len(stats.results))
		for code, count := range stats.results {
			resultsCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Results:   resultsCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var (
		cfg           config
		modeValue     string
		brokersValue  string
		priceValue    string
		timeoutValue  string
		durationValue string
	)

	flag.StringVar(&cfg.transport, "transport", "kafka", "broker to publish to: kafka | rabbitmq")
	flag.StringVar(&brokersValue, "brokers", os.Getenv("KAFKA_BROKERS"), "Kafka brokers as comma-separated list")
	flag.StringVar(&cfg.topic, "topic", kafka.TopicOrderCreated, "Kafka topic")
	flag.StringVar(&cfg.rabbitURL, "rabbitmq-url", os.Getenv("ORDERMS_RABBITMQ_URL"), "RabbitMQ URL")
	flag.StringVar(&cfg.queue, "queue", rabbitmq.DefaultQueue, "RabbitMQ queue")
	flag.StringVar(&cfg.apiURL, "api", "http://localhost:8080", "HTTP API base URL for publish-query mode")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-call timeout")
	flag.StringVar(&modeValue, "mode", string(modePublish), "load mode: publish | publish-query")
	flag.IntVar(&cfg.customers, "customers", 50, "number of distinct customer ids")
	flag.IntVar(&cfg.items, "items", 3, "items per order")
	flag.StringVar(&priceValue, "price", "10.50", "unit price of each item")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.transport = strings.ToLower(strings.TrimSpace(cfg.transport))
	cfg.brokers = splitList(brokersValue)

	switch cfg.transport {
	case "kafka":
		if len(cfg.brokers) == 0 {
			return cfg, errors.New("brokers are required for kafka transport")
		}
	case "rabbitmq":
		if strings.TrimSpace(cfg.rabbitURL) == "" {
			return cfg, errors.New("rabbitmq-url is required for rabbitmq transport")
		}
	default:
		return cfg, fmt.Errorf("unsupported transport: %s", cfg.transport)
	}

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.customers <= 0 {
		return cfg, errors.New("customers must be > 0")
	}
	if cfg.items < 0 {
		return cfg, errors.New("items must be >= 0")
	}
	if cfg.price.IsNegative() {
		return cfg, errors.New("price must be >= 0")
	}
	if cfg.mode == modePublishQuery && strings.TrimSpace(cfg.apiURL) == "" {
		return cfg, errors.New("api is required in publish-query mode")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modePublish:
		return modePublish, nil
	case modePublishQuery:
		return modePublishQuery, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func splitList(raw string) []string {
	chunks := strings.Split(raw, ",")
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if v := strings.TrimSpace(chunk); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// newPublisher открывает publisher выбранного брокера; closer освобождает соединение.
var newPublisher = func(cfg config) (messaging.Publisher, func() error, error) {
	switch cfg.transport {
	case "rabbitmq":
		conn, err := rabbitmq.Dial(cfg.rabbitURL)
		if err != nil {
			return nil, nil, err
		}
		if err := conn.DeclareQueue(cfg.queue); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return rabbitmq.NewPublisher(conn, cfg.queue), conn.Close, nil
	default:
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return nil, nil, err
		}
		return producer.WithTopic(cfg.topic), producer.Close, nil
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	publisher, closePublisher, err := newPublisher(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to create publisher")
	}

	result := runLoad(cfg, publisher, &http.Client{Timeout: cfg.timeout})
	_ = closePublisher()

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Fatal("failed to write report")
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии пулу воркеров и собирает отчёт.
func runLoad(cfg config, publisher messaging.Publisher, httpClient *http.Client) report {
	startedAt := time.Now()
	runID := uuid.NewString()[:8]
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(publisher, httpClient, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// buildEvent детерминированно строит событие для сценария index.
func buildEvent(cfg config, index int, runID string) domain.OrderCreatedEvent {
	event := domain.OrderCreatedEvent{
		OrderID:    fmt.Sprintf("lt-%s-%d", runID, index),
		CustomerID: int64(index%cfg.customers) + 1,
		Items:      make([]domain.OrderItemEvent, 0, cfg.items),
	}
	for i := 0; i < cfg.items; i++ {
		event.Items = append(event.Items, domain.OrderItemEvent{
			Product:  fmt.Sprintf("product-%d", i+1),
			Quantity: int64(i + 1),
			Price:    cfg.price,
		})
	}
	return event
}

func runScenario(
	publisher messaging.Publisher,
	httpClient *http.Client,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioResult := resultOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioResult)
	}()

	event := buildEvent(cfg, index, runID)
	if err := callPublish(publisher, cfg.timeout, event, col); err != nil {
		scenarioResult = resultError
		return err
	}

	if cfg.mode != modePublishQuery {
		return nil
	}

	path := fmt.Sprintf("/customers/%d/orders?page=1&pageSize=10", event.CustomerID)
	if err := callQuery(httpClient, cfg, "ListOrders", path, col); err != nil {
		scenarioResult = resultError
		return err
	}
	if err := callQuery(httpClient, cfg, "TotalSpend", fmt.Sprintf("/customers/%d/orders/total", event.CustomerID), col); err != nil {
		scenarioResult = resultError
		return err
	}
	return nil
}

func callPublish(publisher messaging.Publisher, timeout time.Duration, event domain.OrderCreatedEvent, col *collector) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := publisher.PublishOrderCreated(ctx, event)
	result := resultOK
	if err != nil {
		result = resultError
	}
	col.record("PublishOrderCreated", time.Since(start), result)
	return err
}

func callQuery(client *http.Client, cfg config, method, path string, col *collector) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.apiURL, "/")+path, nil)
	if err != nil {
		col.record(method, time.Since(start), resultError)
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		col.record(method, time.Since(start), resultError)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		col.record(method, time.Since(start), strconv.Itoa(resp.StatusCode))
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}
	col.record(method, time.Since(start), resultOK)
	return nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s transport=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		cfg.transport,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
