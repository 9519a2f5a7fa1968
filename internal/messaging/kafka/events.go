package kafka

import "time"

// Topics для Kafka
const (
	TopicOrderCreated    = "orderms.order.created"
	TopicDeadLetterQueue = "orderms.dlq" // Dead Letter Queue для failed messages

	DefaultGroupID = "orderms"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// DeadLetter описывает сообщение, отправленное в DLQ.
// Формат читает cmd/dlq-reprocess.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	Permanent         bool      `json:"permanent"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}
