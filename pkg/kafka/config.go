package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption configures Producer.
type ProducerOption func(*writerConfig)

// writerConfig collects kafka-go writer settings before construction.
// Defaults favor low-latency event delivery over batching throughput.
type writerConfig struct {
	brokers      []string
	balancer     kafka.Balancer
	acks         kafka.RequiredAcks
	compression  kafka.Compression
	maxAttempts  int
	batchTimeout time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration
}

func defaultWriterConfig() *writerConfig {
	return &writerConfig{
		balancer:     &kafka.LeastBytes{},
		acks:         kafka.RequireAll,
		compression:  kafka.Gzip,
		maxAttempts:  3,
		batchTimeout: 50 * time.Millisecond,
		writeTimeout: 10 * time.Second,
		readTimeout:  10 * time.Second,
	}
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *writerConfig) {
		c.brokers = brokers
	}
}

// WithCompression sets the compression codec by name. Unknown names
// fall back to gzip.
func WithCompression(name string) ProducerOption {
	return func(c *writerConfig) {
		switch name {
		case "snappy":
			c.compression = kafka.Snappy
		case "lz4":
			c.compression = kafka.Lz4
		case "zstd":
			c.compression = kafka.Zstd
		default:
			c.compression = kafka.Gzip
		}
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *writerConfig) {
		c.acks = kafka.RequiredAcks(acks)
	}
}

// WithMaxAttempts sets max delivery attempts by the writer.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *writerConfig) {
		c.maxAttempts = n
	}
}

// WithBatchTimeout sets how long the writer may hold a message waiting
// for a batch to fill.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *writerConfig) {
		c.batchTimeout = timeout
	}
}

// WithTimeouts sets writer write/read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *writerConfig) {
		c.writeTimeout = write
		c.readTimeout = read
	}
}

// WithHashByKey routes messages by key hash so all events for one key
// land on one partition, preserving their order.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *writerConfig) {
		if hash {
			c.balancer = &kafka.Hash{}
		} else {
			c.balancer = &kafka.LeastBytes{}
		}
	}
}
