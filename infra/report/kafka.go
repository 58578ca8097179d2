package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	corereport "github.com/kilianp07/fleetsim/core/report"
)

// KafkaConfig selects the brokers and topic of the Kafka handler.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// SetDefaults fills zero values.
func (c *KafkaConfig) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "fleetsim.reports"
	}
}

// Validate requires at least one broker.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	return nil
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var newKafkaWriter = func(brokers []string) kafkaWriter {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
}

// KafkaHandler writes each batch as messages keyed by run id, so the reports
// of one run stay ordered within a partition.
type KafkaHandler struct {
	w     kafkaWriter
	topic string
}

// NewKafkaHandler builds the writer. Brokers are contacted on first write.
func NewKafkaHandler(cfg KafkaConfig) (*KafkaHandler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &KafkaHandler{w: newKafkaWriter(cfg.Brokers), topic: cfg.Topic}, nil
}

func (h *KafkaHandler) Handle(ctx context.Context, b corereport.Batch) error {
	if len(b.Reports) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(b.Reports))
	for _, rec := range records(b) {
		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Topic:   h.topic,
			Key:     []byte(rec.RunID),
			Value:   value,
			Headers: []kafka.Header{{Key: "report_type", Value: []byte(rec.Type)}},
		})
	}
	if err := h.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write %s: %w", h.topic, err)
	}
	return nil
}

func (h *KafkaHandler) Close() error { return h.w.Close() }
