package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// KafkaPublisher publishes processing events to a Kafka topic. Keyed by
// media id so re-queues of one item stay on one partition.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &KafkaPublisher{writer: w}
}

// Publish marshals the event and writes it to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, evt simplemedia.ProcessingEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(evt.MediaID.String()),
		Value: b,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads processing events from a topic within a consumer
// group and feeds them to a handler. Delivery is at-least-once: an offset
// commits only after the handler returns, so a crash re-delivers.
type KafkaConsumer struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewKafkaConsumer creates a consumer for the given brokers, topic, and
// group.
func NewKafkaConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &KafkaConsumer{reader: r, logger: logger}
}

// Run consumes until the context is canceled. Handler errors are logged
// and the offset still commits: the stalled sweep, not the queue, owns
// retries of failed processing.
func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch event: %w", err)
		}

		var evt simplemedia.ProcessingEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.logger.Warn("dropping malformed event", "error", err)
		} else if err := h(ctx, evt); err != nil {
			c.logger.Warn("event handler failed", "media_id", evt.MediaID, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
