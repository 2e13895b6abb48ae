package sink

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/rzbill/funnel/internal/event"
)

// KafkaSink writes one Kafka message per event, keyed by event ID so a
// partitioned topic still observes per-batch ordering within a key range.
// The batch ID travels in a message header for downstream correlation.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafka creates a KafkaSink for the given brokers ("host:port,host:port")
// and topic. RequireAll acks: a Send that returns nil has been accepted by
// all in-sync replicas.
func NewKafka(brokers, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.LeastBytes{},
		},
	}
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, batch *event.Batch) error {
	msgs := make([]kafka.Message, 0, batch.Len())
	for _, ev := range batch.Events {
		headers := []kafka.Header{{Key: "funnel-batch-id", Value: []byte(batch.ID)}}
		for k, v := range ev.Headers {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.ID.String()),
			Value:   ev.Payload,
			Time:    ev.ReceivedAt,
			Headers: headers,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// kafka-go surfaces both broker unavailability and message-level
		// rejections here; treat everything as retryable and let the bounded
		// attempt count terminate persistent failures.
		return Retryable("kafka", err)
	}
	return nil
}

// Close implements Sink.
func (s *KafkaSink) Close() error { return s.writer.Close() }
