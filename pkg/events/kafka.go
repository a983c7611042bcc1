package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaBus carries events over a single Kafka topic. Every process must
// consume with its own group ID, otherwise the group splits the stream and
// processes miss events.
type KafkaBus struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger zerolog.Logger
}

func NewKafkaBus(brokers []string, topic string, groupID string, logger zerolog.Logger) *KafkaBus {
	if groupID == "" {
		groupID = "uwave-" + uuid.NewString()
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaBus{
		writer: writer,
		reader: reader,
		logger: logger.With().Str("ns", "uwave:events:kafka").Logger(),
	}
}

func (k *KafkaBus) Publish(ctx context.Context, ev Event) error {
	value, err := Encode(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.Name()),
		Value: value,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaBus) Subscribe(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		ev, ts, err := Decode(msg.Value)
		if err != nil {
			k.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("dropping malformed message")
			continue
		}

		if err := handler(Delivery{Event: ev, Timestamp: ts, Raw: msg.Value}); err != nil {
			return fmt.Errorf("failed to handle event: %w", err)
		}
	}
}

func (k *KafkaBus) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
