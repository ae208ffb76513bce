package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/config"
)

const changeTypeHeader = "X-Change-Type"

const (
	changeTypeRoster = "roster_update"
	changeTypeImage  = "image_update"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes change events as JSON messages.
type Kafka struct {
	logger *zap.SugaredLogger
	w      messageWriter
}

// imageEvent is the message value for an image update.
type imageEvent struct {
	Path string `json:"path"`
}

// NewKafka creates an async writer for cfg.Topic. The writer is closed when
// ctx is cancelled; wg is marked done once that has happened.
func NewKafka(ctx context.Context, wg *sync.WaitGroup, logger *zap.SugaredLogger, cfg config.KafkaConfig) *Kafka {
	w := &kafka.Writer{
		Addr:        kafka.TCP(cfg.Brokers...),
		Topic:       cfg.Topic,
		Async:       true,
		Balancer:    &kafka.Hash{},
		ErrorLogger: zap.NewStdLog(logger.Desugar()),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		logger.Info("shutting down kafka writer")
		if err := w.Close(); err != nil {
			logger.Errorw("failed to close kafka writer", "error", err)
		}
	}()

	return &Kafka{
		logger: logger,
		w:      w,
	}
}

func (k *Kafka) RosterUpdate(ctx context.Context, change Change) error {
	if err := k.publishMessage(ctx, changeTypeRoster, change.Pseudonym, change); err != nil {
		return fmt.Errorf("failed to publish roster update: %w", err)
	}
	return nil
}

func (k *Kafka) ImageUpdate(ctx context.Context, path string) error {
	if err := k.publishMessage(ctx, changeTypeImage, path, imageEvent{Path: path}); err != nil {
		return fmt.Errorf("failed to publish image update: %w", err)
	}
	return nil
}

func (k *Kafka) publishMessage(ctx context.Context, changeType, key string, value any) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := k.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   bytes,
		Headers: []kafka.Header{{Key: changeTypeHeader, Value: []byte(changeType)}},
	}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}
