package handler

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/model"
	"github.com/openshelf/lending-service/pkg/kafka"
)

type readingHours func(ctx context.Context, userID string, hours float64) (model.User, error)

// Consumer ingests reading-session reports from the reading clients and
// feeds the tier-upgrade counter.
type Consumer struct {
	readingHandler readingHours
	log            *zap.Logger
	ready          chan bool
}

func NewConsumer(readingHandler readingHours, log *zap.Logger) *Consumer {
	return &Consumer{
		readingHandler: readingHandler,
		log:            log.Named("consumer"),
		ready:          make(chan bool),
	}
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	// Mark the consumer as ready
	close(consumer.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var event kafka.EventReadingHours
			if err := json.Unmarshal(message.Value, &event); err != nil {
				consumer.log.Error("", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			if _, err := consumer.readingHandler(context.Background(), event.UserID, event.Hours); err != nil {
				consumer.log.Error("consumer.readingHandler", zap.Error(err))
				continue
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
