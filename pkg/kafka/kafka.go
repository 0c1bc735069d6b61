package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	NotificationTopic = "lending.notifications"
	ReadingHoursTopic = "lending.reading-hours"

	ReadingHoursConsumerGroup = "lending-reading-hours"
)

// Notification event kinds published on NotificationTopic.
const (
	EventOverduePenalty = "OVERDUE_PENALTY"
	EventCreditDeducted = "CREDIT_DEDUCTED"
	EventTierUpgraded   = "TIER_UPGRADED"
)

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
}

// EventNotification replaces the modal dialogs the desktop client used to
// pop from inside policy code: the UI subscribes instead.
type EventNotification struct {
	Kind        string    `json:"kind"`
	UserID      string    `json:"userId"`
	ISBN        string    `json:"isbn,omitempty"`
	Points      int       `json:"points,omitempty"`
	CreditScore int       `json:"creditScore,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// EventReadingHours is reported by reading clients and feeds the
// tier-upgrade eligibility counter.
type EventReadingHours struct {
	UserID string  `json:"userId"`
	Hours  float64 `json:"hours"`
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()
	defaultCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume runs the consumer group loop until ctx is cancelled.
func Consume(ctx context.Context, consumer sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topic string, log *zap.Logger) {
	for {
		if err := consumer.Consume(ctx, []string{topic}, handler); err != nil {
			log.Error("consumer.Consume", zap.String("topic", topic), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
