package notify

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	cb "github.com/openshelf/lending-service/pkg/circuit_breaker"
	"github.com/openshelf/lending-service/pkg/kafka"
)

// Notifier is the alert channel the policy core publishes to instead of
// driving presentation itself: credit drops, overdue penalties and tier
// upgrades become events the UI layer can subscribe to.
type Notifier interface {
	Notify(event kafka.EventNotification) error
}

type kafkaNotifier struct {
	producer sarama.SyncProducer
	breaker  cb.CircuitBreaker
	log      *zap.Logger
}

func New(producer sarama.SyncProducer, log *zap.Logger) Notifier {
	return &kafkaNotifier{
		producer: producer,
		breaker:  cb.New(20, 30*time.Second, 0.5, 5),
		log:      log.Named("notify"),
	}
}

// Notify publishes through a circuit breaker so a dead broker cannot
// stall borrow/return call paths. A dropped notification is logged, not
// surfaced: alerts are best effort.
func (n *kafkaNotifier) Notify(event kafka.EventNotification) error {
	err := n.breaker.Call(func() error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{Topic: kafka.NotificationTopic, Value: sarama.StringEncoder(data)}
		_, _, err = n.producer.SendMessage(msg)
		return err
	})
	if err != nil {
		n.log.Warn("notification dropped", zap.String("kind", event.Kind), zap.Error(err))
	}
	return err
}

type nopNotifier struct{}

func Nop() Notifier { return nopNotifier{} }

func (nopNotifier) Notify(kafka.EventNotification) error { return nil }
