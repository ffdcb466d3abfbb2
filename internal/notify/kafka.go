package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"schoolchat/backend/internal/chathub"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes notifications for the platform's push service,
// keyed by recipient so one user's notifications stay ordered.
type KafkaSender struct {
	w messageWriter
}

var _ chathub.PushSender = (*KafkaSender)(nil)

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func newKafkaSenderWithWriter(w messageWriter) *KafkaSender {
	return &KafkaSender{w: w}
}

func (s *KafkaSender) Push(ctx context.Context, n chathub.PushNotification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encoding notification")
	}
	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(n.UserID), 10)),
		Value: value,
		Time:  time.Now(),
	})
	return errors.Wrap(err, "writing notification to kafka")
}

func (s *KafkaSender) Close() error { return s.w.Close() }
