// Package notifier publishes post-capture sale notifications.
package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
)

// SaleMessage is the wire form of a sale notification.
type SaleMessage struct {
	ID       string    `json:"id"`
	MemberID int64     `json:"member_id"`
	SheetID  int64     `json:"sheet_id"`
	Period   string    `json:"period"`
	Amount   string    `json:"amount"`
	Captured time.Time `json:"captured_at"`
}

// KafkaNotifier writes one message per sold line, keyed by member id.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (n *KafkaNotifier) NotifySales(ctx context.Context, sales []domain.SaleNotification) error {
	if len(sales) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(sales))
	for _, s := range sales {
		msg, err := encodeSale(s)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Add(float64(len(msgs)))
		return err
	}
	metrics.NotificationsPublished.WithLabelValues("ok").Add(float64(len(msgs)))
	n.logger.Debug("sale notifications published", "count", len(msgs))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func encodeSale(s domain.SaleNotification) (kafka.Message, error) {
	body := SaleMessage{
		ID:       uuid.NewString(),
		MemberID: s.MemberID,
		SheetID:  s.SheetID,
		Period:   s.Period.String(),
		Amount:   s.Amount.StringFixed(2),
		Captured: s.Captured.UTC(),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(s.MemberID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("sale_captured")},
			{Key: "message_id", Value: []byte(body.ID)},
			{Key: "period", Value: []byte(body.Period)},
		},
	}, nil
}

// Nop discards notifications; used when no brokers are configured.
type Nop struct{}

func (Nop) NotifySales(context.Context, []domain.SaleNotification) error { return nil }
