package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/config"
)

// Notifier は RabbitMQ に通知イベントを発行する
// 発行ごとに接続を張り直す。通知はベストエフォートであり、
// ブローカー障害が予約処理を巻き込まないことを優先する
type Notifier struct {
	url   string
	queue string
}

func NewNotifier(cfg *config.RabbitMQConfig) *Notifier {
	return &Notifier{url: cfg.URL, queue: cfg.Queue}
}

type message struct {
	RequesterID string         `json:"requester_id"`
	EventKind   string         `json:"event_kind"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Notify は通知を永続メッセージとしてキューに発行する
func (n *Notifier) Notify(ctx context.Context, notification application.Notification) error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("RabbitMQ接続に失敗: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("チャネル作成に失敗: %w", err)
	}
	defer ch.Close()

	// durable キューを冪等に宣言する
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("キュー宣言に失敗: %w", err)
	}

	body, err := json.Marshal(message{
		RequesterID: notification.RequesterID,
		EventKind:   notification.EventKind,
		Payload:     notification.Payload,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("メッセージ変換に失敗: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		return fmt.Errorf("メッセージ発行に失敗: %w", err)
	}
	return nil
}

var _ application.Notifier = (*Notifier)(nil)
