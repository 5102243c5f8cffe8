package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeApplicationPending   MessageType = "application.pending"
	MessageTypeApplicationCompleted MessageType = "application.completed"
	MessageTypeApplicationCancel    MessageType = "application.cancel"
	MessageTypeTargetReset          MessageType = "target.reset"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ApplicationPendingPayload — payload события о заявке, ожидающей выполнения.
type ApplicationPendingPayload struct {
	ApplicationID uuid.UUID `json:"application_id"`
}

// ApplicationCompletedPayload — payload события о завершённой заявке.
type ApplicationCompletedPayload struct {
	ApplicationID uuid.UUID `json:"application_id"`
	State         string    `json:"state"` // COMPLETED, FAILED или CANCELLED
	Outcome       string    `json:"outcome,omitempty"`
	Platform      string    `json:"platform"`
	DurationMs    int64     `json:"duration_ms"`
}

// ApplicationCancelPayload — payload команды отмены заявки.
type ApplicationCancelPayload struct {
	ApplicationID uuid.UUID `json:"application_id"`
}

// TargetResetPayload — payload операторского сброса здоровья цели.
type TargetResetPayload struct {
	Platform string `json:"platform"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishApplicationPending публикует событие о заявке, готовой к выполнению.
// Потребитель: Runner.
func (p *Publisher) PublishApplicationPending(ctx context.Context, applicationID uuid.UUID) error {
	return p.Publish(ctx, ExchangeApplications, RoutingKeyPending, newMessage(
		MessageTypeApplicationPending,
		ApplicationPendingPayload{ApplicationID: applicationID},
	))
}

// PublishApplicationCompleted публикует событие о завершённой заявке.
func (p *Publisher) PublishApplicationCompleted(ctx context.Context, payload ApplicationCompletedPayload) error {
	return p.Publish(ctx, ExchangeApplications, RoutingKeyCompleted, newMessage(
		MessageTypeApplicationCompleted,
		payload,
	))
}

// PublishApplicationCancel рассылает команду отмены всем runner'ам.
// Заявка живёт в памяти ровно одного runner'а — остальные игнорируют.
func (p *Publisher) PublishApplicationCancel(ctx context.Context, applicationID uuid.UUID) error {
	return p.Publish(ctx, ExchangeControl, "", newMessage(
		MessageTypeApplicationCancel,
		ApplicationCancelPayload{ApplicationID: applicationID},
	))
}

// PublishTargetReset рассылает команду сброса здоровья цели всем runner'ам.
func (p *Publisher) PublishTargetReset(ctx context.Context, platform string) error {
	return p.Publish(ctx, ExchangeControl, "", newMessage(
		MessageTypeTargetReset,
		TargetResetPayload{Platform: platform},
	))
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
