package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeApplications Exchange = "formata.applications"
	ExchangeControl      Exchange = "formata.control"
	ExchangeDLQ          Exchange = "formata.dlq"
)

// Queues — имена очередей.
const (
	QueueApplicationsPending   Queue = "applications.pending"
	QueueApplicationsCompleted Queue = "applications.completed"
	QueueDLQApplications       Queue = "dlq.applications"
)

// Routing keys.
const (
	RoutingKeyPending         RoutingKey = "pending"
	RoutingKeyCompleted       RoutingKey = "completed"
	RoutingKeyDLQApplications RoutingKey = "applications"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентна: повторное объявление существующей топологии безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
//
// formata.control — fanout: команды отмены и сброса должны услышать
// все runner'ы, потому что только тот, в чьей памяти живёт заявка,
// может её отменить.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeApplications, "direct"},
		{ExchangeControl, "fanout"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQApplications),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// applications.pending — с DLQ (заявка может уходить в DLQ после retry)
		{QueueApplicationsPending, dlqArgs},

		// applications.completed — без DLQ (события завершения)
		{QueueApplicationsCompleted, nil},

		// dlq.applications — сама DLQ очередь
		{QueueDLQApplications, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueApplicationsPending, RoutingKeyPending, ExchangeApplications},
		{QueueApplicationsCompleted, RoutingKeyCompleted, ExchangeApplications},
		{QueueDLQApplications, RoutingKeyDLQApplications, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// DeclareControlQueue объявляет эксклюзивную очередь runner'а и привязывает
// её к control-обменнику. Очередь авто-именованная и умирает вместе с
// соединением: каждый runner слышит каждую команду, пока жив.
func DeclareControlQueue(ctx context.Context, conn *Connection) (Queue, error) {
	var name Queue
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // auto-generated name
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare control queue: %w", err)
		}

		if err := ch.QueueBind(q.Name, "", string(ExchangeControl), false, nil); err != nil {
			return fmt.Errorf("bind control queue %s: %w", q.Name, err)
		}

		name = Queue(q.Name)
		return nil
	})
	return name, err
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Formata RabbitMQ Topology:

    formata.applications (direct)
    ├── applications.pending [routing: pending]
    │       Consumer: Runner
    │       DLQ: dlq.applications
    └── applications.completed [routing: completed]
            Consumer: Scheduler

    formata.control (fanout)
    └── <runner-exclusive> [broadcast]
            Consumer: каждый Runner
            Commands: application.cancel, target.reset

    formata.dlq (direct)
    └── dlq.applications [routing: applications]
            Manual processing
  `
}
