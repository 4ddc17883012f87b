/*
Package broker consumes delivery lifecycle events from RabbitMQ.

PURPOSE:
  The dispatch system publishes status updates to a topic exchange. This
  package subscribes to the delivered events and hands each one to the
  reconciliation engine, so earnings are computed moments after a courier
  confirms a drop-off even when nobody calls the HTTP hook.

RESILIENCE:
  The connection watches NotifyClose and redials in a loop until Close()
  is called. Events published while the consumer is down wait in the
  durable queue.

SEE ALSO:
  - earnings/reconciler.go: OnDeliveryDelivered, the handler behind this
  - cmd/server/main.go: Wiring (enabled when AMQP_URL is set)
*/
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName   = "delivery_topic"
	queueName      = "delivery_status_delivered"
	deliveredKey   = "delivery.status.delivered"
	reconnectDelay = 3 * time.Second
)

// EventHandler receives delivered notifications. The reconciliation
// engine implements it.
type EventHandler interface {
	OnDeliveryDelivered(ctx context.Context, deliveryID string)
}

// DeliveryEvent is the wire shape published by the dispatch system.
type DeliveryEvent struct {
	DeliveryID string `json:"delivery_id"`
	DriverID   string `json:"driver_id,omitempty"`
	Status     string `json:"status"`
}

// Consumer subscribes to delivered events and forwards them to the handler.
type Consumer struct {
	logger    *slog.Logger
	handler   EventHandler
	conn      *amqp091.Connection
	connClose chan *amqp091.Error
	ch        *amqp091.Channel
	isClosed  atomic.Bool
}

// NewConsumer dials the broker, declares the topology and starts
// consuming. The returned consumer keeps itself connected until Close.
func NewConsumer(url string, handler EventHandler, logger *slog.Logger) (*Consumer, error) {
	c := &Consumer{logger: logger, handler: handler}
	if err := c.createChannel(url); err != nil {
		return nil, err
	}
	go c.reconnectConn(url)
	return c, nil
}

// Close stops the reconnect loop and closes the connection.
func (c *Consumer) Close() error {
	c.isClosed.Store(true)
	defer c.logger.Info("rabbit closed")
	return c.conn.Close()
}

func (c *Consumer) reconnectConn(url string) {
	for {
		<-c.connClose
		if c.isClosed.Load() {
			return
		}
		c.logger.Warn("rabbitMQ not working")
		for {
			if c.isClosed.Load() {
				return
			}
			c.logger.Info("trying to connect to rabbitmq")
			err := c.createChannel(url)
			if err != nil {
				time.Sleep(reconnectDelay)
				continue
			}
			c.logger.Info("connected to rabbitmq")
			break
		}
	}
}

func (c *Consumer) createChannel(url string) error {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return err
	}
	c.conn = conn
	c.connClose = make(chan *amqp091.Error)
	c.conn.NotifyClose(c.connClose)

	ch, err := c.conn.Channel()
	if err != nil {
		return errors.Join(c.conn.Close(), err)
	}
	c.ch = ch

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return errors.Join(c.conn.Close(), err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return errors.Join(c.conn.Close(), err)
	}
	if err := ch.QueueBind(q.Name, deliveredKey, exchangeName, false, nil); err != nil {
		return errors.Join(c.conn.Close(), err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return errors.Join(c.conn.Close(), err)
	}

	go c.consume(msgs)
	return nil
}

func (c *Consumer) consume(msgs <-chan amqp091.Delivery) {
	for msg := range msgs {
		var event DeliveryEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			c.logger.Error("bad delivery event", "error", err, "routing_key", msg.RoutingKey)
			continue
		}
		if event.DeliveryID == "" {
			c.logger.Error("delivery event without id", "routing_key", msg.RoutingKey)
			continue
		}
		c.handler.OnDeliveryDelivered(context.Background(), event.DeliveryID)
	}
}
