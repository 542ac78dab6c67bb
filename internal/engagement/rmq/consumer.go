package rmq

import (
	"encoding/json"
	"fmt"

	common "ride-engagement/internal/common/rmq"

	"go.uber.org/zap"
)

// Consumer feeds driver location updates from the queue into the position
// feed, the alternate position source when the app reports over the bus
// instead of the WebSocket.
type Consumer struct {
	conn *common.RabbitMQ
	log  *zap.Logger
}

func NewConsumer(conn *common.RabbitMQ, log *zap.Logger) *Consumer {
	return &Consumer{conn: conn, log: log}
}

func (c *Consumer) ConsumeLocationUpdates(queueName string, handler func(msg common.LocationUpdateMessage)) error {
	ch := c.conn.Chan
	const exchange = "driver_location"

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		q.Name,
		"driver.location.*",
		exchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		for d := range deliveries {
			var msg common.LocationUpdateMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				c.log.Warn("failed to unmarshal location update", zap.Error(err))
				continue
			}
			handler(msg)
		}
	}()

	return nil
}
