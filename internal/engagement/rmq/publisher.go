package rmq

import (
	"context"
	"encoding/json"
	"fmt"

	common "ride-engagement/internal/common/rmq"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher pushes engagement milestone events onto the topic exchange.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewPublisher(conn *common.RabbitMQ, exchange string, log *zap.Logger) (*Publisher, error) {
	if err := conn.Chan.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{channel: conn.Chan, exchange: exchange, log: log}, nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", routingKey, err)
	}

	if err := p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		p.log.Warn("failed to publish event", zap.String("routing_key", routingKey), zap.Error(err))
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	p.log.Debug("event published", zap.String("routing_key", routingKey))
	return nil
}

func (p *Publisher) PublishPhaseChanged(ctx context.Context, msg common.PhaseChangedMessage) error {
	return p.publish(ctx, "engagement.phase_changed", msg)
}

func (p *Publisher) PublishZoneEntered(ctx context.Context, msg common.ZoneEnteredMessage) error {
	return p.publish(ctx, "engagement.zone_entered", msg)
}

func (p *Publisher) PublishConfirmationResolved(ctx context.Context, msg common.ConfirmationResolvedMessage) error {
	return p.publish(ctx, "engagement.confirmation_resolved", msg)
}

func (p *Publisher) PublishAttestationCreated(ctx context.Context, msg common.AttestationCreatedMessage) error {
	return p.publish(ctx, "engagement.attestation_created", msg)
}
