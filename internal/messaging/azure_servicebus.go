package messaging

import (
	"context"
	"time"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MessageHandler processes one received gateway notification message.
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error

// AzureServiceBus consumes gateway notification messages from a queue.
// The queue is an at-least-once delivery channel: the settlement layer's
// guarded transitions make redelivered messages safe no-ops.
type AzureServiceBus struct {
	client    *azservicebus.Client
	queueName string
	tracer    tracing.Tracer
}

// NewAzureServiceBus creates a new Service Bus consumer
func NewAzureServiceBus(cfg config.AzureConfig, tracer tracing.Tracer) (*AzureServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	return &AzureServiceBus{
		client:    client,
		queueName: cfg.QueueName,
		tracer:    tracer,
	}, nil
}

// ProcessMessages receives and dispatches messages until the context is
// cancelled. Failed messages are abandoned so the queue redelivers them.
func (b *AzureServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := b.client.NewReceiverForQueue(b.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close Service Bus receiver")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Failed to receive messages, retrying")
			time.Sleep(2 * time.Second)
			continue
		}

		for _, message := range messages {
			txn := b.tracer.StartTransaction("process-gateway-notification")

			if err := handler(ctx, message, txn); err != nil {
				b.tracer.RecordError(txn, err)
				log.Error().
					Err(err).
					Str("message_id", message.MessageID).
					Msg("Failed to process gateway notification message")

				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", message.MessageID).Msg("Failed to abandon message")
				}
				b.tracer.EndTransaction(txn)
				continue
			}

			if completeErr := receiver.CompleteMessage(ctx, message, nil); completeErr != nil {
				log.Error().Err(completeErr).Str("message_id", message.MessageID).Msg("Failed to complete message")
			}
			b.tracer.EndTransaction(txn)
		}
	}
}

// Close closes the Service Bus client
func (b *AzureServiceBus) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close(context.Background())
}
