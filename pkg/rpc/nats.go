package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/walletd/pkg/logger"
	"github.com/fystack/walletd/pkg/messaging"
	"github.com/nats-io/nats.go"
)

const (
	// NATSQueueGroup load balances requests across walletd instances.
	NATSQueueGroup = "walletd"
	// AuthorizationHeader carries the token on NATS requests.
	AuthorizationHeader = "Authorization"

	natsRequestTimeout = 30 * time.Second
)

// NATSConsumer answers JSON-RPC requests arriving on a NATS subject.
type NATSConsumer struct {
	pubsub  messaging.PubSub
	subject string
	handler *Handler
	sub     messaging.Subscription
}

func NewNATSConsumer(pubsub messaging.PubSub, subject string, handler *Handler) *NATSConsumer {
	return &NATSConsumer{pubsub: pubsub, subject: subject, handler: handler}
}

// Run subscribes and blocks until ctx is cancelled.
func (c *NATSConsumer) Run(ctx context.Context) error {
	sub, err := c.pubsub.QueueSubscribe(c.subject, NATSQueueGroup, c.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to rpc requests: %w", err)
	}
	c.sub = sub
	logger.Info("NATSConsumer: Subscribed to rpc requests", "subject", c.subject)

	<-ctx.Done()
	logger.Info("NATSConsumer: Context cancelled, shutting down")
	return c.Close()
}

func (c *NATSConsumer) handleMessage(msg *nats.Msg) {
	resp := c.reply(msg)
	if resp == nil || msg.Reply == "" {
		return
	}
	if err := msg.Respond(resp); err != nil {
		logger.Error("Failed to respond to rpc request", err, "subject", msg.Subject)
	}
}

func (c *NATSConsumer) reply(msg *nats.Msg) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), natsRequestTimeout)
	defer cancel()
	return c.handler.HandleRaw(ctx, BearerToken(msg.Header.Get(AuthorizationHeader)), msg.Data)
}

func (c *NATSConsumer) Close() error {
	if c.sub == nil {
		return nil
	}
	if err := c.sub.Unsubscribe(); err != nil {
		logger.Error("Failed to unsubscribe from rpc requests", err)
		return err
	}
	c.sub = nil
	logger.Info("NATSConsumer: Unsubscribed from rpc requests")
	return nil
}
