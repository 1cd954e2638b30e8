package messaging

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

type Subscription interface {
	Unsubscribe() error
}

// PubSub is plain core NATS publish/subscribe plus request/reply.
type PubSub interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, handler func(msg *nats.Msg)) (Subscription, error)
	QueueSubscribe(topic, queue string, handler func(msg *nats.Msg)) (Subscription, error)
	Request(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

type natsPubSub struct {
	nc *nats.Conn
}

func NewNATSPubSub(nc *nats.Conn) PubSub {
	return &natsPubSub{nc: nc}
}

func (n *natsPubSub) Publish(topic string, message []byte) error {
	if err := n.nc.Publish(topic, message); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (n *natsPubSub) Subscribe(topic string, handler func(msg *nats.Msg)) (Subscription, error) {
	sub, err := n.nc.Subscribe(topic, handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return sub, nil
}

func (n *natsPubSub) QueueSubscribe(topic, queue string, handler func(msg *nats.Msg)) (Subscription, error) {
	sub, err := n.nc.QueueSubscribe(topic, queue, handler)
	if err != nil {
		return nil, fmt.Errorf("queue subscribe %s: %w", topic, err)
	}
	return sub, nil
}

func (n *natsPubSub) Request(ctx context.Context, msg *nats.Msg) (*nats.Msg, error) {
	return n.nc.RequestMsgWithContext(ctx, msg)
}
