package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fystack/walletd/pkg/auth"
	"github.com/fystack/walletd/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	mu           sync.Mutex
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
	return nil
}

type fakePubSub struct {
	mu      sync.Mutex
	subject string
	queue   string
	handler func(*nats.Msg)
	sub     *fakeSubscription
}

func (f *fakePubSub) Publish(string, []byte) error { return nil }

func (f *fakePubSub) Subscribe(string, func(*nats.Msg)) (messaging.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePubSub) QueueSubscribe(topic, queue string, handler func(*nats.Msg)) (messaging.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subject, f.queue, f.handler = topic, queue, handler
	f.sub = &fakeSubscription{}
	return f.sub, nil
}

func (f *fakePubSub) Request(context.Context, *nats.Msg) (*nats.Msg, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePubSub) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

func TestNATSConsumer_Reply(t *testing.T) {
	jwtManager := auth.NewJWTManager("nats-secret", "walletd", time.Hour)
	h := newTestHandler(t, WithAuth(jwtManager))
	c := NewNATSConsumer(&fakePubSub{}, "wallet.rpc", h)

	token, err := jwtManager.Generate("svc", auth.PermWrite)
	require.NoError(t, err)

	msg := nats.NewMsg("wallet.rpc")
	msg.Data = []byte(`{"jsonrpc":"2.0","id":7,"method":"` + MethodWalletNew + `","params":["bls"]}`)
	msg.Header.Set(AuthorizationHeader, "Bearer "+token)

	var resp Response
	require.NoError(t, json.Unmarshal(c.reply(msg), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, "7", string(resp.ID))

	anon := nats.NewMsg("wallet.rpc")
	anon.Data = msg.Data
	require.NoError(t, json.Unmarshal(c.reply(anon), &resp))
	requireCode(t, resp, CodeUnauthorized)
}

func TestNATSConsumer_Run(t *testing.T) {
	ps := &fakePubSub{}
	c := NewNATSConsumer(ps, "wallet.rpc", newTestHandler(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, ps.subscribed, time.Second, 10*time.Millisecond)
	assert.Equal(t, "wallet.rpc", ps.subject)
	assert.Equal(t, NATSQueueGroup, ps.queue)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, ps.sub.unsubscribed)
}
