package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fystack/walletd/pkg/messaging"
	"github.com/fystack/walletd/pkg/rpc"
	"github.com/nats-io/nats.go"
)

const defaultHTTPTimeout = 30 * time.Second

type httpTransport struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPTransport posts requests to url, e.g. http://127.0.0.1:2345/rpc/v1.
func NewHTTPTransport(url, token string) Transport {
	return &httpTransport{url: url, token: token, client: &http.Client{Timeout: defaultHTTPTimeout}}
}

func (t *httpTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

type natsTransport struct {
	pubsub  messaging.PubSub
	subject string
	token   string
}

// NewNATSTransport sends requests over NATS request/reply.
func NewNATSTransport(pubsub messaging.PubSub, subject, token string) Transport {
	return &natsTransport{pubsub: pubsub, subject: subject, token: token}
}

func (t *natsTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHTTPTimeout)
		defer cancel()
	}
	msg := nats.NewMsg(t.subject)
	msg.Data = body
	if t.token != "" {
		msg.Header.Set(rpc.AuthorizationHeader, "Bearer "+t.token)
	}
	reply, err := t.pubsub.Request(ctx, msg)
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}
