package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fystack/walletd/pkg/logger"
	"github.com/fystack/walletd/pkg/messaging"
)

type WalletEventType string

const (
	KeyCreated     WalletEventType = "key_created"
	KeyImported    WalletEventType = "key_imported"
	KeyDeleted     WalletEventType = "key_deleted"
	DefaultChanged WalletEventType = "default_changed"
)

// WalletEventTopic matches every wallet lifecycle event.
const WalletEventTopic = "wallet.events.*"

func FormatWalletEventTopic(t WalletEventType) string {
	return "wallet.events." + string(t)
}

// WalletEvent never carries key material.
type WalletEvent struct {
	Type      WalletEventType `json:"type"`
	Address   string          `json:"address"`
	SigType   string          `json:"sig_type,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Publisher interface {
	Publish(e WalletEvent) error
}

type natsPublisher struct {
	pubsub messaging.PubSub
}

func NewPublisher(pubsub messaging.PubSub) Publisher {
	return &natsPublisher{pubsub: pubsub}
}

func (p *natsPublisher) Publish(e WalletEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal wallet event: %w", err)
	}
	if err := p.pubsub.Publish(FormatWalletEventTopic(e.Type), data); err != nil {
		return err
	}
	logger.Debug("Wallet event published", "type", e.Type, "address", e.Address)
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(WalletEvent) error { return nil }
