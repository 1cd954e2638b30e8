package wallet

import (
	"fmt"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
)

// Key pairs stored key material with the public key and address derived
// from it. It is never persisted.
type Key struct {
	keystore.KeyInfo
	PublicKey []byte
	Address   address.Address
}

func NewKey(ki keystore.KeyInfo) (*Key, error) {
	pub, err := crypto.ToPublic(ki.Type, ki.PrivateKey)
	if err != nil {
		return nil, err
	}
	addr, err := crypto.AddressOf(ki.Type, pub)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	return &Key{KeyInfo: ki, PublicKey: pub, Address: addr}, nil
}

// GenerateKey creates a key without registering it anywhere.
func GenerateKey(typ crypto.SigType) (*Key, error) {
	pk, err := crypto.Generate(typ)
	if err != nil {
		return nil, err
	}
	return NewKey(keystore.KeyInfo{Type: typ, PrivateKey: pk})
}
