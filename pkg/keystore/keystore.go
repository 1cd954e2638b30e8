// Package keystore persists wallet key material under logical names.
package keystore

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
)

const (
	// DefaultName holds a copy of the default key.
	DefaultName = "default"
	// WalletPrefix prefixes the storage name of every registered key.
	WalletPrefix = "wallet-"
)

var (
	ErrKeyInfoNotFound  = errors.New("key info not found")
	ErrKeyExists        = errors.New("key already exists")
	ErrDecryptionFailed = errors.New("keystore decryption failed")
	ErrCorruptStore     = errors.New("keystore is corrupt")
	ErrStorageIO        = errors.New("keystore storage error")
)

// KeyInfo is the persisted key material of one key.
type KeyInfo struct {
	Type       crypto.SigType
	PrivateKey []byte
}

// Equal compares by value.
func (k KeyInfo) Equal(other KeyInfo) bool {
	return k.Type == other.Type && subtle.ConstantTimeCompare(k.PrivateKey, other.PrivateKey) == 1
}

func (k KeyInfo) Clone() KeyInfo {
	return KeyInfo{Type: k.Type, PrivateKey: append([]byte(nil), k.PrivateKey...)}
}

func (k KeyInfo) Validate() error {
	switch k.Type {
	case crypto.SigTypeSecp256k1, crypto.SigTypeBLS:
	default:
		return fmt.Errorf("%w: %s", crypto.ErrUnsupportedSigType, k.Type)
	}
	if len(k.PrivateKey) == 0 {
		return fmt.Errorf("%w: empty private key", crypto.ErrInvalidKey)
	}
	return nil
}

// KeyStore is implemented by every backend. Put never overwrites an existing
// name and Delete of a missing name fails with ErrKeyInfoNotFound.
type KeyStore interface {
	// List returns the names present at call time, in no particular order.
	List() ([]string, error)
	Get(name string) (KeyInfo, error)
	Put(name string, info KeyInfo) error
	Delete(name string) error
}

// KeyName is the storage name of the key for addr.
func KeyName(addr address.Address) string {
	return WalletPrefix + addr.String()
}

// AddressFromName parses a storage name produced by KeyName.
func AddressFromName(name string) (address.Address, bool) {
	if !strings.HasPrefix(name, WalletPrefix) {
		return address.Undef, false
	}
	addr, err := address.NewFromString(strings.TrimPrefix(name, WalletPrefix))
	if err != nil {
		return address.Undef, false
	}
	return addr, true
}

func ioError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageIO, err)
}
