// Package wallet implements key registration, lookup, default selection and
// signing on top of a keystore backend.
package wallet

import (
	"errors"
	"fmt"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/samber/lo"
)

// FallbackLookup is the secondary path TryFind takes when the key is not
// stored under its canonical name.
type FallbackLookup func(ks keystore.KeyStore, addr address.Address) (keystore.KeyInfo, error)

// NetworkPrefixFallback looks the key up under the testnet and then the
// mainnet spelling of addr, so keys registered while the node ran on another
// network stay reachable.
func NetworkPrefixFallback(ks keystore.KeyStore, addr address.Address) (keystore.KeyInfo, error) {
	ki, err := ks.Get(keystore.WalletPrefix + addr.Format(address.Testnet))
	if !errors.Is(err, keystore.ErrKeyInfoNotFound) {
		return ki, err
	}
	return ks.Get(keystore.WalletPrefix + addr.Format(address.Mainnet))
}

type Option func(*Wallet)

// WithFallback replaces the TryFind fallback; nil disables it.
func WithFallback(f FallbackLookup) Option {
	return func(w *Wallet) { w.fallback = f }
}

// Wallet is not safe for concurrent mutation on its own; share it through
// Shared.
type Wallet struct {
	ks       keystore.KeyStore
	fallback FallbackLookup
}

func New(ks keystore.KeyStore, opts ...Option) *Wallet {
	w := &Wallet{ks: ks, fallback: NetworkPrefixFallback}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wallet) KeyStore() keystore.KeyStore {
	return w.ks
}

// GenerateKey creates and registers a key. The first key of an empty wallet
// becomes the default. On error the key is not left registered.
func (w *Wallet) GenerateKey(typ crypto.SigType) (address.Address, error) {
	key, err := GenerateKey(typ)
	if err != nil {
		return address.Undef, err
	}
	name := keystore.KeyName(key.Address)
	if err := w.ks.Put(name, key.KeyInfo); err != nil {
		return address.Undef, fmt.Errorf("register key: %w", err)
	}

	_, err = w.ks.Get(keystore.DefaultName)
	if errors.Is(err, keystore.ErrKeyInfoNotFound) {
		if err = w.ks.Put(keystore.DefaultName, key.KeyInfo); err != nil {
			err = fmt.Errorf("set default: %w", err)
		}
	}
	if err != nil {
		if rerr := w.ks.Delete(name); rerr != nil {
			logger.Error("Failed to roll back key registration", rerr, "address", key.Address.String())
		}
		return address.Undef, err
	}

	logger.Info("Key generated", "address", key.Address.String(), "type", typ.String())
	return key.Address, nil
}

func (w *Wallet) FindKey(addr address.Address) (*Key, error) {
	ki, err := w.ks.Get(keystore.KeyName(addr))
	if err != nil {
		return nil, err
	}
	return NewKey(ki)
}

// storedEntry returns the entry registered for addr under its canonical name
// or, for keys registered while the node ran on another network, under the
// other network spelling. ListAddrs reports entries under either spelling.
func (w *Wallet) storedEntry(addr address.Address) (string, keystore.KeyInfo, error) {
	names := lo.Uniq([]string{
		keystore.KeyName(addr),
		keystore.WalletPrefix + addr.Format(address.Testnet),
		keystore.WalletPrefix + addr.Format(address.Mainnet),
	})
	var firstErr error
	for _, name := range names {
		ki, err := w.ks.Get(name)
		if err == nil {
			return name, ki, nil
		}
		if !errors.Is(err, keystore.ErrKeyInfoNotFound) {
			return "", keystore.KeyInfo{}, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", keystore.KeyInfo{}, firstErr
}

// TryFind looks addr up under its canonical name, then through the fallback.
func (w *Wallet) TryFind(addr address.Address) (keystore.KeyInfo, error) {
	ki, err := w.ks.Get(keystore.KeyName(addr))
	if err == nil || !errors.Is(err, keystore.ErrKeyInfoNotFound) || w.fallback == nil {
		return ki, err
	}
	return w.fallback(w.ks, addr)
}

// DefaultAddress reports false when no default is set.
func (w *Wallet) DefaultAddress() (address.Address, bool, error) {
	ki, err := w.ks.Get(keystore.DefaultName)
	if errors.Is(err, keystore.ErrKeyInfoNotFound) {
		return address.Undef, false, nil
	}
	if err != nil {
		return address.Undef, false, err
	}
	key, err := NewKey(ki)
	if err != nil {
		return address.Undef, false, err
	}
	return key.Address, true, nil
}

// SetDefault replaces the default with the key registered for addr. An
// unknown addr leaves the store untouched.
func (w *Wallet) SetDefault(addr address.Address) error {
	_, ki, err := w.storedEntry(addr)
	if err != nil {
		return err
	}
	if err := w.ks.Delete(keystore.DefaultName); err != nil && !errors.Is(err, keystore.ErrKeyInfoNotFound) {
		return err
	}
	if err := w.ks.Put(keystore.DefaultName, ki); err != nil {
		return err
	}
	logger.Info("Default key changed", "address", addr.String())
	return nil
}

// Import registers existing key material. It never overwrites and does not
// touch the default.
func (w *Wallet) Import(ki keystore.KeyInfo) (address.Address, error) {
	key, err := NewKey(ki)
	if err != nil {
		return address.Undef, err
	}
	if err := w.ks.Put(keystore.KeyName(key.Address), key.KeyInfo); err != nil {
		return address.Undef, err
	}
	logger.Info("Key imported", "address", key.Address.String(), "type", ki.Type.String())
	return key.Address, nil
}

func (w *Wallet) Export(addr address.Address) (keystore.KeyInfo, error) {
	_, ki, err := w.storedEntry(addr)
	if err != nil {
		return keystore.KeyInfo{}, err
	}
	key, err := NewKey(ki)
	if err != nil {
		return keystore.KeyInfo{}, err
	}
	return key.KeyInfo, nil
}

// ListAddrs returns every registered address; the default entry is not
// listed separately.
func (w *Wallet) ListAddrs() ([]address.Address, error) {
	names, err := w.ks.List()
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(names, func(name string, _ int) (address.Address, bool) {
		if name == keystore.DefaultName {
			return address.Undef, false
		}
		addr, ok := keystore.AddressFromName(name)
		if !ok {
			logger.Warn("Skipping unrecognised keystore entry", "name", name)
		}
		return addr, ok
	}), nil
}

func (w *Wallet) Has(addr address.Address) (bool, error) {
	_, _, err := w.storedEntry(addr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, keystore.ErrKeyInfoNotFound):
		return false, nil
	}
	return false, err
}

// Delete removes the key for addr and clears the default if it held the same
// key material.
func (w *Wallet) Delete(addr address.Address) error {
	name, ki, err := w.storedEntry(addr)
	if err != nil {
		return err
	}
	if err := w.ks.Delete(name); err != nil {
		return err
	}

	def, err := w.ks.Get(keystore.DefaultName)
	switch {
	case errors.Is(err, keystore.ErrKeyInfoNotFound):
	case err != nil:
		return err
	case def.Equal(ki):
		if err := w.ks.Delete(keystore.DefaultName); err != nil {
			return err
		}
		logger.Info("Default key cleared", "address", addr.String())
	}

	logger.Info("Key deleted", "address", addr.String())
	return nil
}

// Sign signs msg with the key for addr, falling back to TryFind when it is
// not registered under its canonical name.
func (w *Wallet) Sign(addr address.Address, msg []byte) (*crypto.Signature, error) {
	key, err := w.FindKey(addr)
	if errors.Is(err, keystore.ErrKeyInfoNotFound) {
		var ki keystore.KeyInfo
		ki, err = w.TryFind(addr)
		if err == nil {
			key, err = NewKey(ki)
		}
	}
	if err != nil {
		return nil, err
	}
	return crypto.Sign(key.Type, key.PrivateKey, msg)
}
