package wallet

import (
	"context"
	"io"
	"math"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
	"golang.org/x/sync/semaphore"
)

// Reader is the read-only view handed out under a shared guard.
type Reader interface {
	FindKey(addr address.Address) (*Key, error)
	TryFind(addr address.Address) (keystore.KeyInfo, error)
	DefaultAddress() (address.Address, bool, error)
	Export(addr address.Address) (keystore.KeyInfo, error)
	ListAddrs() ([]address.Address, error)
	Has(addr address.Address) (bool, error)
	Sign(addr address.Address, msg []byte) (*crypto.Signature, error)
}

var (
	_ Reader = (*Wallet)(nil)
	_ Reader = readOnly{}
)

// readOnly exposes only the Reader methods of a Wallet, so a callback under
// the shared guard cannot reach the mutators.
type readOnly struct {
	w *Wallet
}

func (r readOnly) FindKey(addr address.Address) (*Key, error) { return r.w.FindKey(addr) }

func (r readOnly) TryFind(addr address.Address) (keystore.KeyInfo, error) { return r.w.TryFind(addr) }

func (r readOnly) DefaultAddress() (address.Address, bool, error) { return r.w.DefaultAddress() }

func (r readOnly) Export(addr address.Address) (keystore.KeyInfo, error) { return r.w.Export(addr) }

func (r readOnly) ListAddrs() ([]address.Address, error) { return r.w.ListAddrs() }

func (r readOnly) Has(addr address.Address) (bool, error) { return r.w.Has(addr) }

func (r readOnly) Sign(addr address.Address, msg []byte) (*crypto.Signature, error) {
	return r.w.Sign(addr, msg)
}

const writerWeight = math.MaxInt32

// Shared owns a Wallet and serialises access to it: any number of readers or
// one writer. Waiters are served in arrival order, so a queued writer is not
// overtaken by readers that arrive after it.
type Shared struct {
	sem    *semaphore.Weighted
	wallet *Wallet
}

func NewShared(w *Wallet) *Shared {
	return &Shared{sem: semaphore.NewWeighted(writerWeight), wallet: w}
}

// Read runs fn under the shared guard. If ctx ends before the guard is
// acquired fn is not run and ctx.Err() is returned. Once fn starts it runs
// to completion.
func (s *Shared) Read(ctx context.Context, fn func(Reader) error) error {
	if err := s.acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn(readOnly{w: s.wallet})
}

// Write runs fn under the exclusive guard with the same cancellation rules
// as Read.
func (s *Shared) Write(ctx context.Context, fn func(*Wallet) error) error {
	if err := s.acquire(ctx, writerWeight); err != nil {
		return err
	}
	defer s.sem.Release(writerWeight)
	return fn(s.wallet)
}

func (s *Shared) acquire(ctx context.Context, n int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sem.Acquire(ctx, n)
}

// Close waits for in-flight operations and closes the backend if it holds
// resources.
func (s *Shared) Close() error {
	if err := s.sem.Acquire(context.Background(), writerWeight); err != nil {
		return err
	}
	defer s.sem.Release(writerWeight)
	if c, ok := s.wallet.ks.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
