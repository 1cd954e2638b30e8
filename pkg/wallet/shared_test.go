package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShared_ConcurrentReadersSeeWholeEntries(t *testing.T) {
	s := NewShared(newTestWallet())
	ctx := context.Background()

	const writes = 20
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			err := s.Write(ctx, func(w *Wallet) error {
				_, err := w.GenerateKey(crypto.SigTypeSecp256k1)
				return err
			})
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				err := s.Read(ctx, func(w Reader) error {
					addrs, err := w.ListAddrs()
					if err != nil {
						return err
					}
					for _, addr := range addrs {
						ki, err := w.Export(addr)
						if err != nil {
							return err
						}
						key, err := NewKey(ki)
						if err != nil {
							return err
						}
						if key.Address != addr {
							return errors.New("exported key does not match its address")
						}
					}
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	err := s.Read(ctx, func(w Reader) error {
		addrs, err := w.ListAddrs()
		require.NoError(t, err)
		assert.Len(t, addrs, writes)
		return nil
	})
	require.NoError(t, err)
}

func TestShared_ReadersShare(t *testing.T) {
	s := NewShared(newTestWallet())
	ctx := context.Background()

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Read(ctx, func(Reader) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ran := false
	require.NoError(t, s.Read(ctx2, func(Reader) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	close(release)
}

func TestShared_CancelWhileWaiting(t *testing.T) {
	s := NewShared(newTestWallet())

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Write(context.Background(), func(*Wallet) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := s.Read(ctx, func(Reader) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran.Load())

	err = s.Write(ctx, func(*Wallet) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran.Load())
}

func TestShared_AlreadyCancelled(t *testing.T) {
	s := NewShared(newTestWallet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Write(ctx, func(w *Wallet) error {
		_, err := w.GenerateKey(crypto.SigTypeSecp256k1)
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)

	err = s.Read(context.Background(), func(w Reader) error {
		addrs, err := w.ListAddrs()
		assert.Empty(t, addrs)
		return err
	})
	require.NoError(t, err)
}

func TestShared_NoCancellationOnceAcquired(t *testing.T) {
	s := NewShared(newTestWallet())
	ctx, cancel := context.WithCancel(context.Background())

	var addr address.Address
	err := s.Write(ctx, func(w *Wallet) error {
		cancel()
		var err error
		addr, err = w.GenerateKey(crypto.SigTypeBLS)
		return err
	})
	require.NoError(t, err)

	err = s.Read(context.Background(), func(w Reader) error {
		has, err := w.Has(addr)
		assert.True(t, has)
		return err
	})
	require.NoError(t, err)
}

func TestShared_WaitingWriterBlocksNewReaders(t *testing.T) {
	s := NewShared(newTestWallet())
	ctx := context.Background()

	readerIn := make(chan struct{})
	releaseReader := make(chan struct{})
	go func() {
		_ = s.Read(ctx, func(Reader) error {
			close(readerIn)
			<-releaseReader
			return nil
		})
	}()
	<-readerIn

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		_ = s.Write(ctx, func(w *Wallet) error {
			_, err := w.GenerateKey(crypto.SigTypeSecp256k1)
			return err
		})
	}()
	// let the writer queue up
	time.Sleep(50 * time.Millisecond)

	late, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.Read(late, func(Reader) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(releaseReader)
	select {
	case <-writerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("writer never acquired the guard")
	}
}

type closingStore struct {
	*keystore.MemoryStore
	closed bool
}

func (c *closingStore) Close() error {
	c.closed = true
	return nil
}

func TestShared_Close(t *testing.T) {
	store := &closingStore{MemoryStore: keystore.NewMemoryStore()}
	s := NewShared(New(store))
	require.NoError(t, s.Close())
	assert.True(t, store.closed)
}

func TestShared_ReadHidesMutators(t *testing.T) {
	s := NewShared(newTestWallet())
	t.Cleanup(func() { _ = s.Close() })

	err := s.Read(context.Background(), func(r Reader) error {
		_, ok := r.(*Wallet)
		assert.False(t, ok)
		_, ok = r.(interface {
			GenerateKey(crypto.SigType) (address.Address, error)
		})
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}
