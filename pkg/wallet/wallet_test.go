package wallet

import (
	"errors"
	"testing"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(opts ...Option) *Wallet {
	return New(keystore.NewMemoryStore(), opts...)
}

func requireDefault(t *testing.T, w *Wallet, want address.Address) {
	t.Helper()
	got, ok, err := w.DefaultAddress()
	require.NoError(t, err)
	require.True(t, ok, "expected a default address")
	assert.Equal(t, want, got)
}

func requireNoDefault(t *testing.T, w *Wallet) {
	t.Helper()
	got, ok, err := w.DefaultAddress()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, address.Undef, got)
}

func TestEmptyWallet(t *testing.T) {
	w := newTestWallet()
	requireNoDefault(t, w)

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestGenerateKey_FirstBecomesDefault(t *testing.T) {
	w := newTestWallet()
	a, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	requireDefault(t, w, a)

	b, err := w.GenerateKey(crypto.SigTypeBLS)
	require.NoError(t, err)
	assert.Equal(t, address.BLS, b.Protocol())
	requireDefault(t, w, a)

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []address.Address{a, b}, addrs)
}

func TestGenerateKey_Unsupported(t *testing.T) {
	w := newTestWallet()
	_, err := w.GenerateKey(crypto.SigType(42))
	assert.ErrorIs(t, err, crypto.ErrUnsupportedSigType)
}

func TestSetDefaultThenDeleteDefault(t *testing.T) {
	w := newTestWallet()
	a, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	b, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	requireDefault(t, w, a)

	require.NoError(t, w.SetDefault(b))
	requireDefault(t, w, b)

	require.NoError(t, w.Delete(b))
	requireNoDefault(t, w)

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	assert.Equal(t, []address.Address{a}, addrs)
}

func TestDeleteSoleDefault(t *testing.T) {
	w := newTestWallet()
	a, err := w.GenerateKey(crypto.SigTypeBLS)
	require.NoError(t, err)

	require.NoError(t, w.Delete(a))
	requireNoDefault(t, w)

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	assert.Empty(t, addrs)

	names, err := w.KeyStore().List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteNonDefaultKeepsDefault(t *testing.T) {
	w := newTestWallet()
	a, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	b, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	require.NoError(t, w.Delete(b))
	requireDefault(t, w, a)
}

func TestDeleteMissing(t *testing.T) {
	w := newTestWallet()
	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Delete(key.Address), keystore.ErrKeyInfoNotFound)
}

func TestSetDefaultUnknownLeavesStoreUnchanged(t *testing.T) {
	w := newTestWallet()
	a, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	before, err := w.KeyStore().List()
	require.NoError(t, err)

	unknown, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	assert.ErrorIs(t, w.SetDefault(unknown.Address), keystore.ErrKeyInfoNotFound)

	after, err := w.KeyStore().List()
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
	requireDefault(t, w, a)
}

func TestSetDefaultOnWalletWithoutDefault(t *testing.T) {
	w := newTestWallet()
	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	addr, err := w.Import(key.KeyInfo)
	require.NoError(t, err)
	requireNoDefault(t, w)

	require.NoError(t, w.SetDefault(addr))
	requireDefault(t, w, addr)
}

func TestImport(t *testing.T) {
	w := newTestWallet()
	key, err := GenerateKey(crypto.SigTypeBLS)
	require.NoError(t, err)

	addr, err := w.Import(key.KeyInfo)
	require.NoError(t, err)
	assert.Equal(t, key.Address, addr)
	requireNoDefault(t, w)

	has, err := w.Has(addr)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = w.Import(key.KeyInfo)
	assert.ErrorIs(t, err, keystore.ErrKeyExists)

	exported, err := w.Export(addr)
	require.NoError(t, err)
	assert.True(t, exported.Equal(key.KeyInfo))
}

func TestImportInvalid(t *testing.T) {
	w := newTestWallet()
	_, err := w.Import(keystore.KeyInfo{Type: crypto.SigTypeSecp256k1, PrivateKey: []byte{1}})
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
	_, err = w.Import(keystore.KeyInfo{Type: crypto.SigType(7), PrivateKey: []byte{1}})
	assert.ErrorIs(t, err, crypto.ErrUnsupportedSigType)
}

func TestImportPaddedBLSKeyRejected(t *testing.T) {
	w := newTestWallet()
	key, err := GenerateKey(crypto.SigTypeBLS)
	require.NoError(t, err)

	padded := keystore.KeyInfo{
		Type:       crypto.SigTypeBLS,
		PrivateKey: append(append([]byte{}, key.PrivateKey...), 0xde, 0xad, 0xbe, 0xef),
	}
	_, err = w.Import(padded)
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)

	addr, err := w.Import(key.KeyInfo)
	require.NoError(t, err)
	exported, err := w.Export(addr)
	require.NoError(t, err)
	assert.Len(t, exported.PrivateKey, len(key.PrivateKey))
}

func TestExportMissing(t *testing.T) {
	w := newTestWallet()
	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	_, err = w.Export(key.Address)
	assert.ErrorIs(t, err, keystore.ErrKeyInfoNotFound)

	has, err := w.Has(key.Address)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSignVerify(t *testing.T) {
	w := newTestWallet()
	for _, typ := range []crypto.SigType{crypto.SigTypeSecp256k1, crypto.SigTypeBLS} {
		t.Run(typ.String(), func(t *testing.T) {
			addr, err := w.GenerateKey(typ)
			require.NoError(t, err)

			msg := []byte("hello filecoin")
			sig, err := w.Sign(addr, msg)
			require.NoError(t, err)
			assert.NoError(t, crypto.Verify(sig, addr, msg))
			assert.ErrorIs(t, crypto.Verify(sig, addr, []byte("hello filecoin!")), crypto.ErrVerifyFailed)
		})
	}
}

func TestSignUnknown(t *testing.T) {
	w := newTestWallet()
	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	_, err = w.Sign(key.Address, []byte("x"))
	assert.ErrorIs(t, err, keystore.ErrKeyInfoNotFound)
}

func TestTryFind_NetworkPrefixFallback(t *testing.T) {
	address.SetCurrentNetwork(address.Mainnet)
	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	// registered while the node ran on testnet
	ks := keystore.NewMemoryStore()
	require.NoError(t, ks.Put(keystore.WalletPrefix+key.Address.Format(address.Testnet), key.KeyInfo))

	w := New(ks)
	_, err = w.FindKey(key.Address)
	assert.ErrorIs(t, err, keystore.ErrKeyInfoNotFound)

	ki, err := w.TryFind(key.Address)
	require.NoError(t, err)
	assert.True(t, ki.Equal(key.KeyInfo))

	sig, err := w.Sign(key.Address, []byte("m"))
	require.NoError(t, err)
	assert.NoError(t, crypto.Verify(sig, key.Address, []byte("m")))

	strict := New(ks, WithFallback(nil))
	_, err = strict.Sign(key.Address, []byte("m"))
	assert.ErrorIs(t, err, keystore.ErrKeyInfoNotFound)
}

func TestTryFind_CustomFallback(t *testing.T) {
	key, err := GenerateKey(crypto.SigTypeBLS)
	require.NoError(t, err)

	called := false
	w := newTestWallet(WithFallback(func(_ keystore.KeyStore, addr address.Address) (keystore.KeyInfo, error) {
		called = true
		assert.Equal(t, key.Address, addr)
		return key.KeyInfo, nil
	}))

	ki, err := w.TryFind(key.Address)
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, ki.Equal(key.KeyInfo))
}

func TestListAddrsSkipsUnknownEntries(t *testing.T) {
	ks := keystore.NewMemoryStore()
	w := New(ks)
	a, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	require.NoError(t, ks.Put("wallet-not-an-address", key.KeyInfo))
	require.NoError(t, ks.Put("something-else", key.KeyInfo))

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	assert.Equal(t, []address.Address{a}, addrs)
}

type failingStore struct {
	keystore.KeyStore
	err error
}

func (f failingStore) Get(string) (keystore.KeyInfo, error) { return keystore.KeyInfo{}, f.err }
func (f failingStore) List() ([]string, error)              { return nil, f.err }

func TestBackendErrorsSurface(t *testing.T) {
	boom := errors.New("disk on fire")
	w := New(failingStore{KeyStore: keystore.NewMemoryStore(), err: boom})
	key, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	_, err = w.Has(key.Address)
	assert.ErrorIs(t, err, boom)
	_, _, err = w.DefaultAddress()
	assert.ErrorIs(t, err, boom)
	_, err = w.ListAddrs()
	assert.ErrorIs(t, err, boom)
	_, err = w.Sign(key.Address, nil)
	assert.ErrorIs(t, err, boom)
}

func TestOtherNetworkSpellingIsManageable(t *testing.T) {
	address.SetCurrentNetwork(address.Testnet)
	t.Cleanup(func() { address.SetCurrentNetwork(address.Mainnet) })

	a, err := GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	b, err := GenerateKey(crypto.SigTypeBLS)
	require.NoError(t, err)

	// registered while the node ran on mainnet
	ks := keystore.NewMemoryStore()
	require.NoError(t, ks.Put(keystore.WalletPrefix+a.Address.Format(address.Mainnet), a.KeyInfo))
	require.NoError(t, ks.Put(keystore.WalletPrefix+b.Address.Format(address.Mainnet), b.KeyInfo))
	w := New(ks, WithFallback(nil))

	addrs, err := w.ListAddrs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []address.Address{a.Address, b.Address}, addrs)

	for _, addr := range addrs {
		has, err := w.Has(addr)
		require.NoError(t, err)
		assert.True(t, has, addr.String())
	}

	exported, err := w.Export(a.Address)
	require.NoError(t, err)
	assert.True(t, exported.Equal(a.KeyInfo))

	require.NoError(t, w.SetDefault(a.Address))
	requireDefault(t, w, a.Address)

	require.NoError(t, w.Delete(a.Address))
	requireNoDefault(t, w)
	has, err := w.Has(a.Address)
	require.NoError(t, err)
	assert.False(t, has)

	addrs, err = w.ListAddrs()
	require.NoError(t, err)
	assert.Equal(t, []address.Address{b.Address}, addrs)
}

type defaultPutFailStore struct {
	keystore.KeyStore
	err error
}

func (s defaultPutFailStore) Put(name string, ki keystore.KeyInfo) error {
	if name == keystore.DefaultName {
		return s.err
	}
	return s.KeyStore.Put(name, ki)
}

func TestGenerateKey_DefaultFailureRollsBack(t *testing.T) {
	boom := errors.New("default write failed")
	ks := keystore.NewMemoryStore()
	w := New(defaultPutFailStore{KeyStore: ks, err: boom})

	addr, err := w.GenerateKey(crypto.SigTypeSecp256k1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, address.Undef, addr)

	names, err := ks.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}
