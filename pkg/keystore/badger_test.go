package keystore

import (
	"path/filepath"
	"testing"

	"github.com/fystack/walletd/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBadgerKey = []byte("0123456789abcdef0123456789abcdef")

func newTestBadgerStore(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(BadgerConfig{
		NodeID:           "test",
		EncryptionKey:    testBadgerKey,
		BackupPassphrase: "backup-pw",
		BackupDir:        filepath.Join(dir, "backups"),
		DBPath:           filepath.Join(dir, "db"),
	})
	require.NoError(t, err)
	return store
}

func TestBadgerStore(t *testing.T) {
	testKeyStoreContract(t, func(t *testing.T) KeyStore {
		store := newTestBadgerStore(t, t.TempDir())
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestBadgerStore_EncryptionKeyValidation(t *testing.T) {
	_, err := NewBadgerStore(BadgerConfig{DBPath: t.TempDir()})
	assert.ErrorIs(t, err, ErrEncryptionKeyNotProvided)

	_, err = NewBadgerStore(BadgerConfig{DBPath: t.TempDir(), EncryptionKey: []byte("short")})
	assert.ErrorIs(t, err, ErrInvalidEncryptionKey)
}

func TestBadgerStore_BackupRestore(t *testing.T) {
	dir := t.TempDir()
	store := newTestBadgerStore(t, dir)
	a := newKeyInfo(t, crypto.SigTypeSecp256k1)
	b := newKeyInfo(t, crypto.SigTypeBLS)
	require.NoError(t, store.Put("wallet-a", a))
	require.NoError(t, store.Put("wallet-b", b))

	path, err := store.Backup()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	latest, err := LatestBackup(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.Equal(t, path, latest)

	restoreDir := filepath.Join(t.TempDir(), "restored")
	assert.ErrorIs(t, RestoreBackup(path, "wrong", restoreDir, testBadgerKey), ErrDecryptionFailed)
	require.NoError(t, RestoreBackup(path, "backup-pw", restoreDir, testBadgerKey))

	restored, err := NewBadgerStore(BadgerConfig{EncryptionKey: testBadgerKey, DBPath: restoreDir})
	require.NoError(t, err)
	defer restored.Close()

	got, err := restored.Get("wallet-b")
	require.NoError(t, err)
	assert.True(t, got.Equal(b))
	names, err := restored.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wallet-a", "wallet-b"}, names)
}

func TestBadgerStore_BackupNotConfigured(t *testing.T) {
	store, err := NewBadgerStore(BadgerConfig{EncryptionKey: testBadgerKey, DBPath: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Backup()
	assert.Error(t, err)
}

func TestBackupTimeOrdering(t *testing.T) {
	assert.Less(t, backupTime("node-9"+backupExt), backupTime("node-10"+backupExt))
}
