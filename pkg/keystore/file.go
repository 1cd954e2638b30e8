package keystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"
	"github.com/fystack/walletd/pkg/logger"
)

const (
	DefaultScryptWorkFactor = 18
	maxDefaultWorkFactor    = 22

	fileMode = 0o600
	dirMode  = 0o700
)

type FileStoreConfig struct {
	Path string
	// Passphrase encrypts the file at rest. Empty keeps the file as plain JSON.
	Passphrase string
	// WorkFactor is the scrypt log2(N) used when writing.
	WorkFactor int
}

// FileStore keeps all keys in one file which is rewritten on every mutation.
// With a passphrase the file is an age envelope: scrypt derives the wrapping
// key from the passphrase and a per-file salt, and the payload is sealed with
// ChaCha20-Poly1305 under a file key that is fresh on every write.
type FileStore struct {
	mu         sync.RWMutex
	path       string
	passphrase string
	workFactor int
	keys       map[string]KeyInfo
}

var _ KeyStore = (*FileStore)(nil)

// NewFileStore opens the keystore at cfg.Path. A missing file is an empty
// store; it is created on first write.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("keystore path is required")
	}
	if cfg.WorkFactor <= 0 {
		cfg.WorkFactor = DefaultScryptWorkFactor
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, ioError("create keystore dir", err)
	}

	f := &FileStore{
		path:       cfg.Path,
		passphrase: cfg.Passphrase,
		workFactor: cfg.WorkFactor,
		keys:       make(map[string]KeyInfo),
	}

	info, err := os.Stat(cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("Keystore file not found, starting empty", "path", cfg.Path)
		return f, nil
	}
	if err != nil {
		return nil, ioError("stat keystore", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		logger.Warn("Keystore file is readable by other users", "path", cfg.Path, "mode", info.Mode().Perm().String())
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, ioError("read keystore", err)
	}
	keys, err := f.decode(data)
	if err != nil {
		return nil, err
	}
	f.keys = keys
	logger.Info("Keystore loaded", "path", cfg.Path, "entries", len(keys), "encrypted", f.encrypted())
	return f, nil
}

func (f *FileStore) encrypted() bool { return f.passphrase != "" }

func (f *FileStore) List() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.keys))
	for name := range f.keys {
		names = append(names, name)
	}
	return names, nil
}

func (f *FileStore) Get(name string) (KeyInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ki, ok := f.keys[name]
	if !ok {
		return KeyInfo{}, fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	return ki.Clone(), nil
}

func (f *FileStore) Put(name string, info KeyInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	next := f.snapshot()
	next[name] = info.Clone()
	return f.commit(next)
}

func (f *FileStore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	next := f.snapshot()
	delete(next, name)
	return f.commit(next)
}

func (f *FileStore) snapshot() map[string]KeyInfo {
	next := make(map[string]KeyInfo, len(f.keys)+1)
	for k, v := range f.keys {
		next[k] = v
	}
	return next
}

// commit persists next and only then makes it visible.
func (f *FileStore) commit(next map[string]KeyInfo) error {
	data, err := f.encode(next)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return err
	}
	f.keys = next
	return nil
}

func (f *FileStore) encode(keys map[string]KeyInfo) ([]byte, error) {
	plain, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("encode keystore: %w", err)
	}
	if !f.encrypted() {
		return plain, nil
	}
	defer clear(plain)

	recipient, err := age.NewScryptRecipient(f.passphrase)
	if err != nil {
		return nil, fmt.Errorf("create scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(f.workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("encrypt keystore: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypt keystore: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encrypt keystore: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *FileStore) decode(data []byte) (map[string]KeyInfo, error) {
	plain := data
	if f.encrypted() {
		identity, err := age.NewScryptIdentity(f.passphrase)
		if err != nil {
			return nil, fmt.Errorf("create scrypt identity: %w", err)
		}
		if f.workFactor > maxDefaultWorkFactor {
			identity.SetMaxWorkFactor(f.workFactor)
		}
		r, err := age.Decrypt(bytes.NewReader(data), identity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		plain, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		defer clear(plain)
	}

	keys := make(map[string]KeyInfo)
	if err := json.Unmarshal(plain, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	for name, ki := range keys {
		if err := ki.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrCorruptStore, name, err)
		}
	}
	return keys, nil
}

// writeFileAtomic replaces path with data so that readers see either the old
// or the new contents, never a partial file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "keystore-*.tmp")
	if err != nil {
		return ioError("create temp keystore", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(fileMode); err != nil {
		return ioError("chmod temp keystore", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return ioError("write temp keystore", err)
	}
	if err = tmp.Sync(); err != nil {
		return ioError("sync temp keystore", err)
	}
	if err = tmp.Close(); err != nil {
		return ioError("close temp keystore", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return ioError("rename keystore", err)
	}
	return nil
}
