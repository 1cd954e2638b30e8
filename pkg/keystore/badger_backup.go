package keystore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/walletd/pkg/logger"
)

const backupExt = ".badger.age"

type badgerBackup struct {
	nodeID     string
	db         *badger.DB
	passphrase string
	dir        string
}

func newBadgerBackup(nodeID string, db *badger.DB, passphrase, dir string) *badgerBackup {
	return &badgerBackup{nodeID: nodeID, db: db, passphrase: passphrase, dir: dir}
}

// Execute streams a full badger backup through age into a new file and
// returns its path.
func (e *badgerBackup) Execute() (path string, err error) {
	if err := os.MkdirAll(e.dir, dirMode); err != nil {
		return "", ioError("create backup dir", err)
	}
	name := fmt.Sprintf("%s-%d%s", e.nodeID, time.Now().UTC().UnixNano(), backupExt)
	path = filepath.Join(e.dir, name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return "", ioError("create backup file", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(path)
		}
	}()

	recipient, err := age.NewScryptRecipient(e.passphrase)
	if err != nil {
		return "", fmt.Errorf("create backup recipient: %w", err)
	}
	bw := bufio.NewWriter(out)
	w, err := age.Encrypt(bw, recipient)
	if err != nil {
		return "", fmt.Errorf("encrypt backup: %w", err)
	}
	if _, err = e.db.Backup(w, 0); err != nil {
		return "", ioError("badger backup", err)
	}
	if err = w.Close(); err != nil {
		return "", fmt.Errorf("encrypt backup: %w", err)
	}
	if err = bw.Flush(); err != nil {
		return "", ioError("flush backup", err)
	}
	if err = out.Sync(); err != nil {
		return "", ioError("sync backup", err)
	}
	if err = out.Close(); err != nil {
		return "", ioError("close backup", err)
	}
	logger.Info("Badger backup written", "path", path)
	return path, nil
}

// LatestBackup returns the newest backup file in dir.
func LatestBackup(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ioError("read backup dir", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), backupExt) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no backups found in %s", dir)
	}
	sort.Slice(names, func(i, j int) bool { return backupTime(names[i]) < backupTime(names[j]) })
	return filepath.Join(dir, names[len(names)-1]), nil
}

func backupTime(name string) string {
	base := strings.TrimSuffix(name, backupExt)
	idx := strings.LastIndex(base, "-")
	ts := base[idx+1:]
	// zero pad so lexical order is numeric order
	return strings.Repeat("0", max(0, 20-len(ts))) + ts
}

// RestoreBackup decrypts backupPath and loads it into a new database at
// dbPath encrypted with encryptionKey.
func RestoreBackup(backupPath, passphrase, dbPath string, encryptionKey []byte) error {
	if _, err := os.Stat(dbPath); err == nil {
		entries, _ := os.ReadDir(dbPath)
		if len(entries) > 0 {
			return fmt.Errorf("restore target %s is not empty", dbPath)
		}
	}

	in, err := os.Open(backupPath)
	if err != nil {
		return ioError("open backup", err)
	}
	defer in.Close()

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("create backup identity: %w", err)
	}
	r, err := age.Decrypt(bufio.NewReader(in), identity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	db, err := openBadger(dbPath, encryptionKey)
	if err != nil {
		return ioError("open restore target", err)
	}
	defer db.Close()

	if err := db.Load(r, 256); err != nil {
		return ioError("load backup", err)
	}
	logger.Info("Badger backup restored", "backup", backupPath, "path", dbPath)
	return nil
}
