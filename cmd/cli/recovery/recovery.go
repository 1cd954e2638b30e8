package recovery

import (
	"fmt"
	"os"

	"github.com/fystack/walletd/cmd/cli/utils"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/spf13/cobra"
)

// NewBackupCmd creates the backup command group
func NewBackupCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup commands",
		Long:  "Commands for restoring Badger keystore backups",
	}

	cmd.AddCommand(newRestoreCmd())

	return cmd
}

type restoreOptions struct {
	backupDir  string
	backupFile string
	dbPath     string
	force      bool
}

func newRestoreCmd() *cobra.Command {
	opts := &restoreOptions{}
	var cmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore a Badger keystore from an encrypted backup",
		Long:  "Restore a Badger keystore from an encrypted backup. The newest backup in --backup-dir is used unless --file is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, err := utils.PromptPassword("Enter backup passphrase: ")
			if err != nil {
				return err
			}
			return restore(cmd, opts, passphrase)
		},
	}

	cmd.Flags().StringVarP(&opts.backupDir, "backup-dir", "b", "", "Directory containing encrypted backup files")
	cmd.Flags().StringVar(&opts.backupFile, "file", "", "Specific backup file to restore")
	cmd.Flags().StringVarP(&opts.dbPath, "db-path", "r", "", "Target path for the restored database (required)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Force overwrite if the target path already exists")
	cmd.MarkFlagRequired("db-path")
	cmd.MarkFlagsOneRequired("backup-dir", "file")

	return cmd
}

// restore uses the backup passphrase as the encryption key of the restored
// database, matching how walletd opens Badger keystores.
func restore(cmd *cobra.Command, opts *restoreOptions, passphrase string) error {
	backupPath := opts.backupFile
	if backupPath == "" {
		if _, err := os.Stat(opts.backupDir); os.IsNotExist(err) {
			return fmt.Errorf("backup directory does not exist: %s", opts.backupDir)
		}
		latest, err := keystore.LatestBackup(opts.backupDir)
		if err != nil {
			return err
		}
		backupPath = latest
	}

	if _, err := os.Stat(opts.dbPath); err == nil {
		if !opts.force {
			return fmt.Errorf("restore path already exists: %s (use --force to overwrite)", opts.dbPath)
		}
		if err := os.RemoveAll(opts.dbPath); err != nil {
			return fmt.Errorf("failed to remove existing restore path: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Restoring %s into %s...\n", backupPath, opts.dbPath)
	if err := keystore.RestoreBackup(backupPath, passphrase, opts.dbPath, []byte(passphrase)); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	fmt.Fprintf(out, "✅ Keystore restore completed successfully!\n")
	return nil
}
