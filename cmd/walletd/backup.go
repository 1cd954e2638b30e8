package main

import (
	"context"
	"time"

	"github.com/fystack/walletd/pkg/logger"
)

const (
	DefaultBackupPeriodSeconds = 300 // (5 minutes)
)

type backupper interface {
	Backup() (string, error)
}

func StartPeriodicBackup(ctx context.Context, store backupper, periodSeconds int) func() {
	if periodSeconds <= 0 {
		periodSeconds = DefaultBackupPeriodSeconds
	}
	backupTicker := time.NewTicker(time.Duration(periodSeconds) * time.Second)
	backupCtx, backupCancel := context.WithCancel(ctx)
	go func() {
		defer backupTicker.Stop()
		for {
			select {
			case <-backupCtx.Done():
				logger.Info("Backup background job stopped")
				return
			case <-backupTicker.C:
				logger.Debug("Running periodic keystore backup")
				path, err := store.Backup()
				if err != nil {
					logger.Error("Periodic keystore backup failed", err)
				} else {
					logger.Info("Periodic keystore backup completed", "path", path)
				}
			}
		}
	}()
	return backupCancel
}
