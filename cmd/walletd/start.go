package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/auth"
	"github.com/fystack/walletd/pkg/chain"
	"github.com/fystack/walletd/pkg/config"
	"github.com/fystack/walletd/pkg/event"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/fystack/walletd/pkg/messaging"
	"github.com/fystack/walletd/pkg/rpc"
	"github.com/fystack/walletd/pkg/wallet"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

const (
	tokenIssuer     = "walletd"
	shutdownTimeout = 10 * time.Second
)

// NewStartCmd creates a new start command
func NewStartCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "start",
		Short: "Start the wallet daemon",
		Long:  "Open the configured keystore and serve the wallet JSON-RPC methods",
		RunE:  runDaemon,
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().BoolP("prompt-credentials", "p", false, "Prompt for the keystore passphrase")
	cmd.Flags().StringP("password-file", "f", "", "Path to file containing the keystore passphrase")
	cmd.Flags().Bool("debug", false, "Enable debug logging")

	return cmd
}

func loadConfig(configPath string) (*config.Config, error) {
	config.SetEnvConfigPath(configPath)
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	usePrompts, _ := cmd.Flags().GetBool("prompt-credentials")
	passwordFile, _ := cmd.Flags().GetString("password-file")
	debug, _ := cmd.Flags().GetBool("debug")

	appConfig, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(appConfig.Environment, debug)

	if passwordFile != "" {
		if err := loadPasswordFromFile(appConfig, passwordFile); err != nil {
			return fmt.Errorf("failed to load password from file: %w", err)
		}
	}
	if usePrompts {
		err = promptForSensitiveCredentials(appConfig)
	} else {
		err = checkRequiredConfigValues(appConfig)
	}
	if err != nil {
		return err
	}

	network, err := address.ParseNetwork(appConfig.Network)
	if err != nil {
		return err
	}
	address.SetCurrentNetwork(network)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ks, err := keystore.New(appConfig)
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}

	if badgerStore, ok := ks.(*keystore.BadgerStore); ok && appConfig.Keystore.Badger.BackupEnabled {
		stopBackup := StartPeriodicBackup(ctx, badgerStore, appConfig.Keystore.Badger.BackupPeriodSeconds)
		defer stopBackup()
	}

	var walletOpts []wallet.Option
	if !appConfig.Wallet.PrefixFallback {
		walletOpts = append(walletOpts, wallet.WithFallback(nil))
	}
	shared := wallet.NewShared(wallet.New(ks, walletOpts...))
	defer func() {
		if err := shared.Close(); err != nil {
			logger.Error("Failed to close keystore", err)
		}
	}()

	state, err := loadChainState(appConfig.Chain)
	if err != nil {
		return err
	}

	handlerOpts := []rpc.HandlerOption{rpc.WithState(state)}
	if appConfig.RPC.AuthEnabled {
		jwtManager := auth.NewJWTManager(appConfig.RPC.JWTSecret, tokenIssuer, appConfig.RPC.TokenTTL)
		handlerOpts = append(handlerOpts, rpc.WithAuth(jwtManager))
	} else {
		logger.Warn("RPC authentication is disabled")
	}

	var (
		natsConn *nats.Conn
		pubsub   messaging.PubSub
	)
	if appConfig.NATs != nil && appConfig.NATs.Enabled {
		natsConn, err = messaging.GetNATSConnection(appConfig.Environment, appConfig.NATs)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		pubsub = messaging.NewNATSPubSub(natsConn)
		handlerOpts = append(handlerOpts, rpc.WithEvents(event.NewPublisher(pubsub)))
		logger.Info("Connected to NATS", "url", natsConn.ConnectedUrl())
	}

	handler := rpc.NewHandler(shared, handlerOpts...)
	server := rpc.NewServer(appConfig.RPC.ListenAddr, handler)

	//Setup signal handling to cancel context on termination signals.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			logger.Warn("Shutdown signal received, canceling context...")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down RPC server", err)
		}
	}()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("rpc server error: %w", err)
			return
		}
		logger.Info("RPC server stopped")
	}()

	if pubsub != nil {
		consumer := rpc.NewNATSConsumer(pubsub, appConfig.RPC.NATSSubject, handler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				errChan <- fmt.Errorf("nats consumer error: %w", err)
				return
			}
			logger.Info("NATS consumer finished successfully")
		}()
	}

	logger.Info("[READY] Wallet daemon is running",
		"network", network.String(),
		"keystore", appConfig.Keystore.Type,
		"listen", appConfig.RPC.ListenAddr,
	)

	go func() {
		wg.Wait()
		close(errChan)
	}()

	var runErr error
	for err := range errChan {
		if err != nil && runErr == nil {
			logger.Error("Service error received", err)
			runErr = err
			cancel()
		}
	}

	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Error("Failed to drain NATS connection", err)
		}
	}
	return runErr
}

func loadChainState(cfg config.ChainConfig) (chain.State, error) {
	if cfg.GenesisFile == "" {
		logger.Warn("No genesis file configured, balances resolve to zero")
		return chain.NewMemoryState(), nil
	}
	st, err := chain.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load genesis: %w", err)
	}
	logger.Info("Loaded chain state", "genesis", cfg.GenesisFile)
	return st, nil
}
