package main

import (
	"fmt"
	"os"

	"github.com/fystack/walletd/cmd/cli/recovery"
	"github.com/fystack/walletd/cmd/cli/wallet"
	"github.com/fystack/walletd/pkg/client"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/fystack/walletd/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

const (
	// Version information
	VERSION = "0.1.0"

	defaultAPI         = "http://127.0.0.1:2345/rpc/v1"
	defaultNATSSubject = "wallet.rpc"
)

var (
	apiURL      string
	apiToken    string
	natsURL     string
	natsSubject string
)

func main() {
	logger.Init("development", false)

	rootCmd.AddCommand(wallet.NewWalletCmds(newClient)...)
	rootCmd.AddCommand(recovery.NewBackupCmd())
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "wallet-cli",
	Short:         "Wallet CLI",
	Long:          "Manage walletd keys over JSON-RPC",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("WALLET_API_URL", defaultAPI), "walletd JSON-RPC endpoint")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("WALLET_API_TOKEN"), "RPC token")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "Send requests over NATS instead of HTTP")
	rootCmd.PersistentFlags().StringVar(&natsSubject, "nats-subject", defaultNATSSubject, "NATS subject walletd serves")
}

// newClient returns the client and a function releasing its connection.
func newClient() (*client.Client, func(), error) {
	if natsURL == "" {
		return client.New(client.NewHTTPTransport(apiURL, apiToken)), func() {}, nil
	}
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	transport := client.NewNATSTransport(messaging.NewNATSPubSub(nc), natsSubject, apiToken)
	return client.New(transport), nc.Close, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display detailed version information",
	Long:  "Display detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wallet-cli version %s\n", VERSION)
	},
}
