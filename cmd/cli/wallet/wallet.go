package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/client"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

// ClientFactory returns a connected client and a function releasing it.
type ClientFactory func() (*client.Client, func(), error)

// NewWalletCmds returns the top level key management commands.
func NewWalletCmds(newClient ClientFactory) []*cobra.Command {
	return []*cobra.Command{
		newNewCmd(newClient),
		newListCmd(newClient),
		newDefaultCmd(newClient),
		newSetDefaultCmd(newClient),
		newHasCmd(newClient),
		newBalanceCmd(newClient),
		newExportCmd(newClient),
		newImportCmd(newClient),
		newSignCmd(newClient),
		newVerifyCmd(newClient),
		newDeleteCmd(newClient),
	}
}

// withClient runs fn with a client and a request scoped context.
func withClient(newClient ClientFactory, fn func(ctx context.Context, c *client.Client) error) error {
	c, release, err := newClient()
	if err != nil {
		return err
	}
	defer release()
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, c)
}

func parseAddressArg(s string) (address.Address, error) {
	addr, err := address.NewFromString(s)
	if err != nil {
		return address.Undef, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

func newNewCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "new [secp256k1|bls]",
		Short: "Generate a new key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := crypto.SigTypeSecp256k1
			if len(args) == 1 {
				var err error
				if typ, err = crypto.ParseSigType(args[0]); err != nil {
					return err
				}
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				addr, err := c.WalletNew(ctx, typ)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), addr)
				return nil
			})
		},
	}
}

func newListCmd(newClient ClientFactory) *cobra.Command {
	var showBalances bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List wallet addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				addrs, err := c.WalletList(ctx)
				if err != nil {
					return err
				}
				def, err := c.WalletDefaultAddress(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, addr := range addrs {
					line := addr.String()
					if showBalances {
						bal, err := c.WalletBalance(ctx, addr)
						if err != nil {
							return err
						}
						fil, err := formatFIL(bal)
						if err != nil {
							return err
						}
						line += "\t" + fil
					}
					if addr == def {
						line += "\t(default)"
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&showBalances, "balances", "b", false, "Show balances")
	return cmd
}

func newDefaultCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print the default address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				addr, err := c.WalletDefaultAddress(ctx)
				if err != nil {
					return err
				}
				if addr.Empty() {
					return fmt.Errorf("no default address set")
				}
				fmt.Fprintln(cmd.OutOrStdout(), addr)
				return nil
			})
		},
	}
}

func newSetDefaultCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <address>",
		Short: "Set the default address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				return c.WalletSetDefault(ctx, addr)
			})
		},
	}
}

func newHasCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "has <address>",
		Short: "Check whether the wallet holds a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				has, err := c.WalletHas(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), has)
				return nil
			})
		},
	}
}

func newBalanceCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Print the balance of an address, the default address if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				var addr address.Address
				if len(args) == 1 {
					var err error
					if addr, err = parseAddressArg(args[0]); err != nil {
						return err
					}
				} else {
					var err error
					if addr, err = c.WalletDefaultAddress(ctx); err != nil {
						return err
					}
					if addr.Empty() {
						return fmt.Errorf("no default address set")
					}
				}
				bal, err := c.WalletBalance(ctx, addr)
				if err != nil {
					return err
				}
				fil, err := formatFIL(bal)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), fil)
				return nil
			})
		},
	}
}

func newDeleteCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <address>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				return c.WalletDelete(ctx, addr)
			})
		},
	}
}

// formatFIL renders an attoFIL string as FIL.
func formatFIL(atto string) (string, error) {
	d, err := decimal.NewFromString(atto)
	if err != nil {
		return "", fmt.Errorf("invalid balance %q: %w", atto, err)
	}
	return d.Shift(-18).String() + " FIL", nil
}
