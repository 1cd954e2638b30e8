package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/fystack/walletd/cmd/cli/utils"
	"github.com/fystack/walletd/pkg/client"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/spf13/cobra"
)

const exportWorkFactor = 18

func newExportCmd(newClient ClientFactory) *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "export <address>",
		Short: "Export a private key",
		Long:  "Print the hex encoded key info, or write it passphrase encrypted to --out.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			var ki keystore.KeyInfo
			err = withClient(newClient, func(ctx context.Context, c *client.Client) error {
				ki, err = c.WalletExport(ctx, addr)
				return err
			})
			if err != nil {
				return err
			}

			if outFile == "" {
				encoded, err := encodeKeyInfo(ki)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), encoded)
				return nil
			}

			passphrase, err := utils.RequestPassword()
			if err != nil {
				return err
			}
			sealed, err := sealKeyInfo(ki, passphrase, exportWorkFactor)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outFile, sealed, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key written to %s\n", outFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the key passphrase encrypted to this file")
	return cmd
}

func newImportCmd(newClient ClientFactory) *cobra.Command {
	var inFile string
	cmd := &cobra.Command{
		Use:   "import [hex key info]",
		Short: "Import a private key",
		Long:  "Import a hex encoded key info given as argument, read from stdin, or from a file written by export --out.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ki, err := readKeyInfo(cmd, args, inFile)
			if err != nil {
				return err
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				addr, err := c.WalletImport(ctx, ki)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported key %s successfully!\n", addr)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&inFile, "in", "i", "", "Read the key from this file")
	return cmd
}

func readKeyInfo(cmd *cobra.Command, args []string, inFile string) (keystore.KeyInfo, error) {
	var data []byte
	var err error
	switch {
	case inFile != "":
		data, err = os.ReadFile(inFile)
	case len(args) == 1:
		data = []byte(args[0])
	default:
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return keystore.KeyInfo{}, err
	}

	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(armor.Header)) {
		passphrase, err := utils.PromptPassword("Enter passphrase to decrypt the key: ")
		if err != nil {
			return keystore.KeyInfo{}, err
		}
		return openKeyInfo(data, passphrase)
	}
	return decodeKeyInfo(string(data))
}

// encodeKeyInfo produces the hex encoded JSON key info Lotus exports.
func encodeKeyInfo(ki keystore.KeyInfo) (string, error) {
	raw, err := json.Marshal(ki)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func decodeKeyInfo(s string) (keystore.KeyInfo, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return keystore.KeyInfo{}, fmt.Errorf("key info is not hex: %w", err)
	}
	var ki keystore.KeyInfo
	if err := json.Unmarshal(raw, &ki); err != nil {
		return keystore.KeyInfo{}, fmt.Errorf("decode key info: %w", err)
	}
	return ki, nil
}

func sealKeyInfo(ki keystore.KeyInfo, passphrase string, workFactor int) ([]byte, error) {
	raw, err := json.Marshal(ki)
	if err != nil {
		return nil, err
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, err
	}
	recipient.SetWorkFactor(workFactor)

	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)
	w, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := armorWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func openKeyInfo(data []byte, passphrase string) (keystore.KeyInfo, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return keystore.KeyInfo{}, err
	}
	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(data)), identity)
	if err != nil {
		return keystore.KeyInfo{}, fmt.Errorf("decrypt key: %w", err)
	}
	var ki keystore.KeyInfo
	if err := json.NewDecoder(r).Decode(&ki); err != nil {
		return keystore.KeyInfo{}, fmt.Errorf("decode key info: %w", err)
	}
	return ki, nil
}

func newSignCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <address> <hex message>",
		Short: "Sign a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			msg, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("message is not hex: %w", err)
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				sig, err := c.WalletSign(ctx, addr, msg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), encodeSignature(sig))
				return nil
			})
		},
	}
}

func newVerifyCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <address> <hex message> <hex signature>",
		Short: "Verify a signature",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			msg, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("message is not hex: %w", err)
			}
			sig, err := decodeSignature(args[2])
			if err != nil {
				return err
			}
			return withClient(newClient, func(ctx context.Context, c *client.Client) error {
				ok, err := c.WalletVerify(ctx, addr, msg, sig)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("signature does not match")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			})
		},
	}
}

// encodeSignature prints the type byte followed by the signature bytes.
func encodeSignature(sig *crypto.Signature) string {
	return hex.EncodeToString(append([]byte{byte(sig.Type)}, sig.Data...))
}

func decodeSignature(s string) (*crypto.Signature, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signature is not hex: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("signature too short")
	}
	return &crypto.Signature{Type: crypto.SigType(raw[0]), Data: raw[1:]}, nil
}
