package main

import (
	"errors"
	"fmt"

	"github.com/fystack/walletd/pkg/auth"
	"github.com/spf13/cobra"
)

func NewTokenCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "token",
		Short: "Manage RPC tokens",
	}
	cmd.AddCommand(newTokenCreateCmd())
	return cmd
}

func newTokenCreateCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "create",
		Short: "Create an RPC token",
		Long:  "Create a JWT granting the given permission and every permission below it",
		RunE:  createToken,
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("perm", auth.PermRead, "Permission level: read, write, sign or admin")
	cmd.Flags().String("subject", "walletd-cli", "Token subject")

	return cmd
}

func createToken(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	perm, _ := cmd.Flags().GetString("perm")
	subject, _ := cmd.Flags().GetString("subject")

	appConfig, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if appConfig.RPC.JWTSecret == "" {
		return errors.New("rpc.jwt_secret is not configured")
	}

	jwtManager := auth.NewJWTManager(appConfig.RPC.JWTSecret, tokenIssuer, appConfig.RPC.TokenTTL)
	token, err := jwtManager.Generate(subject, perm)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
