package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "walletd",
		Short: "Filecoin wallet daemon",
		Long:  "Holds Filecoin secp256k1 and BLS keys and serves the wallet JSON-RPC methods",
	}

	rootCmd.AddCommand(NewStartCmd())
	rootCmd.AddCommand(NewTokenCmd())
	rootCmd.AddCommand(NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
