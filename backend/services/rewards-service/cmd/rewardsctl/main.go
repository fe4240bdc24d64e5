// Command rewardsctl is the operator tool for the rewards service: it derives program
// addresses, prepares the database and inspects a running server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/config"
)

var (
	version = "dev"

	programFlag string
	dsnFlag     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rewardsctl",
		Short:        "Operator CLI for the EV charging rewards service",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&programFlag, "program", os.Getenv("REWARDS_PROGRAM_ID"), "Base58 program id (defaults to the built-in program)")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", os.Getenv("REWARDS_POSTGRES_DSN"), "Postgres DSN")

	rootCmd.AddCommand(newDeriveCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newFundCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func programConfig() *config.Config {
	cfg := config.Default()
	cfg.Program.ID = programFlag
	return cfg
}

func requireDSN() (string, error) {
	if dsnFlag == "" {
		return "", fmt.Errorf("--dsn or REWARDS_POSTGRES_DSN is required")
	}
	return dsnFlag, nil
}

func parseAddress(name, raw string) (address.Address, error) {
	addr, err := address.Parse(raw)
	if err != nil {
		return address.Zero, fmt.Errorf("invalid %s: %w", name, err)
	}
	return addr, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
