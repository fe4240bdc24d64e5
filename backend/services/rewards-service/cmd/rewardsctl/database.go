package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"evrewards/backend/services/rewards-service/internal/db"
	"evrewards/backend/services/rewards-service/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireDSN()
			if err != nil {
				return err
			}
			conn, err := db.NewPostgres(dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			applied, err := db.Migrate(ctx, conn)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		},
	}
}

func newFundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <owner> <balance>",
		Short: "Set the native balance of an owner (development ledgers only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return err
			}
			balance, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid balance: %w", err)
			}
			dsn, err := requireDSN()
			if err != nil {
				return err
			}
			program, err := programConfig().ProgramID()
			if err != nil {
				return err
			}

			conn, err := db.NewPostgres(dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			h := repository.NewPostgresHost(conn, program, nil)
			if err := h.Fund(cmd.Context(), owner, balance); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s balance set to %d\n", owner, balance)
			return nil
		},
	}
}
