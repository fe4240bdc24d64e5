package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
	"evrewards/backend/services/rewards-service/internal/ledger"
)

type derivedAddresses struct {
	Program           address.Address  `json:"program"`
	Platform          address.Address  `json:"platform"`
	PlatformAuthority address.Address  `json:"platform_authority"`
	MintAuthority     address.Address  `json:"mint_authority"`
	Asset             address.Address  `json:"asset"`
	DriverRecord      *address.Address `json:"driver_record,omitempty"`
	DriverAccount     *address.Address `json:"driver_token_account,omitempty"`
	Session           *address.Address `json:"session,omitempty"`
}

func newDeriveCmd() *cobra.Command {
	var (
		driver       string
		sessionIndex int64
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the program's derived addresses",
		Long: `Print the platform record, authorities and reward asset derived from the
program id. With --driver, also print the driver's record and token account;
with --session-index, the address of that driver session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deriver, err := programConfig().Deriver()
			if err != nil {
				return err
			}
			out, err := deriveAll(deriver, driver, sessionIndex)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Driver address")
	cmd.Flags().Int64Var(&sessionIndex, "session-index", -1, "Session index of --driver")
	return cmd
}

func deriveAll(deriver authority.Deriver, rawDriver string, sessionIndex int64) (*derivedAddresses, error) {
	platform, err := deriver.PlatformAddress()
	if err != nil {
		return nil, err
	}
	pa, err := deriver.Authority(authority.PlatformAuthority)
	if err != nil {
		return nil, err
	}
	ma, err := deriver.Authority(authority.MintAuthority)
	if err != nil {
		return nil, err
	}
	asset, err := ledger.AssetAddress(ma.Address)
	if err != nil {
		return nil, err
	}

	out := &derivedAddresses{
		Program:           deriver.Program(),
		Platform:          platform,
		PlatformAuthority: pa.Address,
		MintAuthority:     ma.Address,
		Asset:             asset,
	}
	if rawDriver == "" {
		if sessionIndex >= 0 {
			return nil, fmt.Errorf("--session-index requires --driver")
		}
		return out, nil
	}

	driver, err := parseAddress("driver", rawDriver)
	if err != nil {
		return nil, err
	}
	record, err := deriver.DriverAddress(driver)
	if err != nil {
		return nil, err
	}
	account, err := ledger.AssociatedAccount(driver, asset)
	if err != nil {
		return nil, err
	}
	out.DriverRecord = &record
	out.DriverAccount = &account

	if sessionIndex >= 0 {
		session, err := deriver.SessionAddress(driver, uint64(sessionIndex))
		if err != nil {
			return nil, err
		}
		out.Session = &session
	}
	return out, nil
}
