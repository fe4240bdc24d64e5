package repository

import (
	"context"
	"database/sql"
	"errors"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/ledger"
)

// ledgerStore persists the asset ledger in the operation's transaction.
type ledgerStore struct {
	tx   *sql.Tx
	lock bool
}

var _ ledger.Store = (*ledgerStore)(nil)

func (s *ledgerStore) locking(query string) string {
	if s.lock {
		return query + " FOR UPDATE"
	}
	return query
}

func (s *ledgerStore) Asset(ctx context.Context, addr address.Address) (*ledger.Asset, error) {
	const query = `
		SELECT address, decimals, mint_authority, supply::text
		FROM ledger_assets
		WHERE address = $1`

	var rawAddr, rawAuthority, rawSupply string
	var decimals int16
	err := s.tx.QueryRowContext(ctx, s.locking(query), addr.String()).
		Scan(&rawAddr, &decimals, &rawAuthority, &rawSupply)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}

	var d decoder
	asset := &ledger.Asset{
		Address:       d.addr("address", rawAddr),
		Decimals:      uint8(decimals),
		MintAuthority: d.addr("mint_authority", rawAuthority),
		Supply:        d.u64("supply", rawSupply),
	}
	if d.err != nil {
		return nil, d.err
	}
	return asset, nil
}

func (s *ledgerStore) InsertAsset(ctx context.Context, a *ledger.Asset) error {
	const query = `
		INSERT INTO ledger_assets (address, decimals, mint_authority, supply)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (address) DO NOTHING
	`
	result, err := s.tx.ExecContext(ctx, query, a.Address.String(), int16(a.Decimals), a.MintAuthority.String(), numeric(a.Supply))
	return expectOne(result, err, ledger.ErrAccountExists)
}

func (s *ledgerStore) UpdateAsset(ctx context.Context, a *ledger.Asset) error {
	const query = `UPDATE ledger_assets SET supply = $2::numeric WHERE address = $1`
	result, err := s.tx.ExecContext(ctx, query, a.Address.String(), numeric(a.Supply))
	return expectOne(result, err, ledger.ErrAssetNotFound)
}

func (s *ledgerStore) TokenAccount(ctx context.Context, addr address.Address) (*ledger.TokenAccount, error) {
	const query = `
		SELECT address, asset, owner, amount::text, delegate, delegated_amount::text
		FROM ledger_token_accounts
		WHERE address = $1`

	var rawAddr, rawAsset, rawOwner, rawAmount, rawDelegated string
	var rawDelegate sql.NullString
	err := s.tx.QueryRowContext(ctx, s.locking(query), addr.String()).
		Scan(&rawAddr, &rawAsset, &rawOwner, &rawAmount, &rawDelegate, &rawDelegated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	var d decoder
	account := &ledger.TokenAccount{
		Address:         d.addr("address", rawAddr),
		Asset:           d.addr("asset", rawAsset),
		Owner:           d.addr("owner", rawOwner),
		Amount:          d.u64("amount", rawAmount),
		DelegatedAmount: d.u64("delegated_amount", rawDelegated),
	}
	if rawDelegate.Valid {
		delegate := d.addr("delegate", rawDelegate.String)
		account.Delegate = &delegate
	}
	if d.err != nil {
		return nil, d.err
	}
	return account, nil
}

func (s *ledgerStore) InsertTokenAccount(ctx context.Context, a *ledger.TokenAccount) error {
	const query = `
		INSERT INTO ledger_token_accounts (address, asset, owner, amount, delegate, delegated_amount)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric)
		ON CONFLICT (address) DO NOTHING
	`
	result, err := s.tx.ExecContext(ctx, query,
		a.Address.String(),
		a.Asset.String(),
		a.Owner.String(),
		numeric(a.Amount),
		delegateColumn(a.Delegate),
		numeric(a.DelegatedAmount),
	)
	return expectOne(result, err, ledger.ErrAccountExists)
}

func (s *ledgerStore) UpdateTokenAccount(ctx context.Context, a *ledger.TokenAccount) error {
	const query = `
		UPDATE ledger_token_accounts
		SET amount = $2::numeric,
		    delegate = $3,
		    delegated_amount = $4::numeric
		WHERE address = $1
	`
	result, err := s.tx.ExecContext(ctx, query,
		a.Address.String(),
		numeric(a.Amount),
		delegateColumn(a.Delegate),
		numeric(a.DelegatedAmount),
	)
	return expectOne(result, err, ledger.ErrAccountNotFound)
}

// NativeBalance creates a zero row first when locking, so that a balance never seen before
// is still locked against a concurrent credit.
func (s *ledgerStore) NativeBalance(ctx context.Context, owner address.Address) (uint64, error) {
	const ensure = `
		INSERT INTO ledger_native_accounts (address, balance)
		VALUES ($1, 0)
		ON CONFLICT (address) DO NOTHING
	`
	const query = `SELECT balance::text FROM ledger_native_accounts WHERE address = $1`

	if s.lock {
		if _, err := s.tx.ExecContext(ctx, ensure, owner.String()); err != nil {
			return 0, err
		}
	}

	var raw string
	err := s.tx.QueryRowContext(ctx, s.locking(query), owner.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var d decoder
	balance := d.u64("balance", raw)
	return balance, d.err
}

func (s *ledgerStore) SetNativeBalance(ctx context.Context, owner address.Address, balance uint64) error {
	const query = `
		INSERT INTO ledger_native_accounts (address, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET balance = EXCLUDED.balance
	`
	_, err := s.tx.ExecContext(ctx, query, owner.String(), numeric(balance))
	return err
}

func delegateColumn(d *address.Address) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
