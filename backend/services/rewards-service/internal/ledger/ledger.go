// Package ledger is the asset ledger and native payment channel the rewards program calls
// into. Rules live in Engine; persistence is a Store supplied by the host.
package ledger

import (
	"context"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
)

// ProgramID identifies the ledger itself. Asset and associated account addresses are
// derived under it.
var ProgramID = address.Hash([]byte("evrewards/asset-ledger"))

// Error is a ledger failure. Callers surface Message verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return "ledger: " + e.Message }

// Is matches ledger errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInsufficientFunds      = &Error{Code: "insufficient-funds", Message: "insufficient funds"}
	ErrInsufficientDelegation = &Error{Code: "insufficient-delegation", Message: "insufficient delegated amount"}
	ErrAccountNotFound        = &Error{Code: "account-not-found", Message: "account not found"}
	ErrAssetNotFound          = &Error{Code: "asset-not-found", Message: "asset not found"}
	ErrAccountExists          = &Error{Code: "account-exists", Message: "account already exists"}
	ErrAssetMismatch          = &Error{Code: "asset-mismatch", Message: "account does not hold this asset"}
	ErrOwnerMismatch          = &Error{Code: "owner-mismatch", Message: "signer is neither owner nor delegate"}
	ErrMintAuthorityMismatch  = &Error{Code: "mint-authority-mismatch", Message: "signer is not the mint authority"}
	ErrMissingSignature       = &Error{Code: "missing-signature", Message: "required signature missing"}
	ErrOverflow               = &Error{Code: "overflow", Message: "amount overflow"}
)

// Asset is a fungible asset definition.
type Asset struct {
	Address       address.Address `json:"address"`
	Decimals      uint8           `json:"decimals"`
	MintAuthority address.Address `json:"mint_authority"`
	Supply        uint64          `json:"supply"`
}

// TokenAccount holds a balance of one asset for one owner, with at most one delegate.
type TokenAccount struct {
	Address         address.Address  `json:"address"`
	Asset           address.Address  `json:"asset"`
	Owner           address.Address  `json:"owner"`
	Amount          uint64           `json:"amount"`
	Delegate        *address.Address `json:"delegate,omitempty"`
	DelegatedAmount uint64           `json:"delegated_amount"`
}

// DelegatedTo reports whether delegate is the current delegate of the account.
func (a *TokenAccount) DelegatedTo(delegate address.Address) bool {
	return a.Delegate != nil && *a.Delegate == delegate
}

// AssetLedger is the reward asset collaborator.
type AssetLedger interface {
	CreateAsset(ctx context.Context, decimals uint8, mintAuthority address.Address) (*Asset, error)
	Asset(ctx context.Context, asset address.Address) (*Asset, error)
	Mint(ctx context.Context, asset, to address.Address, amount uint64, sig authority.Signature) error
	Transfer(ctx context.Context, asset, from, to address.Address, amount uint64, sig authority.Signature) error
	// Approve replaces any existing delegate of account.
	Approve(ctx context.Context, asset, account, delegate address.Address, amount uint64, sig authority.Signature) error
	// Revoke clears the delegate; revoking an account without one succeeds.
	Revoke(ctx context.Context, asset, account address.Address, sig authority.Signature) error
	Account(ctx context.Context, account address.Address) (*TokenAccount, error)
	GetOrCreateAccount(ctx context.Context, asset, owner address.Address) (*TokenAccount, error)
}

// NativeChannel moves native currency. Transfers are final.
type NativeChannel interface {
	Transfer(ctx context.Context, from, to address.Address, amount uint64, sig authority.Signature) error
	Balance(ctx context.Context, owner address.Address) (uint64, error)
}

// AssociatedAccount is the canonical token account of owner for asset.
func AssociatedAccount(owner, asset address.Address) (address.Address, error) {
	addr, _, err := authority.FindProgramAddress([][]byte{owner[:], asset[:]}, ProgramID)
	return addr, err
}

// AssetAddress is where CreateAsset places the asset controlled by mintAuthority.
func AssetAddress(mintAuthority address.Address) (address.Address, error) {
	addr, _, err := authority.FindProgramAddress([][]byte{[]byte("asset"), mintAuthority[:]}, ProgramID)
	return addr, err
}
