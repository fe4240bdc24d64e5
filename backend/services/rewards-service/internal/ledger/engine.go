package ledger

import (
	"context"
	"errors"
	"math/bits"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
)

// Store persists ledger state inside the caller's transaction.
type Store interface {
	Asset(ctx context.Context, asset address.Address) (*Asset, error)
	InsertAsset(ctx context.Context, asset *Asset) error
	UpdateAsset(ctx context.Context, asset *Asset) error
	TokenAccount(ctx context.Context, account address.Address) (*TokenAccount, error)
	InsertTokenAccount(ctx context.Context, account *TokenAccount) error
	UpdateTokenAccount(ctx context.Context, account *TokenAccount) error
	// NativeBalance returns zero for owners the store has never seen.
	NativeBalance(ctx context.Context, owner address.Address) (uint64, error)
	SetNativeBalance(ctx context.Context, owner address.Address, balance uint64) error
}

// Verifier decides whether a signature is valid within one transaction.
type Verifier struct {
	// Program is the invoking program; program signatures must derive under it.
	Program address.Address
	// Signers are the identities the host verified for the transaction.
	Signers []address.Address
}

// Verify accepts host-verified owner signatures and program signatures that re-derive.
func (v Verifier) Verify(sig authority.Signature) error {
	if sig.IsProgram() {
		if err := authority.VerifyProgramSignature(sig, v.Program); err != nil {
			return ErrMissingSignature
		}
		return nil
	}
	for _, s := range v.Signers {
		if s == sig.Signer {
			return nil
		}
	}
	return ErrMissingSignature
}

// Engine applies ledger rules over a Store. It implements AssetLedger; Native adapts it
// to NativeChannel.
type Engine struct {
	store    Store
	verifier Verifier
}

func NewEngine(store Store, verifier Verifier) *Engine {
	return &Engine{store: store, verifier: verifier}
}

var (
	_ AssetLedger   = (*Engine)(nil)
	_ NativeChannel = nativeChannel{}
)

func (e *Engine) CreateAsset(ctx context.Context, decimals uint8, mintAuthority address.Address) (*Asset, error) {
	addr, err := AssetAddress(mintAuthority)
	if err != nil {
		return nil, err
	}
	asset := &Asset{Address: addr, Decimals: decimals, MintAuthority: mintAuthority}
	if err := e.store.InsertAsset(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (e *Engine) Asset(ctx context.Context, asset address.Address) (*Asset, error) {
	return e.store.Asset(ctx, asset)
}

func (e *Engine) Mint(ctx context.Context, assetAddr, to address.Address, amount uint64, sig authority.Signature) error {
	asset, err := e.store.Asset(ctx, assetAddr)
	if err != nil {
		return err
	}
	if asset.MintAuthority != sig.Signer {
		return ErrMintAuthorityMismatch
	}
	if err := e.verifier.Verify(sig); err != nil {
		return err
	}

	account, err := e.holding(ctx, assetAddr, to)
	if err != nil {
		return err
	}

	supply, carry := bits.Add64(asset.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(account.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}

	asset.Supply = supply
	account.Amount = balance
	if err := e.store.UpdateAsset(ctx, asset); err != nil {
		return err
	}
	return e.store.UpdateTokenAccount(ctx, account)
}

func (e *Engine) Transfer(ctx context.Context, assetAddr, from, to address.Address, amount uint64, sig authority.Signature) error {
	src, err := e.holding(ctx, assetAddr, from)
	if err != nil {
		return err
	}
	dst, err := e.holding(ctx, assetAddr, to)
	if err != nil {
		return err
	}
	if err := e.verifier.Verify(sig); err != nil {
		return err
	}

	viaDelegate := false
	switch {
	case sig.Signer == src.Owner:
	case src.DelegatedTo(sig.Signer):
		if src.DelegatedAmount < amount {
			return ErrInsufficientDelegation
		}
		viaDelegate = true
	default:
		return ErrOwnerMismatch
	}

	if src.Amount < amount {
		return ErrInsufficientFunds
	}

	if viaDelegate {
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.Delegate = nil
		}
	}

	if from == to {
		return e.store.UpdateTokenAccount(ctx, src)
	}

	credited, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = credited

	if err := e.store.UpdateTokenAccount(ctx, src); err != nil {
		return err
	}
	return e.store.UpdateTokenAccount(ctx, dst)
}

func (e *Engine) Approve(ctx context.Context, assetAddr, accountAddr, delegate address.Address, amount uint64, sig authority.Signature) error {
	account, err := e.ownedBy(ctx, assetAddr, accountAddr, sig)
	if err != nil {
		return err
	}
	d := delegate
	account.Delegate = &d
	account.DelegatedAmount = amount
	return e.store.UpdateTokenAccount(ctx, account)
}

func (e *Engine) Revoke(ctx context.Context, assetAddr, accountAddr address.Address, sig authority.Signature) error {
	account, err := e.ownedBy(ctx, assetAddr, accountAddr, sig)
	if err != nil {
		return err
	}
	account.Delegate = nil
	account.DelegatedAmount = 0
	return e.store.UpdateTokenAccount(ctx, account)
}

func (e *Engine) Account(ctx context.Context, accountAddr address.Address) (*TokenAccount, error) {
	return e.store.TokenAccount(ctx, accountAddr)
}

func (e *Engine) GetOrCreateAccount(ctx context.Context, assetAddr, owner address.Address) (*TokenAccount, error) {
	addr, err := AssociatedAccount(owner, assetAddr)
	if err != nil {
		return nil, err
	}

	account, err := e.store.TokenAccount(ctx, addr)
	if err == nil {
		if account.Asset != assetAddr {
			return nil, ErrAssetMismatch
		}
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	if _, err := e.store.Asset(ctx, assetAddr); err != nil {
		return nil, err
	}
	account = &TokenAccount{Address: addr, Asset: assetAddr, Owner: owner}
	if err := e.store.InsertTokenAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// NativeTransfer moves native currency; only from can sign for it.
func (e *Engine) NativeTransfer(ctx context.Context, from, to address.Address, amount uint64, sig authority.Signature) error {
	if sig.IsProgram() || sig.Signer != from {
		return ErrMissingSignature
	}
	if err := e.verifier.Verify(sig); err != nil {
		return err
	}

	fromBalance, err := e.store.NativeBalance(ctx, from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}

	toBalance, err := e.store.NativeBalance(ctx, to)
	if err != nil {
		return err
	}
	credited, carry := bits.Add64(toBalance, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}

	if err := e.store.SetNativeBalance(ctx, from, fromBalance-amount); err != nil {
		return err
	}
	return e.store.SetNativeBalance(ctx, to, credited)
}

func (e *Engine) NativeBalance(ctx context.Context, owner address.Address) (uint64, error) {
	return e.store.NativeBalance(ctx, owner)
}

// Native exposes the engine as a NativeChannel.
func (e *Engine) Native() NativeChannel { return nativeChannel{e} }

type nativeChannel struct{ e *Engine }

func (n nativeChannel) Transfer(ctx context.Context, from, to address.Address, amount uint64, sig authority.Signature) error {
	return n.e.NativeTransfer(ctx, from, to, amount, sig)
}

func (n nativeChannel) Balance(ctx context.Context, owner address.Address) (uint64, error) {
	return n.e.NativeBalance(ctx, owner)
}

func (e *Engine) holding(ctx context.Context, assetAddr, accountAddr address.Address) (*TokenAccount, error) {
	account, err := e.store.TokenAccount(ctx, accountAddr)
	if err != nil {
		return nil, err
	}
	if account.Asset != assetAddr {
		return nil, ErrAssetMismatch
	}
	return account, nil
}

func (e *Engine) ownedBy(ctx context.Context, assetAddr, accountAddr address.Address, sig authority.Signature) (*TokenAccount, error) {
	account, err := e.holding(ctx, assetAddr, accountAddr)
	if err != nil {
		return nil, err
	}
	if account.Owner != sig.Signer {
		return nil, ErrOwnerMismatch
	}
	if err := e.verifier.Verify(sig); err != nil {
		return nil, err
	}
	return account, nil
}
