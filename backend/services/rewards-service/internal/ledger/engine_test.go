package ledger

import (
	"context"
	"errors"
	"testing"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
)

var (
	testProgram = address.Hash([]byte("ledger-test-program"))
	owner       = address.Hash([]byte("owner"))
	buyer       = address.Hash([]byte("buyer"))
)

type fixture struct {
	store     *MemoryStore
	engine    *Engine
	mint      authority.Authority
	delegate  authority.Authority
	asset     *Asset
	ownerAcct *TokenAccount
	buyerAcct *TokenAccount
}

func newFixture(t *testing.T, signers ...address.Address) *fixture {
	t.Helper()
	ctx := context.Background()

	d := authority.NewDeriver(testProgram)
	mint, err := d.Authority(authority.MintAuthority)
	if err != nil {
		t.Fatalf("derive mint: %v", err)
	}
	delegate, err := d.Authority(authority.PlatformAuthority)
	if err != nil {
		t.Fatalf("derive delegate: %v", err)
	}

	store := NewMemoryStore()
	engine := NewEngine(store, Verifier{Program: testProgram, Signers: signers})

	asset, err := engine.CreateAsset(ctx, 6, mint.Address)
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	ownerAcct, err := engine.GetOrCreateAccount(ctx, asset.Address, owner)
	if err != nil {
		t.Fatalf("owner account: %v", err)
	}
	buyerAcct, err := engine.GetOrCreateAccount(ctx, asset.Address, buyer)
	if err != nil {
		t.Fatalf("buyer account: %v", err)
	}

	return &fixture{
		store:     store,
		engine:    engine,
		mint:      mint,
		delegate:  delegate,
		asset:     asset,
		ownerAcct: ownerAcct,
		buyerAcct: buyerAcct,
	}
}

func (f *fixture) balance(t *testing.T, acct address.Address) *TokenAccount {
	t.Helper()
	a, err := f.engine.Account(context.Background(), acct)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return a
}

func TestMintRequiresDerivedAuthority(t *testing.T) {
	f := newFixture(t, owner)
	ctx := context.Background()

	if err := f.engine.Mint(ctx, f.asset.Address, f.ownerAcct.Address, 5, f.mint.Signature()); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := f.balance(t, f.ownerAcct.Address).Amount; got != 5 {
		t.Fatalf("balance %d, want 5", got)
	}

	if err := f.engine.Mint(ctx, f.asset.Address, f.ownerAcct.Address, 5, f.delegate.Signature()); !errors.Is(err, ErrMintAuthorityMismatch) {
		t.Fatalf("expected ErrMintAuthorityMismatch, got %v", err)
	}
	if err := f.engine.Mint(ctx, f.asset.Address, f.ownerAcct.Address, 5, authority.SignedBy(f.mint.Address)); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("owner-style signature for derived authority must fail, got %v", err)
	}

	foreign := NewEngine(f.store, Verifier{Program: address.Hash([]byte("foreign"))})
	if err := foreign.Mint(ctx, f.asset.Address, f.ownerAcct.Address, 5, f.mint.Signature()); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("signature from another program must fail, got %v", err)
	}
}

func TestMintOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.Mint(ctx, f.asset.Address, f.ownerAcct.Address, ^uint64(0), f.mint.Signature()); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := f.engine.Mint(ctx, f.asset.Address, f.ownerAcct.Address, 1, f.mint.Signature()); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestApproveOverwritesAndRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t, owner)
	ctx := context.Background()
	other := address.Hash([]byte("other-delegate"))

	if err := f.engine.Approve(ctx, f.asset.Address, f.ownerAcct.Address, other, 10, authority.SignedBy(owner)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.engine.Approve(ctx, f.asset.Address, f.ownerAcct.Address, f.delegate.Address, 7, authority.SignedBy(owner)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	acct := f.balance(t, f.ownerAcct.Address)
	if !acct.DelegatedTo(f.delegate.Address) || acct.DelegatedAmount != 7 {
		t.Fatalf("expected delegate overwritten, got %+v", acct)
	}

	for i := 0; i < 2; i++ {
		if err := f.engine.Revoke(ctx, f.asset.Address, f.ownerAcct.Address, authority.SignedBy(owner)); err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
	}
	acct = f.balance(t, f.ownerAcct.Address)
	if acct.Delegate != nil || acct.DelegatedAmount != 0 {
		t.Fatalf("expected no delegate, got %+v", acct)
	}

	if err := f.engine.Approve(ctx, f.asset.Address, f.ownerAcct.Address, other, 1, authority.SignedBy(buyer)); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestDelegateTransferConsumesAllowance(t *testing.T) {
	f := newFixture(t, owner)
	ctx := context.Background()

	if err := f.engine.Mint(ctx, f.asset.Address, f.ownerAcct.Address, 100, f.mint.Signature()); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.Approve(ctx, f.asset.Address, f.ownerAcct.Address, f.delegate.Address, 30, authority.SignedBy(owner)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.engine.Transfer(ctx, f.asset.Address, f.ownerAcct.Address, f.buyerAcct.Address, 31, f.delegate.Signature()); !errors.Is(err, ErrInsufficientDelegation) {
		t.Fatalf("expected ErrInsufficientDelegation, got %v", err)
	}
	if err := f.engine.Transfer(ctx, f.asset.Address, f.ownerAcct.Address, f.buyerAcct.Address, 20, f.delegate.Signature()); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := f.engine.Transfer(ctx, f.asset.Address, f.ownerAcct.Address, f.buyerAcct.Address, 10, f.delegate.Signature()); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	src := f.balance(t, f.ownerAcct.Address)
	if src.Amount != 70 || src.Delegate != nil || src.DelegatedAmount != 0 {
		t.Fatalf("unexpected source after allowance exhausted: %+v", src)
	}
	if got := f.balance(t, f.buyerAcct.Address).Amount; got != 30 {
		t.Fatalf("buyer balance %d, want 30", got)
	}

	if err := f.engine.Transfer(ctx, f.asset.Address, f.ownerAcct.Address, f.buyerAcct.Address, 1, f.delegate.Signature()); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch after delegation cleared, got %v", err)
	}
}

func TestOwnerTransferNeedsFunds(t *testing.T) {
	f := newFixture(t, owner)
	ctx := context.Background()

	if err := f.engine.Transfer(ctx, f.asset.Address, f.ownerAcct.Address, f.buyerAcct.Address, 1, authority.SignedBy(owner)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := f.engine.Transfer(ctx, f.asset.Address, f.ownerAcct.Address, f.buyerAcct.Address, 0, authority.SignedBy(buyer)); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("unverified signer must fail, got %v", err)
	}
}

func TestGetOrCreateAccountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again, err := f.engine.GetOrCreateAccount(ctx, f.asset.Address, owner)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if again.Address != f.ownerAcct.Address {
		t.Fatalf("expected same associated account")
	}

	if _, err := f.engine.GetOrCreateAccount(ctx, address.Hash([]byte("no-asset")), owner); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestNativeTransfer(t *testing.T) {
	f := newFixture(t, buyer)
	ctx := context.Background()
	native := f.engine.Native()
	f.store.Fund(buyer, 1_000)

	if err := native.Transfer(ctx, buyer, owner, 400, authority.SignedBy(buyer)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if b, _ := native.Balance(ctx, owner); b != 400 {
		t.Fatalf("owner native %d, want 400", b)
	}
	if b, _ := native.Balance(ctx, buyer); b != 600 {
		t.Fatalf("buyer native %d, want 600", b)
	}

	if err := native.Transfer(ctx, buyer, owner, 601, authority.SignedBy(buyer)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := native.Transfer(ctx, owner, buyer, 1, authority.SignedBy(owner)); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("owner is not a verified signer here, got %v", err)
	}
	if err := native.Transfer(ctx, buyer, owner, 1, f.delegate.Signature()); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("program signatures cannot move native funds, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := newFixture(t, owner)
	ctx := context.Background()

	if err := f.engine.Approve(ctx, f.asset.Address, f.ownerAcct.Address, f.delegate.Address, 3, authority.SignedBy(owner)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	clone := f.store.Clone()
	if err := f.engine.Revoke(ctx, f.asset.Address, f.ownerAcct.Address, authority.SignedBy(owner)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	acct, err := clone.TokenAccount(ctx, f.ownerAcct.Address)
	if err != nil {
		t.Fatalf("clone account: %v", err)
	}
	if !acct.DelegatedTo(f.delegate.Address) {
		t.Fatal("clone must keep its own delegate")
	}
}
