package ledger

import (
	"context"

	"evrewards/backend/services/rewards-service/internal/address"
)

// MemoryStore is a map-backed Store. It is not safe for concurrent use; the in-memory host
// serialises access and works on clones.
type MemoryStore struct {
	assets   map[address.Address]Asset
	accounts map[address.Address]TokenAccount
	native   map[address.Address]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:   make(map[address.Address]Asset),
		accounts: make(map[address.Address]TokenAccount),
		native:   make(map[address.Address]uint64),
	}
}

// Clone returns a deep copy.
func (m *MemoryStore) Clone() *MemoryStore {
	out := NewMemoryStore()
	for k, v := range m.assets {
		out.assets[k] = v
	}
	for k, v := range m.accounts {
		out.accounts[k] = copyAccount(v)
	}
	for k, v := range m.native {
		out.native[k] = v
	}
	return out
}

// Fund sets a native balance directly, outside of any transfer.
func (m *MemoryStore) Fund(owner address.Address, balance uint64) {
	m.native[owner] = balance
}

func (m *MemoryStore) Asset(_ context.Context, asset address.Address) (*Asset, error) {
	a, ok := m.assets[asset]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &a, nil
}

func (m *MemoryStore) InsertAsset(_ context.Context, asset *Asset) error {
	if _, ok := m.assets[asset.Address]; ok {
		return ErrAccountExists
	}
	m.assets[asset.Address] = *asset
	return nil
}

func (m *MemoryStore) UpdateAsset(_ context.Context, asset *Asset) error {
	if _, ok := m.assets[asset.Address]; !ok {
		return ErrAssetNotFound
	}
	m.assets[asset.Address] = *asset
	return nil
}

func (m *MemoryStore) TokenAccount(_ context.Context, account address.Address) (*TokenAccount, error) {
	a, ok := m.accounts[account]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := copyAccount(a)
	return &out, nil
}

func (m *MemoryStore) InsertTokenAccount(_ context.Context, account *TokenAccount) error {
	if _, ok := m.accounts[account.Address]; ok {
		return ErrAccountExists
	}
	m.accounts[account.Address] = copyAccount(*account)
	return nil
}

func (m *MemoryStore) UpdateTokenAccount(_ context.Context, account *TokenAccount) error {
	if _, ok := m.accounts[account.Address]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[account.Address] = copyAccount(*account)
	return nil
}

func (m *MemoryStore) NativeBalance(_ context.Context, owner address.Address) (uint64, error) {
	return m.native[owner], nil
}

func (m *MemoryStore) SetNativeBalance(_ context.Context, owner address.Address, balance uint64) error {
	m.native[owner] = balance
	return nil
}

func copyAccount(a TokenAccount) TokenAccount {
	if a.Delegate != nil {
		d := *a.Delegate
		a.Delegate = &d
	}
	return a
}
