package models

import "evrewards/backend/services/rewards-service/internal/address"

// RewardDecimals is the decimal precision of the reward asset.
const RewardDecimals = 6

// PlatformRegistry is the singleton program configuration.
type PlatformRegistry struct {
	Address       address.Address `db:"address" json:"address"`
	Admin         address.Address `db:"admin" json:"admin"`
	Asset         address.Address `db:"asset" json:"asset"`
	TotalSessions uint64          `db:"total_sessions" json:"total_sessions"`
	// FeeBps is recorded at initialization and never applied.
	FeeBps uint64 `db:"fee_bps" json:"fee_bps"`
}
