package models

import "evrewards/backend/services/rewards-service/internal/address"

// DriverRecord holds a registered driver's cumulative counters.
type DriverRecord struct {
	Address      address.Address `db:"address" json:"address"`
	Driver       address.Address `db:"driver" json:"driver"`
	TotalEnergy  uint64          `db:"total_energy" json:"total_energy"`
	TotalPoints  uint64          `db:"total_points" json:"total_points"`
	SessionCount uint64          `db:"session_count" json:"session_count"`
	// PointsBalance is reserved; no operation reads or writes it.
	PointsBalance uint64 `db:"points_balance" json:"points_balance"`
	// PricePerPoint is advisory; purchases do not enforce it.
	PricePerPoint uint64 `db:"price_per_point" json:"price_per_point"`
	Active        bool   `db:"active" json:"active"`
}
