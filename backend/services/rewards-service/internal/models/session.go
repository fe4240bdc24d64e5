package models

import "evrewards/backend/services/rewards-service/internal/address"

// MaxChargerCodeLen bounds the charger code stored with a session.
const MaxChargerCodeLen = 16

// SessionRecord is an immutable charging session entry. EnergyUsed is whole kWh while
// PointsEarned is in the asset's smallest unit.
type SessionRecord struct {
	Address      address.Address `db:"address" json:"address"`
	Driver       address.Address `db:"driver" json:"driver"`
	ChargerCode  string          `db:"charger_code" json:"charger_code"`
	EnergyUsed   uint64          `db:"energy_used" json:"energy_used"`
	PointsEarned uint64          `db:"points_earned" json:"points_earned"`
	Timestamp    int64           `db:"recorded_at" json:"timestamp"`
}
