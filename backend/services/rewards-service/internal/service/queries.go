package service

import (
	"context"
	"errors"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/ledger"
	"evrewards/backend/services/rewards-service/internal/models"
)

// CO2KgPerKWh is the emission factor used for sustainability estimates.
const CO2KgPerKWh = 0.5

// Authorities lists the program's derived addresses.
type Authorities struct {
	Program           address.Address `json:"program"`
	Platform          address.Address `json:"platform"`
	PlatformAuthority address.Address `json:"platform_authority"`
	MintAuthority     address.Address `json:"mint_authority"`
}

// Sustainability aggregates recorded energy across all drivers.
type Sustainability struct {
	TotalEnergyKWh uint64  `json:"total_energy_kwh"`
	CO2SavedKg     float64 `json:"co2_saved_kg"`
	TotalSessions  uint64  `json:"total_sessions"`
	Drivers        int     `json:"drivers"`
}

// Holdings is a driver's reward token position.
type Holdings struct {
	Owner   address.Address      `json:"owner"`
	Account *ledger.TokenAccount `json:"account"`
}

// Authorities derives the program addresses.
func (s *PlatformService) Authorities() (*Authorities, error) {
	platform, err := s.deriver.PlatformAddress()
	if err != nil {
		return nil, err
	}
	pa, err := s.deriver.Authority(authority.PlatformAuthority)
	if err != nil {
		return nil, err
	}
	ma, err := s.deriver.Authority(authority.MintAuthority)
	if err != nil {
		return nil, err
	}
	return &Authorities{
		Program:           s.deriver.Program(),
		Platform:          platform,
		PlatformAuthority: pa.Address,
		MintAuthority:     ma.Address,
	}, nil
}

// Platform returns the registry. host.ErrAccountNotFound means not initialized.
func (s *PlatformService) Platform(ctx context.Context) (*models.PlatformRegistry, error) {
	var registry *models.PlatformRegistry
	err := s.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		addr, err := s.deriver.PlatformAddress()
		if err != nil {
			return err
		}
		registry, err = tx.Registry(ctx, addr)
		return err
	})
	return registry, err
}

// Driver returns the record of driver.
func (s *PlatformService) Driver(ctx context.Context, driver address.Address) (*models.DriverRecord, error) {
	var record *models.DriverRecord
	err := s.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		addr, err := s.deriver.DriverAddress(driver)
		if err != nil {
			return err
		}
		record, err = tx.Driver(ctx, addr)
		return err
	})
	return record, err
}

// Drivers lists every registered driver.
func (s *PlatformService) Drivers(ctx context.Context) ([]models.DriverRecord, error) {
	var out []models.DriverRecord
	err := s.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		var err error
		out, err = tx.Drivers(ctx)
		return err
	})
	return out, err
}

// Sessions returns up to limit of a driver's latest sessions, newest first.
func (s *PlatformService) Sessions(ctx context.Context, driver address.Address, limit int) ([]models.SessionRecord, error) {
	var out []models.SessionRecord
	err := s.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		var err error
		out, err = tx.Sessions(ctx, driver, limit)
		return err
	})
	return out, err
}

// Holdings returns the associated reward account of owner; Account is nil when the owner
// never held points.
func (s *PlatformService) Holdings(ctx context.Context, owner address.Address) (*Holdings, error) {
	out := &Holdings{Owner: owner}
	err := s.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		registry, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}
		addr, err := ledger.AssociatedAccount(owner, registry.Asset)
		if err != nil {
			return err
		}
		account, err := tx.Assets().Account(ctx, addr)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Account = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sustainability sums driver energy and estimates avoided emissions.
func (s *PlatformService) Sustainability(ctx context.Context) (*Sustainability, error) {
	out := &Sustainability{}
	err := s.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		drivers, err := tx.Drivers(ctx)
		if err != nil {
			return err
		}
		for _, d := range drivers {
			if out.TotalEnergyKWh, err = checkedAdd(out.TotalEnergyKWh, d.TotalEnergy); err != nil {
				return err
			}
		}
		out.Drivers = len(drivers)
		out.CO2SavedKg = float64(out.TotalEnergyKWh) * CO2KgPerKWh

		registry, err := s.loadRegistry(ctx, tx)
		if errors.Is(err, ErrAccountNotInitialized) {
			return nil
		}
		if err != nil {
			return err
		}
		out.TotalSessions = registry.TotalSessions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
