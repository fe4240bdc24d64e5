package repository

import (
	"context"
	"database/sql"
	"errors"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/models"
)

const (
	selectRegistry = `
		SELECT address, admin, asset, total_sessions::text, fee_bps::text
		FROM platform_registry
		WHERE address = $1`

	selectDriverColumns = `
		SELECT address, driver, total_energy::text, total_points::text, session_count::text,
		       points_balance::text, price_per_point::text, active
		FROM drivers`

	selectSessionColumns = `
		SELECT address, driver, charger_code, energy_used::text, points_earned::text, recorded_at
		FROM charging_sessions`
)

// Registry does not lock: admin and asset never change after initialization, and only
// RecordSession writes the row, through LockRegistry.
func (t *pgTx) Registry(ctx context.Context, addr address.Address) (*models.PlatformRegistry, error) {
	return t.registry(ctx, selectRegistry, addr)
}

func (t *pgTx) LockRegistry(ctx context.Context, addr address.Address) (*models.PlatformRegistry, error) {
	return t.registry(ctx, selectRegistry+" FOR UPDATE", addr)
}

func (t *pgTx) registry(ctx context.Context, query string, addr address.Address) (*models.PlatformRegistry, error) {
	row := t.tx.QueryRowContext(ctx, query, addr.String())

	var rawAddr, rawAdmin, rawAsset, rawTotal, rawFee string
	if err := row.Scan(&rawAddr, &rawAdmin, &rawAsset, &rawTotal, &rawFee); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, host.ErrAccountNotFound
		}
		return nil, err
	}

	var d decoder
	registry := &models.PlatformRegistry{
		Address:       d.addr("address", rawAddr),
		Admin:         d.addr("admin", rawAdmin),
		Asset:         d.addr("asset", rawAsset),
		TotalSessions: d.u64("total_sessions", rawTotal),
		FeeBps:        d.u64("fee_bps", rawFee),
	}
	if d.err != nil {
		return nil, d.err
	}
	return registry, nil
}

func (t *pgTx) CreateRegistry(ctx context.Context, r *models.PlatformRegistry) error {
	const query = `
		INSERT INTO platform_registry (address, admin, asset, total_sessions, fee_bps, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, NOW(), NOW())
		ON CONFLICT (address) DO NOTHING
	`
	result, err := t.tx.ExecContext(ctx, query,
		r.Address.String(),
		r.Admin.String(),
		r.Asset.String(),
		numeric(r.TotalSessions),
		numeric(r.FeeBps),
	)
	return expectOne(result, err, host.ErrAccountInUse)
}

func (t *pgTx) PutRegistry(ctx context.Context, r *models.PlatformRegistry) error {
	const query = `
		UPDATE platform_registry
		SET total_sessions = $2::numeric,
		    updated_at = NOW()
		WHERE address = $1
	`
	result, err := t.tx.ExecContext(ctx, query, r.Address.String(), numeric(r.TotalSessions))
	return expectOne(result, err, host.ErrAccountNotFound)
}

func (t *pgTx) Driver(ctx context.Context, addr address.Address) (*models.DriverRecord, error) {
	row := t.tx.QueryRowContext(ctx, t.locking(selectDriverColumns+" WHERE address = $1"), addr.String())
	record, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, host.ErrAccountNotFound
	}
	return record, err
}

func (t *pgTx) Drivers(ctx context.Context) ([]models.DriverRecord, error) {
	rows, err := t.tx.QueryContext(ctx, selectDriverColumns+" ORDER BY driver")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DriverRecord
	for rows.Next() {
		record, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateDriver(ctx context.Context, d *models.DriverRecord) error {
	const query = `
		INSERT INTO drivers (address, driver, total_energy, total_points, session_count, points_balance, price_per_point, active, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, NOW(), NOW())
		ON CONFLICT (address) DO NOTHING
	`
	result, err := t.tx.ExecContext(ctx, query,
		d.Address.String(),
		d.Driver.String(),
		numeric(d.TotalEnergy),
		numeric(d.TotalPoints),
		numeric(d.SessionCount),
		numeric(d.PointsBalance),
		numeric(d.PricePerPoint),
		d.Active,
	)
	return expectOne(result, err, host.ErrAccountInUse)
}

func (t *pgTx) PutDriver(ctx context.Context, d *models.DriverRecord) error {
	const query = `
		UPDATE drivers
		SET total_energy = $2::numeric,
		    total_points = $3::numeric,
		    session_count = $4::numeric,
		    active = $5,
		    updated_at = NOW()
		WHERE address = $1
	`
	result, err := t.tx.ExecContext(ctx, query,
		d.Address.String(),
		numeric(d.TotalEnergy),
		numeric(d.TotalPoints),
		numeric(d.SessionCount),
		d.Active,
	)
	return expectOne(result, err, host.ErrAccountNotFound)
}

func (t *pgTx) CreateSession(ctx context.Context, s *models.SessionRecord) error {
	const query = `
		INSERT INTO charging_sessions (address, driver, charger_code, energy_used, points_earned, recorded_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
		ON CONFLICT (address) DO NOTHING
	`
	result, err := t.tx.ExecContext(ctx, query,
		s.Address.String(),
		s.Driver.String(),
		s.ChargerCode,
		numeric(s.EnergyUsed),
		numeric(s.PointsEarned),
		s.Timestamp,
	)
	return expectOne(result, err, host.ErrAccountInUse)
}

func (t *pgTx) Sessions(ctx context.Context, driver address.Address, limit int) ([]models.SessionRecord, error) {
	query := selectSessionColumns + " WHERE driver = $1 ORDER BY seq DESC"
	args := []any{driver.String()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		var rawAddr, rawDriver, code, rawEnergy, rawPoints string
		var recordedAt int64
		if err := rows.Scan(&rawAddr, &rawDriver, &code, &rawEnergy, &rawPoints, &recordedAt); err != nil {
			return nil, err
		}
		var d decoder
		s := models.SessionRecord{
			Address:      d.addr("address", rawAddr),
			Driver:       d.addr("driver", rawDriver),
			ChargerCode:  code,
			EnergyUsed:   d.u64("energy_used", rawEnergy),
			PointsEarned: d.u64("points_earned", rawPoints),
			Timestamp:    recordedAt,
		}
		if d.err != nil {
			return nil, d.err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanDriver(row scanner) (*models.DriverRecord, error) {
	var rawAddr, rawDriver, rawEnergy, rawPoints, rawCount, rawBalance, rawPrice string
	var active bool
	if err := row.Scan(&rawAddr, &rawDriver, &rawEnergy, &rawPoints, &rawCount, &rawBalance, &rawPrice, &active); err != nil {
		return nil, err
	}

	var d decoder
	record := &models.DriverRecord{
		Address:       d.addr("address", rawAddr),
		Driver:        d.addr("driver", rawDriver),
		TotalEnergy:   d.u64("total_energy", rawEnergy),
		TotalPoints:   d.u64("total_points", rawPoints),
		SessionCount:  d.u64("session_count", rawCount),
		PointsBalance: d.u64("points_balance", rawBalance),
		PricePerPoint: d.u64("price_per_point", rawPrice),
		Active:        active,
	}
	if d.err != nil {
		return nil, d.err
	}
	return record, nil
}

// expectOne maps a statement that touched no row to none.
func expectOne(result sql.Result, err error, none error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return none
	}
	return nil
}
