package service

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
	"evrewards/backend/services/rewards-service/internal/events"
	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/ledger"
	"evrewards/backend/services/rewards-service/internal/models"
)

const (
	// PointsPerMilliKWh is the reward rate in the asset's smallest unit.
	PointsPerMilliKWh uint64 = 1_000_000
	milliPerKWh       uint64 = 1_000
)

// InstructionObserver is notified of every operation outcome.
type InstructionObserver interface {
	ObserveInstruction(instruction string, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveInstruction(string, error) {}

// PlatformService implements the rewards program operations on top of a Host.
type PlatformService struct {
	host     host.Host
	deriver  authority.Deriver
	logger   *zap.Logger
	observer InstructionObserver
}

// ApproveAccessInput toggles platform access for a driver.
type ApproveAccessInput struct {
	// Driver is the record to update; zero means the signer's own record.
	Driver         address.Address
	Activate       bool
	DelegateAmount uint64
	// TokenAccount overrides the driver's associated token account.
	TokenAccount *address.Address
}

// RecordSessionInput is a self-reported charging session.
type RecordSessionInput struct {
	ChargerCode        string
	EnergyUsedMilliKWh uint64
}

// BuyPointsInput purchases points from a driver through the platform delegation.
type BuyPointsInput struct {
	Driver     address.Address
	Amount     uint64
	SolPayment uint64
	// Optional overrides; zero values fall back to derived or associated accounts.
	PlatformAuthority  *address.Address
	DriverTokenAccount *address.Address
	BuyerTokenAccount  *address.Address
}

// Purchase describes a completed BuyPoints.
type Purchase struct {
	Buyer              address.Address `json:"buyer"`
	Driver             address.Address `json:"driver"`
	Amount             uint64          `json:"amount"`
	SolPayment         uint64          `json:"sol_payment"`
	DriverTokenAccount address.Address `json:"driver_token_account"`
	BuyerTokenAccount  address.Address `json:"buyer_token_account"`
}

// NewPlatformService builds the service. observer may be nil.
func NewPlatformService(h host.Host, deriver authority.Deriver, logger *zap.Logger, observer InstructionObserver) *PlatformService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &PlatformService{
		host:     h,
		deriver:  deriver,
		logger:   logger,
		observer: observer,
	}
}

// InitializePlatform creates the registry singleton and the reward asset.
func (s *PlatformService) InitializePlatform(ctx context.Context, admin address.Address, feeBps uint64) (*models.PlatformRegistry, error) {
	var registry *models.PlatformRegistry
	err := s.execute(ctx, "initialize_platform", []address.Address{admin}, func(ctx context.Context, tx host.Tx) error {
		platformAddr, err := s.deriver.PlatformAddress()
		if err != nil {
			return err
		}
		if _, err := tx.Registry(ctx, platformAddr); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, host.ErrAccountNotFound) {
			return err
		}

		mintAuthority, err := s.deriver.Authority(authority.MintAuthority)
		if err != nil {
			return err
		}
		// The asset address depends only on the mint authority, so an existing asset means
		// another initializer committed first.
		asset, err := tx.Assets().CreateAsset(ctx, models.RewardDecimals, mintAuthority.Address)
		if errors.Is(err, ledger.ErrAccountExists) {
			return ErrAlreadyInitialized
		}
		if err != nil {
			return externalLedger(err)
		}

		registry = &models.PlatformRegistry{
			Address: platformAddr,
			Admin:   admin,
			Asset:   asset.Address,
			FeeBps:  feeBps,
		}
		if err := tx.CreateRegistry(ctx, registry); err != nil {
			if errors.Is(err, host.ErrAccountInUse) {
				return ErrAlreadyInitialized
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("platform initialized",
		zap.String("admin", admin.String()),
		zap.String("asset", registry.Asset.String()),
		zap.Uint64("fee_bps", feeBps),
	)
	return registry, nil
}

// RegisterDriver creates an active driver record. Only the admin may call it.
func (s *PlatformService) RegisterDriver(ctx context.Context, admin, driver address.Address, pricePerPoint uint64) (*models.DriverRecord, error) {
	var record *models.DriverRecord
	err := s.execute(ctx, "register_driver", []address.Address{admin}, func(ctx context.Context, tx host.Tx) error {
		registry, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}
		if registry.Admin != admin {
			return ErrUnauthorized
		}

		driverAddr, err := s.deriver.DriverAddress(driver)
		if err != nil {
			return err
		}
		record = &models.DriverRecord{
			Address:       driverAddr,
			Driver:        driver,
			PricePerPoint: pricePerPoint,
			Active:        true,
		}
		if err := tx.CreateDriver(ctx, record); err != nil {
			if errors.Is(err, host.ErrAccountInUse) {
				return ErrDuplicateRegistration
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("driver registered",
		zap.String("driver", driver.String()),
		zap.Uint64("price_per_point", pricePerPoint),
	)
	return record, nil
}

// ApprovePlatformAccess delegates to or revokes the platform authority and flips the
// driver's active flag accordingly.
func (s *PlatformService) ApprovePlatformAccess(ctx context.Context, signer address.Address, in ApproveAccessInput) (*models.DriverRecord, error) {
	target := in.Driver
	if target.IsZero() {
		target = signer
	}

	var record *models.DriverRecord
	err := s.execute(ctx, "approve_platform_access", []address.Address{signer}, func(ctx context.Context, tx host.Tx) error {
		registry, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}
		record, err = s.loadDriver(ctx, tx, target)
		if err != nil {
			return err
		}
		if record.Driver != signer {
			return ErrUnauthorized
		}

		assets := tx.Assets()
		account, err := s.ownedAccount(ctx, assets, registry.Asset, signer, in.TokenAccount)
		if err != nil {
			return err
		}

		if in.Activate {
			platformAuthority, err := s.deriver.Authority(authority.PlatformAuthority)
			if err != nil {
				return err
			}
			err = assets.Approve(ctx, registry.Asset, account.Address, platformAuthority.Address, in.DelegateAmount, authority.SignedBy(signer))
			if err != nil {
				return externalLedger(err)
			}
			record.Active = true
		} else {
			if err := assets.Revoke(ctx, registry.Asset, account.Address, authority.SignedBy(signer)); err != nil {
				return externalLedger(err)
			}
			record.Active = false
		}

		return tx.PutDriver(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	if in.Activate {
		s.logger.Info("platform access approved",
			zap.String("driver", signer.String()),
			zap.Uint64("delegate_amount", in.DelegateAmount),
		)
	} else {
		s.logger.Info("platform access revoked", zap.String("driver", signer.String()))
	}
	return record, nil
}

// RecordSession mints points for a self-reported session and appends a session record.
func (s *PlatformService) RecordSession(ctx context.Context, driver address.Address, in RecordSessionInput) (*models.SessionRecord, error) {
	var session *models.SessionRecord
	var recorded events.SessionRecorded
	err := s.execute(ctx, "record_session", []address.Address{driver}, func(ctx context.Context, tx host.Tx) error {
		if len(in.ChargerCode) > models.MaxChargerCodeLen {
			return ErrChargerCodeTooLong
		}

		registry, err := s.lockRegistry(ctx, tx)
		if err != nil {
			return err
		}
		record, err := s.loadDriver(ctx, tx, driver)
		if err != nil {
			return err
		}

		points, err := checkedMul(in.EnergyUsedMilliKWh, PointsPerMilliKWh)
		if err != nil {
			return err
		}

		mintAuthority, err := s.deriver.Authority(authority.MintAuthority)
		if err != nil {
			return err
		}
		assets := tx.Assets()
		account, err := assets.GetOrCreateAccount(ctx, registry.Asset, driver)
		if err != nil {
			return externalLedger(err)
		}
		if err := assets.Mint(ctx, registry.Asset, account.Address, points, mintAuthority.Signature()); err != nil {
			return externalLedger(err)
		}

		energyKWh := in.EnergyUsedMilliKWh / milliPerKWh

		sessionAddr, err := s.deriver.SessionAddress(driver, record.SessionCount)
		if err != nil {
			return err
		}
		session = &models.SessionRecord{
			Address:      sessionAddr,
			Driver:       driver,
			ChargerCode:  in.ChargerCode,
			EnergyUsed:   energyKWh,
			PointsEarned: points,
			Timestamp:    tx.Now().Unix(),
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		if record.TotalPoints, err = checkedAdd(record.TotalPoints, points); err != nil {
			return err
		}
		if record.TotalEnergy, err = checkedAdd(record.TotalEnergy, energyKWh); err != nil {
			return err
		}
		if record.SessionCount, err = checkedAdd(record.SessionCount, 1); err != nil {
			return err
		}
		if registry.TotalSessions, err = checkedAdd(registry.TotalSessions, 1); err != nil {
			return err
		}
		if err := tx.PutDriver(ctx, record); err != nil {
			return err
		}
		if err := tx.PutRegistry(ctx, registry); err != nil {
			return err
		}

		recorded = events.SessionRecorded{
			Driver:        driver,
			ChargerCode:   in.ChargerCode,
			EnergyUsedKWh: energyKWh,
			Points:        points,
		}
		tx.Emit(recorded)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("session recorded", zap.Object("session", recorded))
	return session, nil
}

// BuyPoints pays the driver in native currency and moves amount points from the driver to
// the buyer using the platform delegation. The payment is not checked against the
// driver's advertised price.
func (s *PlatformService) BuyPoints(ctx context.Context, buyer address.Address, in BuyPointsInput) (*Purchase, error) {
	var purchase *Purchase
	err := s.execute(ctx, "buy_points", []address.Address{buyer}, func(ctx context.Context, tx host.Tx) error {
		registry, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}
		record, err := s.loadDriver(ctx, tx, in.Driver)
		if err != nil {
			return err
		}
		if record.Driver != in.Driver {
			return ErrUnauthorized
		}
		if !record.Active {
			return ErrDriverNotActive
		}

		platformAuthority, err := s.deriver.Authority(authority.PlatformAuthority)
		if err != nil {
			return err
		}
		supplied := platformAuthority.Address
		if in.PlatformAuthority != nil {
			supplied = *in.PlatformAuthority
		}

		assets := tx.Assets()
		driverAccount, err := s.delegatedAccount(ctx, assets, registry.Asset, in.Driver, in.DriverTokenAccount)
		if err != nil {
			return err
		}
		if !driverAccount.DelegatedTo(supplied) {
			return ErrNoDelegation
		}
		buyerAccount, err := s.ownedAccount(ctx, assets, registry.Asset, buyer, in.BuyerTokenAccount)
		if err != nil {
			return err
		}

		if err := tx.Native().Transfer(ctx, buyer, in.Driver, in.SolPayment, authority.SignedBy(buyer)); err != nil {
			return externalLedger(err)
		}

		if supplied != platformAuthority.Address {
			return ErrInvalidPlatformAuthority
		}
		err = assets.Transfer(ctx, registry.Asset, driverAccount.Address, buyerAccount.Address, in.Amount, platformAuthority.Signature())
		if err != nil {
			return externalLedger(err)
		}

		purchase = &Purchase{
			Buyer:              buyer,
			Driver:             in.Driver,
			Amount:             in.Amount,
			SolPayment:         in.SolPayment,
			DriverTokenAccount: driverAccount.Address,
			BuyerTokenAccount:  buyerAccount.Address,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("points purchased",
		zap.String("buyer", buyer.String()),
		zap.String("driver", in.Driver.String()),
		zap.Uint64("amount", in.Amount),
		zap.Uint64("sol_payment", in.SolPayment),
	)
	return purchase, nil
}

func (s *PlatformService) execute(ctx context.Context, instruction string, signers []address.Address, fn host.TxFunc) error {
	err := s.host.Execute(ctx, signers, fn)
	s.observer.ObserveInstruction(instruction, err)
	if err != nil {
		s.logger.Debug("instruction failed", zap.String("instruction", instruction), zap.Error(err))
	}
	return err
}

func (s *PlatformService) loadRegistry(ctx context.Context, tx host.ReadTx) (*models.PlatformRegistry, error) {
	return s.readRegistry(ctx, tx.Registry)
}

// lockRegistry loads the registry for an operation that writes it.
func (s *PlatformService) lockRegistry(ctx context.Context, tx host.Tx) (*models.PlatformRegistry, error) {
	return s.readRegistry(ctx, tx.LockRegistry)
}

func (s *PlatformService) readRegistry(ctx context.Context, read func(context.Context, address.Address) (*models.PlatformRegistry, error)) (*models.PlatformRegistry, error) {
	addr, err := s.deriver.PlatformAddress()
	if err != nil {
		return nil, err
	}
	registry, err := read(ctx, addr)
	if errors.Is(err, host.ErrAccountNotFound) {
		return nil, ErrAccountNotInitialized
	}
	return registry, err
}

func (s *PlatformService) loadDriver(ctx context.Context, tx host.ReadTx, driver address.Address) (*models.DriverRecord, error) {
	addr, err := s.deriver.DriverAddress(driver)
	if err != nil {
		return nil, err
	}
	record, err := tx.Driver(ctx, addr)
	if errors.Is(err, host.ErrAccountNotFound) {
		return nil, ErrAccountNotInitialized
	}
	return record, err
}

// ownedAccount resolves a named token account, which must belong to owner, or the owner's
// associated account, created when missing.
func (s *PlatformService) ownedAccount(ctx context.Context, assets ledger.AssetLedger, asset, owner address.Address, named *address.Address) (*ledger.TokenAccount, error) {
	if named == nil {
		account, err := assets.GetOrCreateAccount(ctx, asset, owner)
		if err != nil {
			return nil, externalLedger(err)
		}
		return account, nil
	}

	account, err := assets.Account(ctx, *named)
	if err != nil {
		return nil, externalLedger(err)
	}
	if account.Owner != owner {
		return nil, ErrOwnerMismatch
	}
	return account, nil
}

// delegatedAccount resolves the driver's token account for a sale. A driver without an
// associated account has no delegation.
func (s *PlatformService) delegatedAccount(ctx context.Context, assets ledger.AssetLedger, asset, driver address.Address, named *address.Address) (*ledger.TokenAccount, error) {
	if named != nil {
		return s.ownedAccount(ctx, assets, asset, driver, named)
	}

	addr, err := ledger.AssociatedAccount(driver, asset)
	if err != nil {
		return nil, err
	}
	account, err := assets.Account(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, ErrNoDelegation
	}
	if err != nil {
		return nil, externalLedger(err)
	}
	return account, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}
