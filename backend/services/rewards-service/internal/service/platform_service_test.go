package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
	"evrewards/backend/services/rewards-service/internal/events"
	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/ledger"
	"evrewards/backend/services/rewards-service/internal/models"
)

var (
	testProgram = address.Hash([]byte("rewards-service-test"))
	admin       = address.Hash([]byte("admin"))
	driver      = address.Hash([]byte("driver"))
	buyer       = address.Hash([]byte("buyer"))
	stranger    = address.Hash([]byte("stranger"))
)

type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

type countingObserver struct {
	calls map[string]int
}

func (o *countingObserver) ObserveInstruction(name string, _ error) {
	o.calls[name]++
}

type harness struct {
	host     *host.MemoryHost
	svc      *PlatformService
	deriver  authority.Deriver
	emitter  *captureEmitter
	observer *countingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	emitter := &captureEmitter{}
	observer := &countingObserver{calls: map[string]int{}}
	h := host.NewMemoryHost(testProgram, emitter)
	deriver := authority.NewDeriver(testProgram)
	return &harness{
		host:     h,
		svc:      NewPlatformService(h, deriver, zap.NewNop(), observer),
		deriver:  deriver,
		emitter:  emitter,
		observer: observer,
	}
}

// withDriver initializes the platform and registers driver.
func withDriver(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitializePlatform(ctx, admin, 250)
	require.NoError(t, err)
	_, err = h.svc.RegisterDriver(ctx, admin, driver, 100)
	require.NoError(t, err)
	return h
}

func (h *harness) points(t *testing.T, owner address.Address) uint64 {
	t.Helper()
	holdings, err := h.svc.Holdings(context.Background(), owner)
	require.NoError(t, err)
	if holdings.Account == nil {
		return 0
	}
	return holdings.Account.Amount
}

func (h *harness) driverRecord(t *testing.T) *models.DriverRecord {
	t.Helper()
	record, err := h.svc.Driver(context.Background(), driver)
	require.NoError(t, err)
	return record
}

func (h *harness) registry(t *testing.T) *models.PlatformRegistry {
	t.Helper()
	registry, err := h.svc.Platform(context.Background())
	require.NoError(t, err)
	return registry
}

func TestInitializePlatform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	registry, err := h.svc.InitializePlatform(ctx, admin, 250)
	require.NoError(t, err)
	require.Equal(t, admin, registry.Admin)
	require.Zero(t, registry.TotalSessions)
	require.EqualValues(t, 250, registry.FeeBps)

	err = h.host.View(ctx, func(ctx context.Context, tx host.ReadTx) error {
		asset, err := tx.Assets().Asset(ctx, registry.Asset)
		if err != nil {
			return err
		}
		mint, err := h.deriver.Authority(authority.MintAuthority)
		require.NoError(t, err)
		require.EqualValues(t, models.RewardDecimals, asset.Decimals)
		require.Equal(t, mint.Address, asset.MintAuthority)
		return nil
	})
	require.NoError(t, err)

	_, err = h.svc.InitializePlatform(ctx, stranger, 0)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, ClassState, ClassOf(err))
	require.Equal(t, admin, h.registry(t).Admin, "admin is immutable")
}

func TestRegisterDriver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RegisterDriver(ctx, admin, driver, 100)
	require.ErrorIs(t, err, ErrAccountNotInitialized)

	_, err = h.svc.InitializePlatform(ctx, admin, 0)
	require.NoError(t, err)

	_, err = h.svc.RegisterDriver(ctx, stranger, driver, 100)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, ClassAuthorization, ClassOf(err))

	record, err := h.svc.RegisterDriver(ctx, admin, driver, 100)
	require.NoError(t, err)
	require.True(t, record.Active)
	require.EqualValues(t, 100, record.PricePerPoint)
	require.Zero(t, record.TotalEnergy)
	require.Zero(t, record.TotalPoints)
	require.Zero(t, record.SessionCount)

	_, err = h.svc.RegisterDriver(ctx, admin, driver, 999)
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	require.EqualValues(t, 100, h.driverRecord(t).PricePerPoint)
}

func TestRecordSessionMintsAndCounts(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	session, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH-01", EnergyUsedMilliKWh: 12_500})
	require.NoError(t, err)
	require.EqualValues(t, 12, session.EnergyUsed)
	require.EqualValues(t, 12_500_000_000, session.PointsEarned)
	require.Equal(t, "CH-01", session.ChargerCode)

	record := h.driverRecord(t)
	require.EqualValues(t, 12_500_000_000, record.TotalPoints)
	require.EqualValues(t, 12, record.TotalEnergy)
	require.EqualValues(t, 1, record.SessionCount)
	require.Zero(t, record.PointsBalance, "points_balance is never maintained")
	require.EqualValues(t, 1, h.registry(t).TotalSessions)
	require.EqualValues(t, 12_500_000_000, h.points(t, driver))

	require.Len(t, h.emitter.events, 1)
	require.Equal(t, events.SessionRecorded{
		Driver:        driver,
		ChargerCode:   "CH-01",
		EnergyUsedKWh: 12,
		Points:        12_500_000_000,
	}, h.emitter.events[0])
}

func TestRecordSessionTruncatesEnergyButNotPoints(t *testing.T) {
	h := withDriver(t)

	session, err := h.svc.RecordSession(context.Background(), driver, RecordSessionInput{ChargerCode: "CH-02", EnergyUsedMilliKWh: 999})
	require.NoError(t, err)
	require.Zero(t, session.EnergyUsed)
	require.EqualValues(t, 999_000_000, session.PointsEarned)

	record := h.driverRecord(t)
	require.Zero(t, record.TotalEnergy)
	require.EqualValues(t, 999_000_000, record.TotalPoints)
}

func TestRecordSessionCountersAreMonotonic(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	var sum uint64
	inputs := []uint64{0, 1, 1_000, 7_250, 42}
	for i, e := range inputs {
		_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: e})
		require.NoError(t, err)
		sum += e * PointsPerMilliKWh

		record := h.driverRecord(t)
		require.EqualValues(t, i+1, record.SessionCount)
		require.Equal(t, sum, record.TotalPoints)
	}

	sessions, err := h.svc.Sessions(ctx, driver, 0)
	require.NoError(t, err)
	require.Len(t, sessions, len(inputs))
	require.EqualValues(t, 7, sessions[1].EnergyUsed)
	require.EqualValues(t, len(inputs), h.registry(t).TotalSessions)
}

func TestSessionsLimitKeepsLatest(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	for _, code := range []string{"C-0", "C-1", "C-2"} {
		_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: code, EnergyUsedMilliKWh: 1_000})
		require.NoError(t, err)
	}

	sessions, err := h.svc.Sessions(ctx, driver, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "C-2", sessions[0].ChargerCode)
	require.Equal(t, "C-1", sessions[1].ChargerCode)
}

func TestRecordSessionOverflowLeavesStateUntouched(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	tooMuch := ^uint64(0)/PointsPerMilliKWh + 1
	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: tooMuch})
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	require.Equal(t, ClassArithmetic, ClassOf(err))

	record := h.driverRecord(t)
	require.Zero(t, record.SessionCount)
	require.Zero(t, record.TotalPoints)
	require.Zero(t, h.registry(t).TotalSessions)
	require.Zero(t, h.points(t, driver))
	require.Empty(t, h.emitter.events)
}

func TestRecordSessionCounterOverflowRollsBackMint(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	largest := ^uint64(0) / PointsPerMilliKWh
	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: largest})
	require.NoError(t, err)
	minted := h.points(t, driver)

	_, err = h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: largest})
	require.Error(t, err)
	require.Equal(t, minted, h.points(t, driver), "a failed session must not leave minted points behind")
	require.EqualValues(t, 1, h.driverRecord(t).SessionCount)
}

func TestRecordSessionRequiresRegistration(t *testing.T) {
	h := withDriver(t)

	_, err := h.svc.RecordSession(context.Background(), stranger, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 10})
	require.ErrorIs(t, err, ErrAccountNotInitialized)
	require.Zero(t, h.registry(t).TotalSessions)
}

func TestRecordSessionRejectsLongChargerCode(t *testing.T) {
	h := withDriver(t)

	_, err := h.svc.RecordSession(context.Background(), driver, RecordSessionInput{ChargerCode: "CHARGER-CODE-TOO-LONG", EnergyUsedMilliKWh: 10})
	require.ErrorIs(t, err, ErrChargerCodeTooLong)
}

func TestRecordSessionIgnoresActiveFlag(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	_, err := h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: false})
	require.NoError(t, err)
	require.False(t, h.driverRecord(t).Active)

	_, err = h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 5})
	require.NoError(t, err)
}

func TestApprovePlatformAccessRoundTrip(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()
	platformAuthority, err := h.deriver.Authority(authority.PlatformAuthority)
	require.NoError(t, err)

	record, err := h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 500})
	require.NoError(t, err)
	require.True(t, record.Active)

	holdings, err := h.svc.Holdings(ctx, driver)
	require.NoError(t, err)
	require.True(t, holdings.Account.DelegatedTo(platformAuthority.Address))
	require.EqualValues(t, 500, holdings.Account.DelegatedAmount)

	record, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: false})
	require.NoError(t, err)
	require.False(t, record.Active)

	holdings, err = h.svc.Holdings(ctx, driver)
	require.NoError(t, err)
	require.Nil(t, holdings.Account.Delegate)
	require.Zero(t, holdings.Account.DelegatedAmount)

	record, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 1})
	require.NoError(t, err)
	require.True(t, record.Active, "approve reactivates a deactivated driver")
}

func TestApproveWithoutPriorApprovalDeactivates(t *testing.T) {
	h := withDriver(t)

	record, err := h.svc.ApprovePlatformAccess(context.Background(), driver, ApproveAccessInput{Activate: false})
	require.NoError(t, err)
	require.False(t, record.Active)
}

func TestApprovePlatformAccessChecksSignerAndOwner(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	_, err := h.svc.ApprovePlatformAccess(ctx, stranger, ApproveAccessInput{Driver: driver, Activate: true, DelegateAmount: 1})
	require.ErrorIs(t, err, ErrUnauthorized)

	asset := h.registry(t).Asset
	var strangerAccount address.Address
	err = h.host.Execute(ctx, []address.Address{stranger}, func(ctx context.Context, tx host.Tx) error {
		account, err := tx.Assets().GetOrCreateAccount(ctx, asset, stranger)
		if err != nil {
			return err
		}
		strangerAccount = account.Address
		return nil
	})
	require.NoError(t, err)

	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 1, TokenAccount: &strangerAccount})
	require.ErrorIs(t, err, ErrOwnerMismatch)
	require.True(t, h.driverRecord(t).Active)
}

func TestBuyPointsMovesPaymentAndPoints(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()
	h.host.Fund(buyer, 10_000)

	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 1})
	require.NoError(t, err)
	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 500})
	require.NoError(t, err)

	purchase, err := h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 200, SolPayment: 1_000})
	require.NoError(t, err)
	require.EqualValues(t, 200, purchase.Amount)

	require.EqualValues(t, 200, h.points(t, buyer))
	require.EqualValues(t, 1_000_000-200, h.points(t, driver))
	require.EqualValues(t, 9_000, h.host.NativeBalance(buyer))
	require.EqualValues(t, 1_000, h.host.NativeBalance(driver))

	holdings, err := h.svc.Holdings(ctx, driver)
	require.NoError(t, err)
	require.EqualValues(t, 300, holdings.Account.DelegatedAmount)

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 400, SolPayment: 1_000})
	require.ErrorIs(t, err, ErrExternalLedger)
	require.ErrorIs(t, err, ledger.ErrInsufficientDelegation)
	require.EqualValues(t, 9_000, h.host.NativeBalance(buyer), "payment must roll back with the failed transfer")
}

func TestBuyPointsDoesNotEnforcePrice(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 1})
	require.NoError(t, err)
	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 10})
	require.NoError(t, err)

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 10, SolPayment: 0})
	require.NoError(t, err)
	require.EqualValues(t, 10, h.points(t, buyer))
}

func TestBuyPointsRequiresActiveDriver(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()
	h.host.Fund(buyer, 10_000)

	_, err := h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 500})
	require.NoError(t, err)
	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: false})
	require.NoError(t, err)

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, SolPayment: 100})
	require.ErrorIs(t, err, ErrDriverNotActive)
	require.EqualValues(t, 10_000, h.host.NativeBalance(buyer))
	require.Zero(t, h.host.NativeBalance(driver))
}

func TestBuyPointsWithoutDelegation(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()
	h.host.Fund(buyer, 10_000)

	_, err := h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, SolPayment: 100})
	require.ErrorIs(t, err, ErrNoDelegation)
	require.EqualValues(t, 10_000, h.host.NativeBalance(buyer))

	_, err = h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 1})
	require.NoError(t, err)
	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, SolPayment: 100})
	require.ErrorIs(t, err, ErrNoDelegation, "an account without a delegate fails the same way")
}

func TestBuyPointsRejectsSubstitutedAuthority(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()
	h.host.Fund(buyer, 10_000)
	impostor := address.Hash([]byte("impostor"))

	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 1})
	require.NoError(t, err)
	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 500})
	require.NoError(t, err)

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, SolPayment: 100, PlatformAuthority: &impostor})
	require.ErrorIs(t, err, ErrNoDelegation)

	// The driver delegates straight to the impostor outside the program.
	asset := h.registry(t).Asset
	err = h.host.Execute(ctx, []address.Address{driver}, func(ctx context.Context, tx host.Tx) error {
		account, err := tx.Assets().GetOrCreateAccount(ctx, asset, driver)
		if err != nil {
			return err
		}
		return tx.Assets().Approve(ctx, asset, account.Address, impostor, 500, authority.SignedBy(driver))
	})
	require.NoError(t, err)

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, SolPayment: 100, PlatformAuthority: &impostor})
	require.ErrorIs(t, err, ErrInvalidPlatformAuthority)
	require.EqualValues(t, 10_000, h.host.NativeBalance(buyer), "payment is rolled back")
	require.Zero(t, h.points(t, buyer))
}

func TestBuyPointsInsufficientNativeFunds(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 1})
	require.NoError(t, err)
	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 500})
	require.NoError(t, err)

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, SolPayment: 1})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.Equal(t, ClassExternalLedger, ClassOf(err))
	require.Equal(t, "ledger: insufficient funds", err.Error())
}

func TestBuyPointsBuyerAccountOwnership(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 1})
	require.NoError(t, err)
	_, err = h.svc.ApprovePlatformAccess(ctx, driver, ApproveAccessInput{Activate: true, DelegateAmount: 500})
	require.NoError(t, err)

	holdings, err := h.svc.Holdings(ctx, driver)
	require.NoError(t, err)
	driverAccount := holdings.Account.Address

	_, err = h.svc.BuyPoints(ctx, buyer, BuyPointsInput{Driver: driver, Amount: 1, BuyerTokenAccount: &driverAccount})
	require.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestBuyPointsUnknownDriver(t *testing.T) {
	h := withDriver(t)

	_, err := h.svc.BuyPoints(context.Background(), buyer, BuyPointsInput{Driver: stranger, Amount: 1})
	require.ErrorIs(t, err, ErrAccountNotInitialized)
	require.False(t, errors.Is(err, ErrDriverNotFound), "NotFoundError codes stay unused")
}

func TestFeeBpsIsNeverApplied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitializePlatform(ctx, admin, 10_000)
	require.NoError(t, err)
	_, err = h.svc.RegisterDriver(ctx, admin, driver, 1)
	require.NoError(t, err)

	_, err = h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 3})
	require.NoError(t, err)
	require.EqualValues(t, 3_000_000, h.points(t, driver))
}

func TestSustainabilityAndObserver(t *testing.T) {
	h := withDriver(t)
	ctx := context.Background()

	_, err := h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 12_500})
	require.NoError(t, err)
	_, err = h.svc.RecordSession(ctx, driver, RecordSessionInput{ChargerCode: "CH", EnergyUsedMilliKWh: 3_000})
	require.NoError(t, err)

	insights, err := h.svc.Sustainability(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 15, insights.TotalEnergyKWh)
	require.InDelta(t, 7.5, insights.CO2SavedKg, 1e-9)
	require.EqualValues(t, 2, insights.TotalSessions)
	require.Equal(t, 1, insights.Drivers)

	require.Equal(t, 2, h.observer.calls["record_session"])
	require.Equal(t, 1, h.observer.calls["initialize_platform"])
}

func TestAuthoritiesAreRederived(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.Authorities()
	require.NoError(t, err)
	second, err := h.svc.Authorities()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, testProgram, first.Program)
	require.NotEqual(t, first.MintAuthority, first.PlatformAuthority)
}
