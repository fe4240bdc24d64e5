package host

import (
	"context"
	"sort"
	"sync"
	"time"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/events"
	"evrewards/backend/services/rewards-service/internal/ledger"
	"evrewards/backend/services/rewards-service/internal/models"
)

type memoryState struct {
	registries map[address.Address]models.PlatformRegistry
	drivers    map[address.Address]models.DriverRecord
	sessions   map[address.Address]models.SessionRecord
	order      []address.Address
	ledger     *ledger.MemoryStore
}

func newMemoryState() *memoryState {
	return &memoryState{
		registries: make(map[address.Address]models.PlatformRegistry),
		drivers:    make(map[address.Address]models.DriverRecord),
		sessions:   make(map[address.Address]models.SessionRecord),
		ledger:     ledger.NewMemoryStore(),
	}
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		registries: make(map[address.Address]models.PlatformRegistry, len(s.registries)),
		drivers:    make(map[address.Address]models.DriverRecord, len(s.drivers)),
		sessions:   make(map[address.Address]models.SessionRecord, len(s.sessions)),
		order:      append([]address.Address(nil), s.order...),
		ledger:     s.ledger.Clone(),
	}
	for k, v := range s.registries {
		out.registries[k] = v
	}
	for k, v := range s.drivers {
		out.drivers[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	return out
}

// MemoryHost keeps all state in process. Transactions are serialised by one mutex and run
// against a clone that replaces the live state only on success.
type MemoryHost struct {
	mu      sync.Mutex
	state   *memoryState
	program address.Address
	emitter events.Emitter
	now     func() time.Time
}

// MemoryOption customises a MemoryHost.
type MemoryOption func(*MemoryHost)

// WithClock overrides the transaction clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(h *MemoryHost) { h.now = now }
}

func NewMemoryHost(program address.Address, emitter events.Emitter, opts ...MemoryOption) *MemoryHost {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	h := &MemoryHost{
		state:   newMemoryState(),
		program: program,
		emitter: emitter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fund sets the native balance of owner.
func (h *MemoryHost) Fund(owner address.Address, balance uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.ledger.Fund(owner, balance)
}

// NativeBalance reads the committed native balance of owner.
func (h *MemoryHost) NativeBalance(owner address.Address) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, _ := h.state.ledger.NativeBalance(context.Background(), owner)
	return b
}

func (h *MemoryHost) Execute(ctx context.Context, signers []address.Address, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := h.apply(ctx, signers, fn)
	if err != nil {
		return err
	}
	tx.buffer.Flush(h.emitter)
	return nil
}

func (h *MemoryHost) apply(ctx context.Context, signers []address.Address, fn TxFunc) (*memoryTx, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	working := h.state.clone()
	tx := h.newTx(working, signers)
	if err := fn(ctx, tx); err != nil {
		return nil, err
	}
	h.state = working
	return tx, nil
}

func (h *MemoryHost) View(ctx context.Context, fn ViewFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	snapshot := h.state.clone()
	h.mu.Unlock()

	return fn(ctx, h.newTx(snapshot, nil))
}

func (h *MemoryHost) newTx(state *memoryState, signers []address.Address) *memoryTx {
	engine := ledger.NewEngine(state.ledger, ledger.Verifier{Program: h.program, Signers: signers})
	return &memoryTx{state: state, engine: engine, now: h.now().UTC()}
}

var (
	_ Host = (*MemoryHost)(nil)
	_ Tx   = (*memoryTx)(nil)
)

type memoryTx struct {
	state  *memoryState
	engine *ledger.Engine
	now    time.Time
	buffer EventBuffer
}

func (t *memoryTx) Now() time.Time { return t.now }

func (t *memoryTx) Registry(_ context.Context, addr address.Address) (*models.PlatformRegistry, error) {
	r, ok := t.state.registries[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &r, nil
}

// LockRegistry is Registry; memory transactions are already serialised.
func (t *memoryTx) LockRegistry(ctx context.Context, addr address.Address) (*models.PlatformRegistry, error) {
	return t.Registry(ctx, addr)
}

func (t *memoryTx) Driver(_ context.Context, addr address.Address) (*models.DriverRecord, error) {
	d, ok := t.state.drivers[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &d, nil
}

func (t *memoryTx) Drivers(context.Context) ([]models.DriverRecord, error) {
	out := make([]models.DriverRecord, 0, len(t.state.drivers))
	for _, d := range t.state.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Driver.String() < out[j].Driver.String() })
	return out, nil
}

func (t *memoryTx) Sessions(_ context.Context, driver address.Address, limit int) ([]models.SessionRecord, error) {
	var out []models.SessionRecord
	for i := len(t.state.order) - 1; i >= 0; i-- {
		s := t.state.sessions[t.state.order[i]]
		if s.Driver != driver {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memoryTx) Assets() ledger.AssetLedger { return t.engine }

func (t *memoryTx) Native() ledger.NativeChannel { return t.engine.Native() }

func (t *memoryTx) CreateRegistry(_ context.Context, r *models.PlatformRegistry) error {
	if _, ok := t.state.registries[r.Address]; ok {
		return ErrAccountInUse
	}
	t.state.registries[r.Address] = *r
	return nil
}

func (t *memoryTx) PutRegistry(_ context.Context, r *models.PlatformRegistry) error {
	if _, ok := t.state.registries[r.Address]; !ok {
		return ErrAccountNotFound
	}
	t.state.registries[r.Address] = *r
	return nil
}

func (t *memoryTx) CreateDriver(_ context.Context, d *models.DriverRecord) error {
	if _, ok := t.state.drivers[d.Address]; ok {
		return ErrAccountInUse
	}
	t.state.drivers[d.Address] = *d
	return nil
}

func (t *memoryTx) PutDriver(_ context.Context, d *models.DriverRecord) error {
	if _, ok := t.state.drivers[d.Address]; !ok {
		return ErrAccountNotFound
	}
	t.state.drivers[d.Address] = *d
	return nil
}

func (t *memoryTx) CreateSession(_ context.Context, s *models.SessionRecord) error {
	if _, ok := t.state.sessions[s.Address]; ok {
		return ErrAccountInUse
	}
	t.state.sessions[s.Address] = *s
	t.state.order = append(t.state.order, s.Address)
	return nil
}

func (t *memoryTx) Emit(evt events.Event) { t.buffer.Emit(evt) }
