package repository

import (
	"context"
	"database/sql"
	"time"

	libdb "evrewards/backend/libs/db"
	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/events"
	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/ledger"
)

// PostgresHost runs every operation in one database transaction. Rows an operation reads
// are locked FOR UPDATE, so operations on different drivers do not block each other.
type PostgresHost struct {
	db      *sql.DB
	program address.Address
	emitter events.Emitter
	now     func() time.Time
}

// NewPostgresHost returns a host over db. emitter may be nil.
func NewPostgresHost(db *sql.DB, program address.Address, emitter events.Emitter) *PostgresHost {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &PostgresHost{db: db, program: program, emitter: emitter, now: time.Now}
}

var _ host.Host = (*PostgresHost)(nil)

func (h *PostgresHost) Execute(ctx context.Context, signers []address.Address, fn host.TxFunc) error {
	var committed *pgTx
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	err := libdb.WithTx(ctx, h.db, opts, func(sqlTx *sql.Tx) error {
		tx := h.newTx(sqlTx, signers, true)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed = tx
		return nil
	})
	if err != nil {
		return err
	}

	committed.buffer.Flush(h.emitter)
	return nil
}

func (h *PostgresHost) View(ctx context.Context, fn host.ViewFunc) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return libdb.WithTx(ctx, h.db, opts, func(sqlTx *sql.Tx) error {
		return fn(ctx, h.newTx(sqlTx, nil, false))
	})
}

func (h *PostgresHost) newTx(sqlTx *sql.Tx, signers []address.Address, lock bool) *pgTx {
	store := &ledgerStore{tx: sqlTx, lock: lock}
	return &pgTx{
		tx:     sqlTx,
		lock:   lock,
		engine: ledger.NewEngine(store, ledger.Verifier{Program: h.program, Signers: signers}),
		now:    h.now().UTC(),
	}
}

type pgTx struct {
	tx     *sql.Tx
	lock   bool
	engine *ledger.Engine
	now    time.Time
	buffer host.EventBuffer
}

var _ host.Tx = (*pgTx)(nil)

func (t *pgTx) Now() time.Time { return t.now }

func (t *pgTx) Assets() ledger.AssetLedger { return t.engine }

func (t *pgTx) Native() ledger.NativeChannel { return t.engine.Native() }

func (t *pgTx) Emit(evt events.Event) { t.buffer.Emit(evt) }

func (t *pgTx) locking(query string) string {
	if t.lock {
		return query + " FOR UPDATE"
	}
	return query
}

// Fund sets the native balance of owner outside of any program operation.
func (h *PostgresHost) Fund(ctx context.Context, owner address.Address, balance uint64) error {
	return libdb.WithTx(ctx, h.db, nil, func(sqlTx *sql.Tx) error {
		return (&ledgerStore{tx: sqlTx}).SetNativeBalance(ctx, owner, balance)
	})
}
