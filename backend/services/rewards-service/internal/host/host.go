// Package host is the execution environment of the rewards program: it verifies signers,
// runs each operation as one atomic transaction, owns record storage and hands the
// operation transaction-scoped ledger collaborators.
package host

import (
	"context"
	"errors"
	"time"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/events"
	"evrewards/backend/services/rewards-service/internal/ledger"
	"evrewards/backend/services/rewards-service/internal/models"
)

var (
	// ErrAccountNotFound is returned when a record does not exist at an address.
	ErrAccountNotFound = errors.New("host: account not found")
	// ErrAccountInUse is returned when creating a record at an occupied address.
	ErrAccountInUse = errors.New("host: account already in use")
)

// ReadTx is a consistent read view.
type ReadTx interface {
	// Registry reads the registry without locking it.
	Registry(ctx context.Context, addr address.Address) (*models.PlatformRegistry, error)
	Driver(ctx context.Context, addr address.Address) (*models.DriverRecord, error)
	Drivers(ctx context.Context) ([]models.DriverRecord, error)
	// Sessions returns a driver's most recent sessions, newest first; limit <= 0 means all.
	Sessions(ctx context.Context, driver address.Address, limit int) ([]models.SessionRecord, error)
	Assets() ledger.AssetLedger
}

// Tx is one atomic operation. Nothing it writes is visible to others unless the operation
// function returns nil.
type Tx interface {
	ReadTx
	// Now is the host clock for the transaction.
	Now() time.Time
	// LockRegistry reads the registry and holds it until the transaction ends.
	LockRegistry(ctx context.Context, addr address.Address) (*models.PlatformRegistry, error)
	CreateRegistry(ctx context.Context, registry *models.PlatformRegistry) error
	PutRegistry(ctx context.Context, registry *models.PlatformRegistry) error
	CreateDriver(ctx context.Context, record *models.DriverRecord) error
	PutDriver(ctx context.Context, record *models.DriverRecord) error
	CreateSession(ctx context.Context, session *models.SessionRecord) error
	Native() ledger.NativeChannel
	// Emit buffers an event for delivery after commit.
	Emit(evt events.Event)
}

// TxFunc is an operation body.
type TxFunc func(ctx context.Context, tx Tx) error

// ViewFunc is a read-only body.
type ViewFunc func(ctx context.Context, tx ReadTx) error

// Host runs operations. Execute commits every write of fn or none of them.
type Host interface {
	Execute(ctx context.Context, signers []address.Address, fn TxFunc) error
	View(ctx context.Context, fn ViewFunc) error
}

// EventBuffer collects events until commit.
type EventBuffer struct {
	pending []events.Event
}

func (b *EventBuffer) Emit(evt events.Event) { b.pending = append(b.pending, evt) }

// Flush delivers buffered events in emission order.
func (b *EventBuffer) Flush(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	for _, evt := range b.pending {
		emitter.Emit(evt)
	}
	b.pending = nil
}
