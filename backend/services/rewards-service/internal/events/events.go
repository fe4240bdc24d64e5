// Package events carries program notifications to observers. Delivery is best-effort and
// happens after the emitting transaction commits.
package events

import (
	"encoding/json"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"evrewards/backend/services/rewards-service/internal/address"
)

// TypeSessionRecorded is the type of SessionRecorded events.
const TypeSessionRecorded = "session_recorded"

// Event is a notification emitted by the program.
type Event interface {
	EventType() string
}

// Emitter receives committed events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// SessionRecorded is emitted for every recorded charging session.
type SessionRecorded struct {
	Driver        address.Address `json:"driver"`
	ChargerCode   string          `json:"charger_code"`
	EnergyUsedKWh uint64          `json:"energy_used_kwh"`
	Points        uint64          `json:"points"`
}

func (SessionRecorded) EventType() string { return TypeSessionRecorded }

// DriverAddress scopes the event to its driver.
func (e SessionRecorded) DriverAddress() address.Address { return e.Driver }

func (e SessionRecorded) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("driver", e.Driver.String())
	enc.AddString("charger_code", e.ChargerCode)
	enc.AddUint64("energy_used_kwh", e.EnergyUsedKWh)
	enc.AddUint64("points", e.Points)
	return nil
}

// Envelope is the wire form published to subscribers.
type Envelope struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

// Marshal encodes evt inside an Envelope.
func Marshal(evt Event) ([]byte, error) {
	return json.Marshal(Envelope{Type: evt.EventType(), Data: evt})
}

type fanout []Emitter

// Fanout delivers each event to every non-nil emitter in order.
func Fanout(emitters ...Emitter) Emitter {
	out := make(fanout, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (f fanout) Emit(evt Event) {
	for _, e := range f {
		e.Emit(evt)
	}
}

// LogEmitter writes events to a zap logger.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(evt Event) {
	fields := []zap.Field{zap.String("type", evt.EventType())}
	if m, ok := evt.(zapcore.ObjectMarshaler); ok {
		fields = append(fields, zap.Object("event", m))
	} else {
		fields = append(fields, zap.Any("event", evt))
	}
	l.logger.Info("event emitted", fields...)
}
