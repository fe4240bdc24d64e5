package events

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"evrewards/backend/services/rewards-service/internal/address"
)

type recorder struct{ got []Event }

func (r *recorder) Emit(evt Event) { r.got = append(r.got, evt) }

func sampleEvent() SessionRecorded {
	return SessionRecorded{
		Driver:        address.Hash([]byte("driver")),
		ChargerCode:   "CH-01",
		EnergyUsedKWh: 12,
		Points:        12_500_000_000,
	}
}

func TestFanoutSkipsNilAndKeepsOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	emitter := Fanout(a, nil, b)

	emitter.Emit(sampleEvent())

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both emitters to receive the event: %d %d", len(a.got), len(b.got))
	}
}

func TestMarshalEnvelope(t *testing.T) {
	evt := sampleEvent()
	raw, err := Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type string          `json:"type"`
		Data SessionRecorded `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeSessionRecorded {
		t.Fatalf("type %q", decoded.Type)
	}
	if decoded.Data != evt {
		t.Fatalf("data mismatch: %+v", decoded.Data)
	}
}

func TestLogEmitterWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewLogEmitter(zap.New(core)).Emit(sampleEvent())

	entries := logs.FilterMessage("event emitted").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["type"] != TypeSessionRecorded {
		t.Fatalf("unexpected type field %v", ctx["type"])
	}
	event, ok := ctx["event"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object field, got %T", ctx["event"])
	}
	if event["charger_code"] != "CH-01" {
		t.Fatalf("unexpected charger code %v", event["charger_code"])
	}
}
