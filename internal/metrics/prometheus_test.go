package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"confluence-engine/internal/events"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSignal("BTCUSDT", "LONG")
	r.RecordSignal("BTCUSDT", "LONG")
	r.RecordSkip("ETHUSDT")
	r.RecordFetchError("ETHUSDT", "order_book")
	r.RecordSinkError("kafka")
	r.RecordGateBlocked()
	r.RecordAnalysis("BTCUSDT", "signal", 0.72)
	r.ObserveTick(0.25)

	if got := testutil.ToFloat64(r.signals.WithLabelValues("BTCUSDT", "LONG")); got != 2 {
		t.Errorf("signals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.fetchErrors.WithLabelValues("ETHUSDT", "order_book")); got != 1 {
		t.Errorf("fetch errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.confidence.WithLabelValues("BTCUSDT")); got != 0.72 {
		t.Errorf("confidence = %v, want 0.72", got)
	}
	if got := testutil.ToFloat64(r.gateBlocked); got != 1 {
		t.Errorf("gate blocked = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 8 {
		t.Errorf("registered families = %d, want 8", len(families))
	}
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry()) // must not panic on duplicate registration
}

func TestFollowCountsGateBlocks(t *testing.T) {
	r := New(prometheus.NewRegistry())
	bus := events.NewEventBus()
	r.Follow(bus)

	bus.PublishGateBlocked("BTCUSDT", []string{"daily trade limit reached (20/20)"})
	bus.PublishTradeOutcome("BTCUSDT", "LONG", 5)

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(r.gateBlocked) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := testutil.ToFloat64(r.gateBlocked); got != 1 {
		t.Errorf("gate blocked = %v, want 1", got)
	}
}
