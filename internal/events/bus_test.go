package events

import (
	"errors"
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()
	typed := make(chan Event, 1)
	all := make(chan Event, 2)

	bus.Subscribe(EventGateBlocked, func(e Event) { typed <- e })
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishGateBlocked("BTCUSDT", []string{"daily trade limit reached"})
	bus.PublishError("scheduler", "fetch failed", errors.New("timeout"))

	select {
	case e := <-typed:
		if e.Symbol != "BTCUSDT" || e.Timestamp.IsZero() {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("typed subscriber not called")
	}

	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			if e.Type == EventError && e.Data["error"] != "timeout" {
				t.Errorf("error event data = %v", e.Data)
			}
		case <-time.After(time.Second):
			t.Fatal("all-events subscriber missed an event")
		}
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *EventBus
	bus.PublishTradeOutcome("ETHUSDT", "LONG", 12.5)
}
