package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated   EventType = "signal_generated"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventGateBlocked       EventType = "gate_blocked"
	EventTradeOutcome      EventType = "trade_outcome"
	EventFilterTripped     EventType = "filter_tripped"
	EventError             EventType = "error"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Subscribers run on
// their own goroutine so a slow consumer never blocks a publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event. payload is the full
// signal and is what websocket clients receive.
func (eb *EventBus) PublishSignal(symbol, direction string, confidence float64, payload interface{}) {
	eb.Publish(Event{
		Type:   EventSignalGenerated,
		Symbol: symbol,
		Data: map[string]interface{}{
			"direction":  direction,
			"confidence": confidence,
			"signal":     payload,
		},
	})
}

// PublishAnalysis publishes an analysis completed event
func (eb *EventBus) PublishAnalysis(symbol, status string, payload interface{}) {
	eb.Publish(Event{
		Type:   EventAnalysisCompleted,
		Symbol: symbol,
		Data: map[string]interface{}{
			"status":    status,
			"breakdown": payload,
		},
	})
}

// PublishGateBlocked publishes a gate rejection
func (eb *EventBus) PublishGateBlocked(symbol string, reasons []string) {
	eb.Publish(Event{
		Type:   EventGateBlocked,
		Symbol: symbol,
		Data: map[string]interface{}{
			"reasons": reasons,
		},
	})
}

// PublishTradeOutcome publishes a recorded trade result
func (eb *EventBus) PublishTradeOutcome(symbol, direction string, pnl float64) {
	eb.Publish(Event{
		Type:   EventTradeOutcome,
		Symbol: symbol,
		Data: map[string]interface{}{
			"direction": direction,
			"pnl":       pnl,
		},
	})
}

// PublishFilterTripped publishes a cooldown or daily stop
func (eb *EventBus) PublishFilterTripped(reason string) {
	eb.Publish(Event{
		Type: EventFilterTripped,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
