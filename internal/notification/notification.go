package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/events"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal        NotificationType = "signal"
	NotifyTradeOutcome  NotificationType = "trade_outcome"
	NotifyFilterTripped NotificationType = "filter_tripped"
	NotifyError         NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Timestamp time.Time
}

// Text renders the notification as a plain-text chat message
func (n *Notification) Text() string {
	if n.Message == "" {
		return n.Title
	}
	return n.Title + "\n\n" + n.Message
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled provider. It is a
// scheduler SignalSink and can also follow the event bus.
type Manager struct {
	mu            sync.RWMutex
	notifiers     []Notifier
	minConfidence float64
	logger        zerolog.Logger
}

// NewManager creates a manager that only forwards signals at or above minConfidence
func NewManager(minConfidence float64, logger zerolog.Logger) *Manager {
	return &Manager{
		minConfidence: minConfidence,
		logger:        logger.With().Str("component", "notification").Logger(),
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Name identifies the manager as a sink
func (m *Manager) Name() string { return "notify" }

// Send sends a notification to all enabled providers and returns the last error
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	m.mu.RLock()
	notifiers := m.notifiers
	m.mu.RUnlock()

	var lastErr error
	for _, notifier := range notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(ctx, n); err != nil {
			m.logger.Warn().Err(err).Str("notifier", notifier.Name()).Str("type", string(n.Type)).Msg("Notification failed")
			lastErr = fmt.Errorf("%s: %w", notifier.Name(), err)
		}
	}
	return lastErr
}

// SendSignal notifies about a generated signal. Signals below the
// confidence floor are dropped silently.
func (m *Manager) SendSignal(ctx context.Context, sig *signal.TradingSignal) error {
	if sig == nil || sig.Confidence < m.minConfidence {
		return nil
	}
	return m.Send(ctx, SignalNotification(sig))
}

// SignalNotification formats a trading signal
func SignalNotification(sig *signal.TradingSignal) *Notification {
	icon := "🟢"
	if sig.Direction == market.Short {
		icon = "🔴"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s @ %.4f (%s, %s)\n", sig.Direction, sig.Symbol, sig.EntryPrice, sig.Timeframe, sig.Mode)
	fmt.Fprintf(&b, "SL: %.4f\n", sig.StopLoss)
	fmt.Fprintf(&b, "TP: %.4f / %.4f / %.4f\n", sig.TakeProfit[0], sig.TakeProfit[1], sig.TakeProfit[2])
	fmt.Fprintf(&b, "R:R %.2f | Confidence %.0f%%", sig.RiskReward, sig.Confidence*100)
	if sig.AutoTradable {
		b.WriteString(" | auto-tradable")
	}
	if len(sig.Triggers) > 0 {
		fmt.Fprintf(&b, "\nTriggers: %s", strings.Join(sig.Triggers, ", "))
	}

	return &Notification{
		Type:      NotifySignal,
		Title:     fmt.Sprintf("%s Signal: %s", icon, sig.Symbol),
		Message:   b.String(),
		Symbol:    sig.Symbol,
		Timestamp: sig.Timestamp,
	}
}

// Follow subscribes the manager to trade outcomes and filter trips on bus
func (m *Manager) Follow(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(events.EventTradeOutcome, m.onEvent)
	bus.Subscribe(events.EventFilterTripped, m.onEvent)
}

func (m *Manager) onEvent(e events.Event) {
	n := EventNotification(e)
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = m.Send(ctx, n)
}

// EventNotification formats bus events worth a message, nil otherwise
func EventNotification(e events.Event) *Notification {
	switch e.Type {
	case events.EventTradeOutcome:
		pnl, _ := e.Data["pnl"].(float64)
		direction, _ := e.Data["direction"].(string)
		icon := "✅"
		if pnl < 0 {
			icon = "❌"
		}
		return &Notification{
			Type:      NotifyTradeOutcome,
			Title:     fmt.Sprintf("%s Trade Closed: %s", icon, e.Symbol),
			Message:   fmt.Sprintf("%s P&L: %.2f", direction, pnl),
			Symbol:    e.Symbol,
			Timestamp: e.Timestamp,
		}
	case events.EventFilterTripped:
		reason, _ := e.Data["reason"].(string)
		return &Notification{
			Type:      NotifyFilterTripped,
			Title:     "⚠️ Trading paused",
			Message:   reason,
			Timestamp: e.Timestamp,
		}
	}
	return nil
}
