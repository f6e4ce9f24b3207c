package streaming

import (
	"sync"
)

// SubscriptionManager tracks the set of subscriptions the caller intends to
// have active, independent of the current connection state, and replays
// them after a reconnect. Grounded on adapter/websocket/subscription_manager.go's
// sync.RWMutex-guarded map idiom, generalized from Saxo's HTTP-POST
// subscribe calls to AlgoLab's frame-based subscribe/unsubscribe.
type SubscriptionManager struct {
	mu   sync.RWMutex
	subs map[string]Subscription

	// allChannels records channels subscribed via SubscribeAll, which are
	// remembered as a single intent rather than expanded per-symbol.
	allChannels map[Channel]bool
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subs:        make(map[string]Subscription),
		allChannels: make(map[Channel]bool),
	}
}

// send is provided by the caller (normally *Client.sendSubscribeFrame) so the
// manager can issue the wire frame for an add/replay without depending on
// the transport directly.
type frameSender func(sub Subscription, subscribe bool) error

// Subscribe adds (channel, symbol) to the intended set and sends the
// subscribe frame. Re-subscribing to an already-held subscription is a
// no-op. If send fails, the intent is removed and the error returned —
// a failed initial subscribe is never silently retained.
func (m *SubscriptionManager) Subscribe(sub Subscription, send frameSender) error {
	m.mu.Lock()
	if _, exists := m.subs[sub.key()]; exists {
		m.mu.Unlock()
		return nil
	}
	m.subs[sub.key()] = sub
	m.mu.Unlock()

	if err := send(sub, true); err != nil {
		m.mu.Lock()
		delete(m.subs, sub.key())
		m.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe removes (channel, symbol) from the intended set and sends the
// unsubscribe frame. Unsubscribing from something not held is a no-op.
func (m *SubscriptionManager) Unsubscribe(sub Subscription, send frameSender) error {
	m.mu.Lock()
	if _, exists := m.subs[sub.key()]; !exists {
		m.mu.Unlock()
		return nil
	}
	delete(m.subs, sub.key())
	m.mu.Unlock()

	return send(sub, false)
}

// SubscribeAll subscribes to every symbol on channel, recorded as a single
// intent using the AllSymbols identity.
func (m *SubscriptionManager) SubscribeAll(channel Channel, send frameSender) error {
	sub := Subscription{Channel: channel, Symbol: AllSymbols}

	m.mu.Lock()
	if m.allChannels[channel] {
		m.mu.Unlock()
		return nil
	}
	m.allChannels[channel] = true
	m.mu.Unlock()

	if err := send(sub, true); err != nil {
		m.mu.Lock()
		delete(m.allChannels, channel)
		m.mu.Unlock()
		return err
	}
	return nil
}

// IsSubscribedToAll reports whether SubscribeAll(channel) is currently held.
func (m *SubscriptionManager) IsSubscribedToAll(channel Channel) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allChannels[channel]
}

// Active returns a snapshot of every per-symbol subscription currently held.
func (m *SubscriptionManager) Active() []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out
}

// ReplayResult reports how many of the held subscriptions were successfully
// re-sent after a reconnect.
type ReplayResult struct {
	Succeeded int
	Failed    int
}

// Replay re-sends a subscribe frame for every held subscription and every
// SubscribeAll channel after a reconnect. Unlike Subscribe, a failure here
// does NOT remove the intent — the caller is presumed still to want it, and
// the next heartbeat/reconnect cycle gets another chance.
func (m *SubscriptionManager) Replay(send frameSender) ReplayResult {
	m.mu.RLock()
	subs := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	channels := make([]Channel, 0, len(m.allChannels))
	for ch, on := range m.allChannels {
		if on {
			channels = append(channels, ch)
		}
	}
	m.mu.RUnlock()

	var result ReplayResult
	for _, s := range subs {
		if err := send(s, true); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	for _, ch := range channels {
		if err := send(Subscription{Channel: ch, Symbol: AllSymbols}, true); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	return result
}
