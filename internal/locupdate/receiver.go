// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locupdate

import (
	"log/slog"
	"sync"

	"github.com/wneessen/go-locupdate/internal/logger"
)

// Event is a normalized fix notification as forwarded to consumers.
type Event struct {
	Provider string
	Fix      Fix
	Geohash  string
}

// ListenerFunc is invoked once for every accepted fix notification.
type ListenerFunc func(provider string, fix Fix)

// Receiver is the delivery endpoint for raw host fix notifications. It translates
// each notification into an Event, invokes the single registered listener and fans
// the event out to any subscribed channels. The Receiver holds no update
// configuration, so it is safe to deliver notifications concurrently with Updater
// queries or a stop of the updates.
type Receiver struct {
	logger *logger.Logger

	mu       sync.RWMutex
	listener ListenerFunc
	subs     map[chan Event]struct{}
}

// NewReceiver returns a Receiver without a registered listener.
func NewReceiver(log *logger.Logger) *Receiver {
	return &Receiver{
		logger: log,
		subs:   make(map[chan Event]struct{}),
	}
}

// SetListener registers the single listener callback. A nil listener disables the
// callback while channel subscribers keep receiving events.
func (r *Receiver) SetListener(fn ListenerFunc) {
	r.mu.Lock()
	r.listener = fn
	r.mu.Unlock()
}

// Deliver satisfies Target. Notifications without a usable fix payload are dropped
// silently, they neither invoke the listener nor raise an error.
func (r *Receiver) Deliver(n Notification) {
	if n.Fix == nil {
		r.logger.Debug("dropping notification without fix payload", slog.String("provider", n.Provider))
		return
	}

	fix := *n.Fix
	provider := n.Provider
	if provider == "" {
		provider = fix.Provider
	}
	if provider == "" {
		r.logger.Debug("dropping notification without provider name")
		return
	}
	if !fix.Coordinate().Valid() {
		r.logger.Debug("dropping notification with invalid coordinates",
			slog.String("provider", provider), slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon))
		return
	}
	fix.Provider = provider

	event := Event{
		Provider: provider,
		Fix:      fix,
		Geohash:  fix.Geohash(),
	}

	r.mu.RLock()
	listener := r.listener
	r.mu.RUnlock()
	if listener != nil {
		listener(event.Provider, event.Fix)
	}
	r.broadcast(event)
}

// Subscribe adds a subscriber channel with the given buffer size and returns it
// together with an unsubscribe function.
func (r *Receiver) Subscribe(buffer int) (<-chan Event, func()) {
	eventChan := make(chan Event, buffer)
	r.mu.Lock()
	r.subs[eventChan] = struct{}{}
	r.mu.Unlock()

	unsub := func() {
		r.mu.Lock()
		delete(r.subs, eventChan)
		r.mu.Unlock()
		close(eventChan)
	}

	return eventChan, unsub
}

// broadcast fans an event out to all subscriber channels. Slow subscribers with a
// full buffer miss the event instead of blocking delivery.
func (r *Receiver) broadcast(event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
