// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package locupdate provides a single-listener facade over a host positioning
// service. It hides the host's set of concurrent position providers behind one
// simplified start/stop interface with a configurable accuracy criteria, minimum
// update interval and minimum update distance. We are trading flexibility for
// simplicity here, applications that need the full provider surface should talk
// to the gateway directly.
package locupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/looplab/fsm"

	"github.com/wneessen/go-locupdate/internal/logger"
)

const (
	stateIdle    = "idle"
	stateRunning = "running"

	eventStart = "start"
	eventStop  = "stop"
)

var (
	// ErrNoGateway is returned when an Updater has no provider gateway to talk to.
	ErrNoGateway = errors.New("no provider gateway available")
	// ErrAlreadyRunning is returned when Start is called on a running Updater.
	ErrAlreadyRunning = errors.New("location updates are already running")
	// ErrNotRunning is returned when Stop is called on an idle Updater.
	ErrNotRunning = errors.New("location updates are not running")
)

// Updater manages continuous location updates with a single listener. It can be
// configured through chained setters:
//
//	updater, err := locupdate.New(gateway, log).
//		SetInterval(30 * time.Minute).
//		SetDistance(100).
//		SetCriteria(locupdate.CriteriaFine).
//		SetListener(listener).
//		Start()
//
// Configuration changes after Start take effect on the next Start, so callers
// have to Stop and Start again to apply them. Start and Stop are not safe for
// concurrent invocation on the same Updater, callers must serialize lifecycle
// calls. LastBestKnownFix is a read-only query and usable at any time.
type Updater struct {
	gateway  Gateway
	logger   *logger.Logger
	machine  *fsm.FSM
	receiver *Receiver

	cfg Config
	sub Subscription
}

// New returns an idle Updater bound to the given gateway with the default
// configuration of a one minute interval, 100 meters distance and fine criteria.
func New(gateway Gateway, log *logger.Logger) *Updater {
	updater := &Updater{
		gateway:  gateway,
		logger:   log,
		receiver: NewReceiver(log),
		cfg: Config{
			Interval: time.Minute,
			Distance: 100,
			Criteria: CriteriaFine,
		},
	}
	updater.machine = fsm.NewFSM(stateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{stateIdle}, Dst: stateRunning},
			{Name: eventStop, Src: []string{stateRunning}, Dst: stateIdle},
		},
		fsm.Callbacks{},
	)
	return updater
}

// SetInterval sets the minimum time between two delivered updates.
func (u *Updater) SetInterval(interval time.Duration) *Updater {
	u.cfg.Interval = interval
	return u
}

// Interval returns the configured minimum update interval.
func (u *Updater) Interval() time.Duration {
	return u.cfg.Interval
}

// SetDistance sets the minimum distance in meters between two delivered updates.
func (u *Updater) SetDistance(meters float64) *Updater {
	u.cfg.Distance = meters
	return u
}

// Distance returns the configured minimum update distance in meters.
func (u *Updater) Distance() float64 {
	return u.cfg.Distance
}

// SetCriteria sets the desired provider accuracy criteria.
func (u *Updater) SetCriteria(criteria Criteria) *Updater {
	u.cfg.Criteria = criteria
	return u
}

// Criteria returns the configured provider accuracy criteria.
func (u *Updater) Criteria() Criteria {
	return u.cfg.Criteria
}

// SetListener registers the listener that is invoked for every delivered update.
// Unlike the other setters, the listener may be changed while running.
func (u *Updater) SetListener(fn ListenerFunc) *Updater {
	u.receiver.SetListener(fn)
	return u
}

// Receiver returns the delivery endpoint of the Updater, so that consumers can
// subscribe to the normalized event stream directly.
func (u *Updater) Receiver() *Receiver {
	return u.receiver
}

// Running reports whether continuous updates are currently active.
func (u *Updater) Running() bool {
	return u.machine.Is(stateRunning)
}

// Start begins continuous location updates. Depending on the gateway capability
// it either subscribes with the full configuration and lets the host arbitrate
// among all providers matching the criteria, or it falls back to a single
// subscription on the network provider, ignoring the criteria. The first update
// might take up to the configured interval to be delivered, callers that need a
// quick fix should use LastBestKnownFix.
//
// Starting an already running Updater or one without a gateway is an error and
// leaves the Updater state unchanged.
func (u *Updater) Start() (*Updater, error) {
	if u.gateway == nil {
		return u, ErrNoGateway
	}
	if err := u.machine.Event(context.Background(), eventStart); err != nil {
		return u, ErrAlreadyRunning
	}

	var (
		sub Subscription
		err error
	)
	if u.gateway.SupportsCriteria() {
		u.logger.Debug("starting location updates with criteria arbitration",
			slog.String("criteria", u.cfg.Criteria.String()))
		sub, err = u.gateway.Subscribe(u.cfg, u.receiver)
	} else {
		u.logger.Debug("host lacks criteria arbitration, using single provider updates",
			slog.String("provider", NetworkProvider))
		sub, err = u.gateway.SubscribeProvider(NetworkProvider, u.cfg.Interval, u.cfg.Distance, u.receiver)
	}
	if err != nil {
		_ = u.machine.Event(context.Background(), eventStop)
		return u, fmt.Errorf("failed to subscribe for location updates: %w", err)
	}

	u.sub = sub
	return u, nil
}

// Stop ends continuous location updates and releases the subscription. Stopping
// an idle Updater is an error. A final in-flight delivery racing with Stop is
// possible and has to be tolerated by callers.
func (u *Updater) Stop() error {
	if u.gateway == nil {
		return ErrNoGateway
	}
	if err := u.machine.Event(context.Background(), eventStop); err != nil {
		return ErrNotRunning
	}

	sub := u.sub
	u.sub = nil
	if err := u.gateway.Unsubscribe(sub); err != nil {
		return fmt.Errorf("failed to release update subscription: %w", err)
	}
	u.logger.Debug("location updates stopped")
	return nil
}

// LastBestKnownFix iterates over all providers known to the gateway and returns
// the best last-known fix, or false if no provider has reported a fix yet. The
// result is recomputed on every call and independent of the update lifecycle.
//
// A fix with a timestamp above the configured interval and the lowest accuracy
// value wins. If no such fix exists, the newest fix below the interval wins
// regardless of its accuracy. Ties are won by the provider enumerated first.
//
// TODO: the selection compares an absolute unix-milli timestamp against the
// relative interval. This mixes units and most likely should compare the fix age
// instead, but changing it would alter which fix wins, so the behavior is kept
// until the intended semantics are settled.
func (u *Updater) LastBestKnownFix() (Fix, bool) {
	if u.gateway == nil {
		return Fix{}, false
	}

	var best Fix
	found := false
	bestAccuracy := math.MaxFloat64
	bestTime := int64(math.MinInt64)
	threshold := u.cfg.Interval.Milliseconds()

	for _, provider := range u.gateway.Providers() {
		fix, ok := u.gateway.LastKnownFix(provider)
		if !ok {
			continue
		}
		accuracy := fix.AccuracyMeters
		fixTime := fix.Time.UnixMilli()

		if fixTime > threshold && accuracy < bestAccuracy {
			best = fix
			bestAccuracy = accuracy
			bestTime = fixTime
			found = true
		} else if fixTime < threshold && bestAccuracy == math.MaxFloat64 && fixTime > bestTime {
			best = fix
			bestTime = fixTime
			found = true
		}
	}

	return best, found
}
