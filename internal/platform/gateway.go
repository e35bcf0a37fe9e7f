// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package platform implements a locupdate.Gateway on top of a set of host
// position providers. It tracks every provider, caches the last known fix per
// provider and routes incoming fixes to active update subscriptions.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Provider is a host position source tracked by the Gateway.
type Provider interface {
	Name() string
	Criteria() locupdate.Criteria
	WatchFixes(ctx context.Context) <-chan locupdate.Fix
}

// Gateway aggregates host position providers into a locupdate.Gateway. Run has
// to be active for fixes to be tracked, subscriptions can be taken out at any
// time.
type Gateway struct {
	logger          *logger.Logger
	criteriaSupport bool
	providers       []Provider

	mu      sync.RWMutex
	lastFix map[string]locupdate.Fix
	subs    map[*subscription]struct{}
}

// subscription routes fixes of eligible providers to a delivery target, gated
// by the minimum update interval and distance.
type subscription struct {
	providers map[string]struct{}
	interval  time.Duration
	distance  float64
	target    locupdate.Target

	mu        sync.Mutex
	delivered bool
	last      locupdate.Fix
	lastAt    time.Time
}

// New returns a Gateway over the given providers. The criteriaSupport flag is
// the capability switch for criteria-based subscriptions and is resolved once
// at construction.
func New(log *logger.Logger, criteriaSupport bool, providers ...Provider) *Gateway {
	return &Gateway{
		logger:          log,
		criteriaSupport: criteriaSupport,
		providers:       providers,
		lastFix:         make(map[string]locupdate.Fix),
		subs:            make(map[*subscription]struct{}),
	}
}

// Providers enumerates the names of all providers known to the Gateway.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// LastKnownFix returns the cached last fix of the given provider, if any.
func (g *Gateway) LastKnownFix(provider string) (locupdate.Fix, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fix, ok := g.lastFix[provider]
	return fix, ok
}

// SupportsCriteria reports whether criteria-based subscriptions are available.
func (g *Gateway) SupportsCriteria() bool {
	return g.criteriaSupport
}

// Subscribe registers a subscription over all providers satisfying the
// configured criteria.
func (g *Gateway) Subscribe(cfg locupdate.Config, target locupdate.Target) (locupdate.Subscription, error) {
	if !g.criteriaSupport {
		return nil, fmt.Errorf("criteria subscriptions are not supported by this host")
	}
	if target == nil {
		return nil, fmt.Errorf("subscription requires a delivery target")
	}

	eligible := make(map[string]struct{})
	for _, p := range g.providers {
		if criteriaMatch(cfg.Criteria, p.Criteria()) {
			eligible[p.Name()] = struct{}{}
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no provider matches criteria %s", cfg.Criteria)
	}

	return g.register(eligible, cfg.Interval, cfg.Distance, target), nil
}

// SubscribeProvider registers a subscription on a single named provider,
// honoring interval and distance only.
func (g *Gateway) SubscribeProvider(provider string, interval time.Duration, distance float64,
	target locupdate.Target,
) (locupdate.Subscription, error) {
	if target == nil {
		return nil, fmt.Errorf("subscription requires a delivery target")
	}

	known := false
	for _, p := range g.providers {
		if p.Name() == provider {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return g.register(map[string]struct{}{provider: {}}, interval, distance, target), nil
}

func (g *Gateway) register(providers map[string]struct{}, interval time.Duration, distance float64,
	target locupdate.Target,
) *subscription {
	sub := &subscription{
		providers: providers,
		interval:  interval,
		distance:  distance,
		target:    target,
	}
	g.mu.Lock()
	g.subs[sub] = struct{}{}
	g.mu.Unlock()
	return sub
}

// Unsubscribe releases an active subscription. Unknown or already released
// subscriptions are an error.
func (g *Gateway) Unsubscribe(sub locupdate.Subscription) error {
	s, ok := sub.(*subscription)
	if !ok {
		return fmt.Errorf("subscription does not belong to this gateway")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, active := g.subs[s]; !active {
		return fmt.Errorf("subscription has already been released")
	}
	delete(g.subs, s)
	return nil
}

// Run tracks all providers until the context ends. Each provider is watched in
// its own goroutine with backoff on failures.
func (g *Gateway) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range g.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			g.trackProvider(ctx, p)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider continuously consumes the fix stream of a Provider, recording
// and routing every fix and backing off when the stream fails or ends.
func (g *Gateway) trackProvider(ctx context.Context, p Provider) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fixChan := g.safeWatch(ctx, p)
		if fixChan == nil {
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-fixChan:
				if !ok {
					break stream
				}
				g.recordFix(p, fix)
				backoff = initialBackoff
			}
		}

		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// safeWatch invokes WatchFixes on a Provider and recovers from potential panics.
// Returns a read-only channel of fixes or nil if the operation fails.
func (g *Gateway) safeWatch(ctx context.Context, p Provider) (ch <-chan locupdate.Fix) {
	defer func() { _ = recover() }()
	return p.WatchFixes(ctx)
}

// recordFix caches a provider fix as its last known fix and offers it to all
// active subscriptions.
func (g *Gateway) recordFix(p Provider, fix locupdate.Fix) {
	fix.Provider = p.Name()
	if fix.Time.IsZero() {
		fix.Time = time.Now()
	}
	if !fix.Coordinate().Valid() {
		g.logger.Debug("ignoring fix with invalid coordinates", slog.String("provider", fix.Provider),
			slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon))
		return
	}

	g.mu.Lock()
	g.lastFix[fix.Provider] = fix
	subs := make([]*subscription, 0, len(g.subs))
	for sub := range g.subs {
		subs = append(subs, sub)
	}
	g.mu.Unlock()

	for _, sub := range subs {
		sub.offer(fix)
	}
}

// offer delivers a fix to the subscription target if the fix provider is
// eligible and both the interval and distance gates pass. The first fix of a
// subscription is always delivered.
func (s *subscription) offer(fix locupdate.Fix) {
	if _, ok := s.providers[fix.Provider]; !ok {
		return
	}

	s.mu.Lock()
	if s.delivered {
		if s.interval > 0 && time.Since(s.lastAt) < s.interval {
			s.mu.Unlock()
			return
		}
		if s.distance > 0 && fix.Coordinate().DistanceMeters(s.last.Coordinate()) < s.distance {
			s.mu.Unlock()
			return
		}
	}
	s.delivered = true
	s.last = fix
	s.lastAt = time.Now()
	s.mu.Unlock()

	payload := fix
	s.target.Deliver(locupdate.Notification{Provider: fix.Provider, Fix: &payload})
}

// criteriaMatch reports whether a provider accuracy class satisfies the
// requested criteria. Fine requests only match fine providers, coarse requests
// match any provider.
func criteriaMatch(requested, provided locupdate.Criteria) bool {
	return requested == locupdate.CriteriaCoarse || provided == locupdate.CriteriaFine
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
