// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd streams fine position fixes from a local gpsd daemon.
package gpsd

import (
	"context"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/wneessen/go-locupdate/internal/gpspoll"
	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"

	"github.com/stratoberry/go-gpsd"
)

const (
	name           = "gps"
	reconnectDelay = time.Second * 30
	primeTimeout   = time.Second * 2
)

// Provider watches a gpsd daemon and emits a fix for every TPV report with at
// least a 2D fix.
type Provider struct {
	logger *logger.Logger
	host   string
	port   string
	primer *gpspoll.Client
}

// New returns a gpsd-backed Provider for the daemon at the given host and port.
func New(log *logger.Logger, host, port string) *Provider {
	return &Provider{
		logger: log,
		host:   host,
		port:   port,
		primer: gpspoll.New(host, port),
	}
}

func (p *Provider) Name() string {
	return name
}

func (p *Provider) Criteria() locupdate.Criteria {
	return locupdate.CriteriaFine
}

// WatchFixes streams fixes from gpsd until the context ends. A one-shot poll
// primes the stream so the first fix does not have to wait for the watch
// session to settle.
func (p *Provider) WatchFixes(ctx context.Context) <-chan locupdate.Fix {
	out := make(chan locupdate.Fix)

	go func() {
		defer close(out)
		state := platform.FixState{}

		p.primeStream(ctx, out, &state)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			addr := net.JoinHostPort(p.host, p.port)
			session, err := gpsd.Dial(addr)
			if err != nil {
				p.logger.Debug("failed to connect to gpsd", slog.String("address", addr), logger.Err(err))
				if !waitOrDone(ctx, reconnectDelay) {
					return
				}
				continue
			}

			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok {
					return
				}
				// Need at least a 2D fix
				if tpv.Mode < gpsd.Mode2D {
					return
				}

				fix := locupdate.Fix{
					Lat:            tpv.Lat,
					Lon:            tpv.Lon,
					Alt:            tpv.Alt,
					AccuracyMeters: horizontalAccuracy(tpv),
					Time:           tpv.Time,
				}
				if !state.Changed(fix.Coordinate()) {
					return
				}
				state.Update(fix.Coordinate())

				select {
				case <-ctx.Done():
				case out <- fix:
				}
			})

			// Watch() returns a channel that closes when the watch ends,
			// e.g. on a lost connection. go-gpsd has no Close(), tearing
			// down the process closes the session.
			done := session.Watch()

			select {
			case <-ctx.Done():
				return
			case <-done:
			}

			if !waitOrDone(ctx, reconnectDelay) {
				return
			}
		}
	}()

	return out
}

// primeStream emits a single polled fix before the streaming session starts.
func (p *Provider) primeStream(ctx context.Context, out chan<- locupdate.Fix, state *platform.FixState) {
	pollCtx, cancel := context.WithTimeout(ctx, primeTimeout)
	defer cancel()

	polled, err := p.primer.Poll(pollCtx)
	if err != nil || !polled.Has2DFix() {
		return
	}

	fix := locupdate.Fix{
		Lat:            polled.Lat,
		Lon:            polled.Lon,
		Alt:            polled.Alt,
		AccuracyMeters: polled.Acc,
	}
	if !state.Changed(fix.Coordinate()) {
		return
	}
	state.Update(fix.Coordinate())

	select {
	case <-ctx.Done():
	case out <- fix:
	}
}

// horizontalAccuracy estimates the horizontal accuracy of a TPV report in
// meters. gpsd reports the per-axis errors, the combined estimate is their
// euclidean norm.
func horizontalAccuracy(tpv *gpsd.TPVReport) float64 {
	if tpv.Epx > 0 && tpv.Epy > 0 {
		return math.Hypot(tpv.Epx, tpv.Epy)
	}
	if tpv.Mode >= gpsd.Mode3D {
		return 10
	}
	return 25
}

func waitOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
