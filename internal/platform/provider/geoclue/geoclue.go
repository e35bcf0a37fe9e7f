// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geoclue streams fine position fixes from the GeoClue2 D-Bus service.
package geoclue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"

	"github.com/godbus/dbus/v5"
)

const (
	name           = "geoclue"
	reconnectDelay = time.Second * 30

	busName           = "org.freedesktop.GeoClue2"
	managerPath       = "/org/freedesktop/GeoClue2/Manager"
	managerInterface  = "org.freedesktop.GeoClue2.Manager"
	clientInterface   = "org.freedesktop.GeoClue2.Client"
	locationInterface = "org.freedesktop.GeoClue2.Location"

	// GClueAccuracyLevelExact
	requestedAccuracyLevel = uint32(8)
)

// Provider subscribes to GeoClue2 location updates on the system bus. Every
// LocationUpdated signal is resolved into a fix.
type Provider struct {
	logger    *logger.Logger
	desktopID string
}

// New returns a GeoClue2-backed Provider identifying itself with the given
// desktop id.
func New(log *logger.Logger, desktopID string) *Provider {
	return &Provider{
		logger:    log,
		desktopID: desktopID,
	}
}

func (p *Provider) Name() string {
	return name
}

func (p *Provider) Criteria() locupdate.Criteria {
	return locupdate.CriteriaFine
}

// WatchFixes streams fixes from GeoClue2 until the context ends, reconnecting
// to the bus when the session fails.
func (p *Provider) WatchFixes(ctx context.Context) <-chan locupdate.Fix {
	out := make(chan locupdate.Fix)

	go func() {
		defer close(out)
		state := platform.FixState{}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := p.watchSession(ctx, out, &state); err != nil {
				p.logger.Debug("geoclue session ended", logger.Err(err))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return out
}

// watchSession runs one GeoClue2 client session: register a client, start it
// and forward every LocationUpdated signal until the context or the bus
// connection ends.
func (p *Provider) watchSession(ctx context.Context, out chan<- locupdate.Fix,
	state *platform.FixState,
) (err error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, context.Canceled) {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	clientPath, err := p.registerClient(conn)
	if err != nil {
		return err
	}
	client := conn.Object(busName, clientPath)

	if err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember("LocationUpdated"),
	); err != nil {
		return fmt.Errorf("failed to match LocationUpdated signal: %w", err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err = client.Call(clientInterface+".Start", 0).Err; err != nil {
		return fmt.Errorf("failed to start geoclue client: %w", err)
	}
	defer func() {
		_ = client.Call(clientInterface+".Stop", 0).Err
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case signal, ok := <-signals:
			if !ok {
				return fmt.Errorf("bus connection lost")
			}
			fix, err := p.resolveUpdate(conn, signal)
			if err != nil {
				p.logger.Debug("failed to resolve location update", logger.Err(err))
				continue
			}
			if !state.Changed(fix.Coordinate()) {
				continue
			}
			state.Update(fix.Coordinate())

			select {
			case <-ctx.Done():
				return nil
			case out <- fix:
			}
		}
	}
}

// registerClient obtains a client object from the GeoClue2 manager and
// configures its identity and requested accuracy.
func (p *Provider) registerClient(conn *dbus.Conn) (dbus.ObjectPath, error) {
	var clientPath dbus.ObjectPath
	manager := conn.Object(busName, managerPath)
	if err := manager.Call(managerInterface+".GetClient", 0).Store(&clientPath); err != nil {
		return "", fmt.Errorf("failed to get geoclue client: %w", err)
	}

	client := conn.Object(busName, clientPath)
	if err := client.SetProperty(clientInterface+".DesktopId",
		dbus.MakeVariant(p.desktopID)); err != nil {
		return "", fmt.Errorf("failed to set desktop id: %w", err)
	}
	if err := client.SetProperty(clientInterface+".RequestedAccuracyLevel",
		dbus.MakeVariant(requestedAccuracyLevel)); err != nil {
		return "", fmt.Errorf("failed to set requested accuracy level: %w", err)
	}

	return clientPath, nil
}

// resolveUpdate reads the location object referenced by a LocationUpdated
// signal into a fix.
func (p *Provider) resolveUpdate(conn *dbus.Conn, signal *dbus.Signal) (locupdate.Fix, error) {
	var zero locupdate.Fix
	if len(signal.Body) < 2 {
		return zero, fmt.Errorf("unexpected LocationUpdated signal body")
	}
	locationPath, ok := signal.Body[1].(dbus.ObjectPath)
	if !ok {
		return zero, fmt.Errorf("unexpected location path type in signal body")
	}

	location := conn.Object(busName, locationPath)
	lat, err := locationProperty(location, "Latitude")
	if err != nil {
		return zero, err
	}
	lon, err := locationProperty(location, "Longitude")
	if err != nil {
		return zero, err
	}
	alt, err := locationProperty(location, "Altitude")
	if err != nil {
		return zero, err
	}
	acc, err := locationProperty(location, "Accuracy")
	if err != nil {
		return zero, err
	}

	p.logger.Debug("received geoclue location update", slog.Float64("lat", lat),
		slog.Float64("lon", lon))
	return locupdate.Fix{
		Lat:            lat,
		Lon:            lon,
		Alt:            alt,
		AccuracyMeters: acc,
	}, nil
}

func locationProperty(location dbus.BusObject, property string) (float64, error) {
	variant, err := location.GetProperty(locationInterface + "." + property)
	if err != nil {
		return 0, fmt.Errorf("failed to get location property %s: %w", property, err)
	}
	value, ok := variant.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected type for location property %s", property)
	}
	return value, nil
}
