// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/go-locupdate/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 // seconds
	sleepSignalBuf   = 8
	busReconnectWait = 5 * time.Second
	reconnectWait    = 2 * time.Second
	subscribeRetry   = 10 * time.Second
	wakeupGrace      = 10 * time.Second
)

// monitorSleepResume watches the login1 PrepareForSleep signal on the system
// bus. After a resume the cached fixes may be stale, so all scheduled jobs are
// run immediately to refresh the output.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64

	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return // the context was cancelled, exit
		}

		if !s.setupSleepMonitoring(ctx, conn) {
			continue
		}

		sigCh := make(chan *dbus.Signal, sleepSignalBuf)
		conn.Signal(sigCh)
		s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))

		s.handleSleepSignals(ctx, sigCh, &lastResumeUnix)

		// Clean up before reconnect
		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(reconnectWait)
		}
	}
}

// connectToSystemBus establishes a connection to the system D-Bus, retrying
// until the context ends.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			select {
			case <-time.After(busReconnectWait):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		// Ensure cleanup on context cancellation
		go func() {
			<-ctx.Done()
			if err := conn.Close(); err != nil {
				s.logger.Error("failed to close system bus connection", logger.Err(err))
			}
		}()

		return conn
	}
}

// setupSleepMonitoring subscribes to the PrepareForSleep signal and retries on
// failure.
func (s *Service) setupSleepMonitoring(ctx context.Context, conn *dbus.Conn) bool {
	if err := conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusWatchMember),
	); err != nil {
		s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember), logger.Err(err))
		if err = conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		select {
		case <-time.After(subscribeRetry):
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (s *Service) handleSleepSignals(ctx context.Context, sigCh chan *dbus.Signal, lastResumeUnix *int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				// connection likely closed; try to reconnect
				return
			}
			s.processSleepSignal(sgn, lastResumeUnix)
		}
	}
}

// processSleepSignal filters for the resume edge of a PrepareForSleep signal.
func (s *Service) processSleepSignal(sgn *dbus.Signal, lastResumeUnix *int64) {
	if len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok || sleeping {
		return
	}
	s.handleResumeEvent(lastResumeUnix)
}

// handleResumeEvent refreshes the fix output after a system wake-up. Multiple
// consecutive resume events are debounced, and the network gets a grace period
// to come back up before the providers are queried.
func (s *Service) handleResumeEvent(lastResumeUnix *int64) {
	now := time.Now().Unix()

	if now-atomic.LoadInt64(lastResumeUnix) < debounceWindow {
		return
	}
	atomic.StoreInt64(lastResumeUnix, now)

	time.Sleep(wakeupGrace)

	s.logger.Debug("resumed from sleep, refreshing fix output")
	for _, job := range s.scheduler.Jobs() {
		if err := job.RunNow(); err != nil {
			s.logger.Error("failed to run scheduled job", logger.Err(err))
		}
	}
}
