// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/wneessen/go-locupdate/internal/config"
	"github.com/wneessen/go-locupdate/internal/i18n"
	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf := new(config.Config)
	conf.Update.Criteria = "coarse"
	conf.Update.Interval = time.Minute
	conf.Update.Distance = 100
	conf.Intervals.BestFixOutput = time.Second * 30
	conf.Platform.DisableGPSD = true
	conf.Platform.DisableGeoClue = true
	conf.Platform.DisableWifi = true
	conf.Platform.DisableGeoIP = true
	conf.Platform.File = writeCoordinateFile(t, "40.7185, -74.0025")
	if err := conf.Validate(); err != nil {
		t.Fatalf("failed to validate test config: %s", err)
	}
	return conf
}

func testService(t *testing.T) *Service {
	t.Helper()
	localizer, err := i18n.New("en")
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	serv, err := New(testConfig(t), logger.New(slog.LevelError), localizer)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	return serv
}

func writeCoordinateFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geolocation")
	if err := os.WriteFile(path, []byte(content+"\n"), 0o600); err != nil {
		t.Fatalf("failed to write coordinate file: %s", err)
	}
	return path
}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv := testService(t)
		if serv == nil {
			t.Fatal("expected service to be non-nil")
		}
		if len(serv.providers) != 1 {
			t.Errorf("expected one enabled provider, got %d", len(serv.providers))
		}
	})
	t.Run("new service with invalid criteria fails", func(t *testing.T) {
		localizer, err := i18n.New("en")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		conf := testConfig(t)
		conf.Update.Criteria = "finest"
		if _, err = New(conf, logger.New(slog.LevelError), localizer); err == nil {
			t.Error("expected service creation to fail, but didn't")
		}
	})
}

func TestService_writeFix(t *testing.T) {
	t.Run("fix is written as JSON line", func(t *testing.T) {
		serv := testService(t)
		buffer := bytes.NewBuffer(nil)
		serv.output = buffer

		// noon UTC at the null island is always daytime
		at := time.Date(2025, time.June, 21, 12, 0, 0, 0, time.UTC)
		serv.writeFix(locupdate.Fix{Provider: "file", Lat: 0, Lon: 0, AccuracyMeters: 3000, Time: at}, false)

		var out outputFix
		if err := json.Unmarshal(buffer.Bytes(), &out); err != nil {
			t.Fatalf("failed to unmarshal fix output: %s", err)
		}
		if out.Provider != "file" {
			t.Errorf("expected provider to be file, got %s", out.Provider)
		}
		if out.Geohash == "" {
			t.Error("expected geohash to be set")
		}
		if !out.Daytime {
			t.Error("expected fix to be marked as daytime")
		}
		if out.BestFix {
			t.Error("expected fix not to be marked as best fix")
		}
	})
	t.Run("best fix is flagged", func(t *testing.T) {
		serv := testService(t)
		buffer := bytes.NewBuffer(nil)
		serv.output = buffer

		serv.writeFix(locupdate.Fix{Provider: "file", Lat: 51, Lon: 7, Time: time.Now()}, true)

		var out outputFix
		if err := json.Unmarshal(buffer.Bytes(), &out); err != nil {
			t.Fatalf("failed to unmarshal fix output: %s", err)
		}
		if !out.BestFix {
			t.Error("expected fix to be marked as best fix")
		}
	})
	t.Run("fix without timestamp is stamped", func(t *testing.T) {
		serv := testService(t)
		buffer := bytes.NewBuffer(nil)
		serv.output = buffer

		serv.writeFix(locupdate.Fix{Provider: "file", Lat: 51, Lon: 7}, false)

		var out outputFix
		if err := json.Unmarshal(buffer.Bytes(), &out); err != nil {
			t.Fatalf("failed to unmarshal fix output: %s", err)
		}
		if out.Time.IsZero() {
			t.Error("expected fix time to be stamped")
		}
	})
}

func TestService_printBestFix(t *testing.T) {
	t.Run("no output without a known fix", func(t *testing.T) {
		serv := testService(t)
		buffer := bytes.NewBuffer(nil)
		serv.output = buffer

		serv.printBestFix(t.Context())
		if buffer.Len() != 0 {
			t.Errorf("expected no output, got %q", buffer.String())
		}
	})
}

func TestService_printStatus(t *testing.T) {
	serv := testService(t)
	buffer := bytes.NewBuffer(nil)
	serv.status = buffer

	serv.printStatus()
	out := buffer.String()
	if !strings.Contains(out, "Location updater status: idle") {
		t.Errorf("expected status output to contain the idle state, got %q", out)
	}
	if !strings.Contains(out, "file") {
		t.Errorf("expected status output to contain the file provider, got %q", out)
	}
	if !strings.Contains(out, "no fix yet") {
		t.Errorf("expected status output to mark the pending provider, got %q", out)
	}
}

type fakeSignalSource struct {
	channel chan<- os.Signal
	stopped bool
}

func (f *fakeSignalSource) Notify(c chan<- os.Signal, _ ...os.Signal) {
	f.channel = c
}

func (f *fakeSignalSource) Stop(chan<- os.Signal) {
	f.stopped = true
}

func TestService_HandleStatusSignal(t *testing.T) {
	serv := testService(t)
	buffer := bytes.NewBuffer(nil)
	serv.status = buffer
	source := &fakeSignalSource{}
	serv.signals = source

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		serv.HandleStatusSignal(ctx, syscall.SIGUSR1)
	}()

	// wait for the handler to register its channel
	for source.channel == nil {
		time.Sleep(time.Millisecond)
	}
	source.channel <- syscall.SIGUSR1

	deadline := time.After(time.Second * 5)
	for buffer.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected status output after signal")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-done
	if !source.stopped {
		t.Error("expected signal source to be stopped")
	}
	if !strings.Contains(buffer.String(), "Location updater status") {
		t.Errorf("expected status output, got %q", buffer.String())
	}
}

func TestService_Run(t *testing.T) {
	t.Run("run starts and stops cleanly", func(t *testing.T) {
		serv := testService(t)
		buffer := bytes.NewBuffer(nil)
		serv.output = buffer

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() {
			done <- serv.Run(ctx)
		}()

		// wait for the updater to come up before shutting down
		deadline := time.After(time.Second * 5)
		for !serv.updater.Running() {
			select {
			case <-deadline:
				t.Fatal("updater did not start in time")
			default:
				time.Sleep(time.Millisecond)
			}
		}

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected run to finish without error, got %s", err)
			}
		case <-time.After(time.Second * 5):
			t.Fatal("run did not finish in time")
		}
	})
	t.Run("run fails without matching providers", func(t *testing.T) {
		localizer, err := i18n.New("en")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		conf := testConfig(t)
		conf.Update.Criteria = "fine"
		serv, err := New(conf, logger.New(slog.LevelError), localizer)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		if err = serv.Run(ctx); err == nil {
			t.Error("expected run to fail, but didn't")
		}
	})
}
