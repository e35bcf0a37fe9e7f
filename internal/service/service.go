// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires the position gateway, the location updater and the
// output rendering into the locupdated daemon.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/spreak"

	"github.com/wneessen/go-locupdate/internal/config"
	"github.com/wneessen/go-locupdate/internal/i18n"
	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"
	"github.com/wneessen/go-locupdate/internal/presenter"
)

// DesktopID identifies the daemon towards host services that require a client
// identity, e.g. GeoClue2.
const DesktopID = "locupdated"

// outputFix is the JSON line written to stdout for every delivered update and
// every scheduled best-fix snapshot.
type outputFix struct {
	Provider       string    `json:"provider"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Altitude       float64   `json:"altitude,omitempty"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Geohash        string    `json:"geohash"`
	Time           time.Time `json:"time"`
	Sunrise        time.Time `json:"sunrise"`
	Sunset         time.Time `json:"sunset"`
	Daytime        bool      `json:"daytime"`
	BestFix        bool      `json:"best_fix"`
}

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	localizer *spreak.Localizer
	presenter *presenter.Presenter
	scheduler gocron.Scheduler

	gateway   *platform.Gateway
	providers []platform.Provider
	updater   *locupdate.Updater

	signals signalSource

	printLock sync.Mutex
	output    io.Writer
	status    io.Writer
}

func New(conf *config.Config, log *logger.Logger, localizer *spreak.Localizer) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	humanizer, err := i18n.NewHumanizer(conf.Locale)
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}

	criteria, err := locupdate.ParseCriteria(conf.Update.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to parse update criteria: %w", err)
	}

	providers := selectProviders(conf, log)
	gateway := platform.New(log, !conf.Platform.LegacyMode, providers...)
	updater := locupdate.New(gateway, log).
		SetInterval(conf.Update.Interval).
		SetDistance(conf.Update.Distance).
		SetCriteria(criteria)

	service := &Service{
		config:    conf,
		logger:    log,
		localizer: localizer,
		presenter: presenter.New(localizer, humanizer),
		scheduler: scheduler,
		gateway:   gateway,
		providers: providers,
		updater:   updater,
		signals:   stdLibSignalSource{},
		output:    os.Stdout,
		status:    os.Stderr,
	}
	updater.SetListener(service.printUpdate)
	return service, nil
}

// Run starts the provider tracking, the continuous updates and the scheduled
// best-fix output, then blocks until the context ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.BestFixOutput, s.printBestFix,
		"best_fix_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	go s.gateway.Run(ctx)
	if _, err := s.updater.Start(); err != nil {
		_ = s.scheduler.Shutdown()
		return fmt.Errorf("failed to start location updates: %w", err)
	}
	go s.monitorSleepResume(ctx)

	<-ctx.Done()
	if err := s.updater.Stop(); err != nil && !errors.Is(err, locupdate.ErrNotRunning) {
		s.logger.Error("failed to stop location updates", logger.Err(err))
	}
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// printUpdate is the update listener of the updater, it writes every delivered
// fix to stdout.
func (s *Service) printUpdate(provider string, fix locupdate.Fix) {
	s.logger.Debug("received location update", slog.String("provider", provider),
		slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon))
	s.writeFix(fix, false)
}

// printBestFix writes the current best known fix to stdout, if any provider
// has reported one yet.
func (s *Service) printBestFix(context.Context) {
	fix, ok := s.updater.LastBestKnownFix()
	if !ok {
		s.logger.Debug("no provider has reported a fix yet, skipping best fix output")
		return
	}
	s.writeFix(fix, true)
}

func (s *Service) writeFix(fix locupdate.Fix, bestFix bool) {
	at := fix.Time
	if at.IsZero() {
		at = time.Now()
	}
	sunriseTime, sunsetTime := sunrise.SunriseSunset(fix.Lat, fix.Lon, at.Year(), at.Month(), at.Day())
	daytime := at.After(sunriseTime) && at.Before(sunsetTime)

	out := outputFix{
		Provider:       fix.Provider,
		Latitude:       fix.Lat,
		Longitude:      fix.Lon,
		Altitude:       fix.Alt,
		AccuracyMeters: fix.AccuracyMeters,
		Geohash:        fix.Geohash(),
		Time:           at,
		Sunrise:        sunriseTime,
		Sunset:         sunsetTime,
		Daytime:        daytime,
		BestFix:        bestFix,
	}

	s.printLock.Lock()
	defer s.printLock.Unlock()
	if err := json.NewEncoder(s.output).Encode(out); err != nil {
		s.logger.Error("failed to encode fix output", logger.Err(err))
	}
}

// printStatus renders the provider status table to stderr, keeping stdout
// reserved for the JSON fix stream.
func (s *Service) printStatus() {
	status := presenter.Status{Running: s.updater.Running()}
	for _, provider := range s.providers {
		row := presenter.ProviderStatus{
			Name:     provider.Name(),
			Criteria: provider.Criteria(),
		}
		if fix, ok := s.gateway.LastKnownFix(provider.Name()); ok {
			row.Fix = &fix
		}
		status.Providers = append(status.Providers, row)
	}

	s.printLock.Lock()
	defer s.printLock.Unlock()
	if _, err := io.WriteString(s.status, s.presenter.RenderStatus(status)); err != nil {
		s.logger.Error("failed to write status output", logger.Err(err))
	}
}
