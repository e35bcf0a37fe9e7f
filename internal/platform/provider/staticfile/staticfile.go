// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package staticfile reads position fixes from a local geolocation file. The
// file holds one "latitude,longitude" pair per line, lines starting with a
// hash are treated as comments.
package staticfile

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"
)

const (
	name       = "file"
	pollPeriod = time.Minute * 2
)

var ErrNoCoordinates = fmt.Errorf("no valid coordinates found in geolocation file")

// Provider polls a geolocation file and emits a coarse fix whenever the
// configured position changes.
type Provider struct {
	logger   *logger.Logger
	path     string
	locateFn func() (lat, lon float64, err error)
}

// New returns a file-backed Provider reading from the given path.
func New(log *logger.Logger, path string) *Provider {
	provider := &Provider{
		logger: log,
		path:   path,
	}
	provider.locateFn = provider.readFile
	return provider
}

func (p *Provider) Name() string {
	return name
}

func (p *Provider) Criteria() locupdate.Criteria {
	return locupdate.CriteriaCoarse
}

// WatchFixes streams fixes from the file until the context ends, emitting only
// when the configured position changes.
func (p *Provider) WatchFixes(ctx context.Context) <-chan locupdate.Fix {
	out := make(chan locupdate.Fix)
	go func() {
		defer close(out)
		state := platform.FixState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollPeriod):
				}
			}
			firstRun = false

			lat, lon, err := p.locateFn()
			if err != nil {
				p.logger.Debug("failed to read geolocation file", logger.Err(err))
				continue
			}
			fix := locupdate.Fix{Lat: lat, Lon: lon, AccuracyMeters: platform.AccuracyZip}

			if !state.Changed(fix.Coordinate()) {
				continue
			}
			state.Update(fix.Coordinate())

			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}()
	return out
}

// readFile parses the first valid coordinate pair from the configured file.
func (p *Provider) readFile() (lat, lon float64, err error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		coords := strings.Split(line, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err = strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			continue
		}
		lon, err = strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			continue
		}
		return lat, lon, nil
	}
	return 0, 0, ErrNoCoordinates
}
