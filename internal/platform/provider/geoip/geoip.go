// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geoip resolves coarse position fixes from the public IP address of
// the host.
package geoip

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-locupdate/internal/http"
	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"
)

const (
	name          = "geoip"
	apiEndpoint   = "https://reallyfreegeoip.org/json/"
	lookupTimeout = time.Second * 5
	lookupPeriod  = time.Minute * 30
)

// Provider periodically resolves the public IP of the host into a coarse fix.
// The reported accuracy depends on the administrative granularity of the
// lookup result.
type Provider struct {
	logger   *logger.Logger
	http     *http.Client
	locateFn func(ctx context.Context) (locupdate.Fix, error)
}

type apiResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

// New returns a GeoIP-backed Provider using the given HTTP client.
func New(log *logger.Logger, httpClient *http.Client) *Provider {
	provider := &Provider{
		logger: log,
		http:   httpClient,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *Provider) Name() string {
	return name
}

func (p *Provider) Criteria() locupdate.Criteria {
	return locupdate.CriteriaCoarse
}

// WatchFixes streams resolved fixes until the context ends, emitting only when
// the resolved position changed.
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
				case <-time.After(lookupPeriod):
				}
			}
			firstRun = false

			fix, err := p.locateFn(ctx)
			if err != nil {
				p.logger.Debug("geoip lookup failed", logger.Err(err))
				continue
			}

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

func (p *Provider) locate(ctx context.Context) (locupdate.Fix, error) {
	var zero locupdate.Fix
	ctxHTTP, cancelHTTP := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHTTP()

	result := new(apiResult)
	if _, err := p.http.Get(ctxHTTP, apiEndpoint, result, nil, nil); err != nil {
		return zero, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return locupdate.Fix{
		Lat:            result.Latitude,
		Lon:            result.Longitude,
		AccuracyMeters: estimateAccuracy(result),
	}, nil
}

// estimateAccuracy maps the administrative granularity of a lookup result to a
// rough accuracy estimate in meters.
func estimateAccuracy(result *apiResult) float64 {
	acc := platform.AccuracyUnknown
	if result.CountryCode != "" {
		acc = platform.AccuracyCountry
	}
	if result.RegionCode != "" {
		acc = platform.AccuracyRegion
	}
	if result.City != "" {
		acc = platform.AccuracyCity
	}
	if result.ZipCode != "" {
		acc = platform.AccuracyZip
	}
	return acc
}
