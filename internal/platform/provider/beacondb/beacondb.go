// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package beacondb resolves coarse position fixes from nearby wifi access
// points via the beacondb.net geolocation API.
package beacondb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-locupdate/internal/http"
	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"

	"github.com/mdlayher/wifi"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	lookupPeriod  = time.Minute * 5
	wifiScanTime  = time.Minute * 2
)

// Provider periodically scans wifi access points and resolves them into a
// coarse fix through the beacondb geolocation API.
type Provider struct {
	logger   *logger.Logger
	http     *http.Client
	wlan     *wifi.Client
	locateFn func(ctx context.Context) (locupdate.Fix, error)

	apLock sync.RWMutex
	aps    []wirelessNetwork
}

type apiResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type wirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// New returns a beacondb-backed Provider. It fails when no nl80211 interface
// is available on the host.
func New(log *logger.Logger, httpClient *http.Client) (*Provider, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}

	provider := &Provider{
		logger: log,
		http:   httpClient,
		wlan:   wlan,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *Provider) Name() string {
	return locupdate.NetworkProvider
}

func (p *Provider) Criteria() locupdate.Criteria {
	return locupdate.CriteriaCoarse
}

// WatchFixes streams resolved fixes until the context ends. Access points are
// scanned on their own cadence, the API is only asked when the scan data could
// have changed the result.
func (p *Provider) WatchFixes(ctx context.Context) <-chan locupdate.Fix {
	out := make(chan locupdate.Fix)
	go p.monitorAccessPoints(ctx)
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
				p.logger.Debug("wifi geolocation lookup failed", logger.Err(err))
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

// monitorAccessPoints keeps the cached access point list fresh.
func (p *Provider) monitorAccessPoints(ctx context.Context) {
	firstRun := true
	for {
		if !firstRun {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wifiScanTime):
			}
		}
		firstRun = false

		list, err := p.accessPoints()
		if err != nil {
			p.logger.Debug("wifi scan failed", logger.Err(err))
			continue
		}
		p.apLock.Lock()
		p.aps = list
		p.apLock.Unlock()
	}
}

// accessPoints scans all station interfaces for visible access points.
// Networks opting out of geolocation via the _nomap suffix are skipped.
func (p *Provider) accessPoints() ([]wirelessNetwork, error) {
	var stations []*wifi.Interface
	var list []wirelessNetwork

	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		stations = append(stations, iface)
	}
	if len(stations) == 0 {
		return nil, nil
	}

	for _, iface := range stations {
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, wirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

func (p *Provider) locate(ctx context.Context) (locupdate.Fix, error) {
	var zero locupdate.Fix
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []wirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err := json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return zero, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	ctxHTTP, cancelHTTP := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHTTP()
	result := new(apiResult)
	if _, err := p.http.Post(ctxHTTP, apiEndpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}); err != nil {
		return zero, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return locupdate.Fix{
		Lat:            result.Location.Latitude,
		Lon:            result.Location.Longitude,
		AccuracyMeters: result.Accuracy,
	}, nil
}
