// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"github.com/wneessen/go-locupdate/internal/config"
	"github.com/wneessen/go-locupdate/internal/http"
	"github.com/wneessen/go-locupdate/internal/logger"
	"github.com/wneessen/go-locupdate/internal/platform"
	"github.com/wneessen/go-locupdate/internal/platform/provider/beacondb"
	"github.com/wneessen/go-locupdate/internal/platform/provider/geoclue"
	"github.com/wneessen/go-locupdate/internal/platform/provider/geoip"
	"github.com/wneessen/go-locupdate/internal/platform/provider/gpsd"
	"github.com/wneessen/go-locupdate/internal/platform/provider/staticfile"
)

// selectProviders assembles the position providers enabled in the config. A
// provider failing its setup is logged and skipped, the daemon runs with the
// remaining ones.
func selectProviders(conf *config.Config, log *logger.Logger) []platform.Provider {
	httpClient := http.New(log)
	var providers []platform.Provider

	if !conf.Platform.DisableGPSD {
		providers = append(providers, gpsd.New(log, conf.Platform.GPSDHost, conf.Platform.GPSDPort))
	}

	if !conf.Platform.DisableGeoClue {
		providers = append(providers, geoclue.New(log, DesktopID))
	}

	if !conf.Platform.DisableWifi {
		wifiProvider, err := beacondb.New(log, httpClient)
		if err != nil {
			log.Error("failed to create wifi provider", logger.Err(err))
		} else {
			providers = append(providers, wifiProvider)
		}
	}

	if !conf.Platform.DisableGeoIP {
		providers = append(providers, geoip.New(log, httpClient))
	}

	if !conf.Platform.DisableFile {
		providers = append(providers, staticfile.New(log, conf.Platform.File))
	}

	return providers
}
