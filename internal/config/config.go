// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"
)

const configEnv = "LOCUPDATED"

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Update struct {
		// Allowed values: fine, coarse
		Criteria string `fig:"criteria" default:"fine"`
		// Minimum time between two delivered location updates
		Interval time.Duration `fig:"interval" default:"1m"`
		// Minimum distance in meters between two delivered location updates
		Distance float64 `fig:"distance" default:"100"`
	} `fig:"update"`

	Intervals struct {
		BestFixOutput time.Duration `fig:"best_fix_output" default:"30s"`
	} `fig:"intervals"`

	Platform struct {
		// LegacyMode disables criteria-based provider arbitration and subscribes
		// to the network provider only
		LegacyMode bool `fig:"legacy_mode"`

		GPSDHost string `fig:"gpsd_host" default:"localhost"`
		GPSDPort string `fig:"gpsd_port" default:"2947"`

		// File with static coordinates used by the file provider
		File string `fig:"file"`

		DisableGPSD    bool `fig:"disable_gpsd"`
		DisableGeoClue bool `fig:"disable_geoclue"`
		DisableWifi    bool `fig:"disable_wifi"`
		DisableGeoIP   bool `fig:"disable_geoip"`
		DisableFile    bool `fig:"disable_file"`
	} `fig:"platform"`
}

// NewFromFile loads the Config from the given file and applies environment overrides.
func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// New loads the Config from defaults and environment overrides only.
func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Update.Criteria != "fine" && c.Update.Criteria != "coarse" {
		return fmt.Errorf("invalid update criteria: %s", c.Update.Criteria)
	}
	if c.Update.Interval < 0 {
		return fmt.Errorf("invalid update interval: %s", c.Update.Interval)
	}
	if c.Update.Distance < 0 {
		return fmt.Errorf("invalid update distance: %f", c.Update.Distance)
	}
	if c.Intervals.BestFixOutput <= 0 {
		return fmt.Errorf("invalid best fix output interval: %s", c.Intervals.BestFixOutput)
	}
	if c.Platform.File == "" {
		home, _ := os.UserHomeDir()
		c.Platform.File = filepath.Join(home, ".config", "locupdated", "geolocation")
	}

	return nil
}
