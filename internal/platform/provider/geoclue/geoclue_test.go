// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/wneessen/go-locupdate/internal/locupdate"
	"github.com/wneessen/go-locupdate/internal/logger"

	"github.com/godbus/dbus/v5"
)

func TestNew(t *testing.T) {
	provider := New(logger.New(slog.LevelError), "locupdated")
	if provider == nil {
		t.Fatal("expected provider to be non-nil")
	}
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
	if provider.Criteria() != locupdate.CriteriaFine {
		t.Errorf("expected provider criteria to be fine, got %s", provider.Criteria())
	}
}

func TestProvider_resolveUpdate(t *testing.T) {
	t.Run("signal with a short body fails", func(t *testing.T) {
		provider := New(logger.New(slog.LevelError), "locupdated")
		signal := &dbus.Signal{Body: []interface{}{dbus.ObjectPath("/old")}}
		if _, err := provider.resolveUpdate(nil, signal); err == nil {
			t.Error("expected resolve to fail, but didn't")
		}
	})
	t.Run("signal with a non-path body fails", func(t *testing.T) {
		provider := New(logger.New(slog.LevelError), "locupdated")
		signal := &dbus.Signal{Body: []interface{}{dbus.ObjectPath("/old"), "not-a-path"}}
		if _, err := provider.resolveUpdate(nil, signal); err == nil {
			t.Error("expected resolve to fail, but didn't")
		}
	})
}
