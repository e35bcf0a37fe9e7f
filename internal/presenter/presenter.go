// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders human readable views of the updater state. All
// labels are localized, column alignment is display-width aware so that
// non-ASCII translations line up correctly.
package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-locupdate/internal/locupdate"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak"
)

const columnGap = 2

// ProviderStatus describes one position provider and its last known fix, if
// any.
type ProviderStatus struct {
	Name     string
	Criteria locupdate.Criteria
	Fix      *locupdate.Fix
}

// Status is the renderable state of the updater.
type Status struct {
	Running   bool
	Providers []ProviderStatus
}

// Presenter renders localized status views.
type Presenter struct {
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

// New returns a Presenter rendering with the given localizer and humanizer.
func New(localizer *spreak.Localizer, humanizer *humanize.Humanizer) *Presenter {
	return &Presenter{
		localizer: localizer,
		humanizer: humanizer,
	}
}

// RenderStatus renders the updater state as an aligned provider table.
func (p *Presenter) RenderStatus(status Status) string {
	var builder strings.Builder

	state := p.localizer.Get("idle")
	if status.Running {
		state = p.localizer.Get("running")
	}
	fmt.Fprintf(&builder, "%s: %s\n", p.localizer.Get("Location updater status"), state)

	rows := [][]string{{
		p.localizer.Get("Provider"),
		p.localizer.Get("Criteria"),
		p.localizer.Get("Position"),
		p.localizer.Get("Geohash"),
		p.localizer.Get("Accuracy"),
		p.localizer.Get("Last update"),
	}}
	for _, provider := range status.Providers {
		rows = append(rows, p.providerRow(provider))
	}

	widths := columnWidths(rows)
	for _, row := range rows {
		for idx, cell := range row {
			if idx < len(row)-1 {
				cell = runewidth.FillRight(cell, widths[idx]+columnGap)
			}
			builder.WriteString(cell)
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

func (p *Presenter) providerRow(provider ProviderStatus) []string {
	criteria := p.localizer.Get(provider.Criteria.String())
	if provider.Fix == nil {
		noFix := p.localizer.Get("no fix yet")
		return []string{provider.Name, criteria, noFix, "-", "-", "-"}
	}

	fix := provider.Fix
	return []string{
		provider.Name,
		criteria,
		fmt.Sprintf("%.4f, %.4f", fix.Lat, fix.Lon),
		fix.Geohash(),
		fmt.Sprintf("%.0fm", fix.AccuracyMeters),
		p.fixAge(fix.Time),
	}
}

// fixAge renders the age of a fix in natural language.
func (p *Presenter) fixAge(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return p.humanizer.NaturalTime(at)
}

// columnWidths computes the display width of the widest cell per column.
func columnWidths(rows [][]string) []int {
	if len(rows) == 0 {
		return nil
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for idx, cell := range row {
			if width := runewidth.StringWidth(cell); width > widths[idx] {
				widths[idx] = width
			}
		}
	}
	return widths
}
