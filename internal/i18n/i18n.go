// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package i18n provides localized message catalogs and natural language
// formatting for the daemon output.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// New returns a localizer for the given locale. An empty locale is resolved
// from the host environment, falling back to English.
func New(loc string) (*spreak.Localizer, error) {
	tag := resolveTag(loc)

	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// NewHumanizer returns a natural language formatter for the given locale. An
// empty locale is resolved from the host environment, falling back to English.
func NewHumanizer(loc string) (*humanize.Humanizer, error) {
	tag := resolveTag(loc)

	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer collection: %w", err)
	}
	return collection.CreateHumanizer(tag), nil
}

func resolveTag(loc string) language.Tag {
	if loc == "" {
		tag, err := locale.Detect()
		if err != nil {
			return language.English // Unable to detect locale, fallback to English
		}
		return tag
	}
	return language.Make(loc)
}
