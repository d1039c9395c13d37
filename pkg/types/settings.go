package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// Dashboard display resolutions. The resolution only changes how many
// periods a telemetry day carries (24 or 96), never the computation.
const (
	ResolutionHourly        = "hourly"
	ResolutionQuarterHourly = "quarterHourly"
)

// Settings represents per-site configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Resolution the dashboard displays and the telemetry source reports
	// in: ResolutionHourly or ResolutionQuarterHourly.
	Resolution string `json:"resolution"`

	// Timezone is the IANA zone the site's telemetry days are anchored
	// in. Determines which period contains "now".
	Timezone string `json:"timezone"`

	// SellPriceRatio is the fraction of buyPrice assumed when a period is
	// missing sellPrice. Source systems disagreed on the value, so it is
	// per-site configuration rather than a constant.
	SellPriceRatio float64 `json:"sellPriceRatio"`

	// SellPricePercent is the pre-v2 integer-percent form of
	// SellPriceRatio. Kept only so old documents migrate cleanly.
	SellPricePercent int `json:"sellPricePercent,omitempty"`
}

// PeriodsPerDay returns how many periods one telemetry day carries at
// the configured resolution.
func (s Settings) PeriodsPerDay() int {
	if s.Resolution == ResolutionQuarterHourly {
		return 96
	}
	return 24
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial, sell ratio stored as integer percent
			if s.SellPricePercent == 0 {
				s.SellPricePercent = 60
				migrated = true
			}
		case 2:
			// version 2: sell ratio becomes a float ratio
			if s.SellPriceRatio == 0 && s.SellPricePercent > 0 {
				s.SellPriceRatio = float64(s.SellPricePercent) / 100
				s.SellPricePercent = 0
				migrated = true
			}
		case 3:
			// version 3: add display resolution and timezone
			if s.Resolution == "" {
				s.Resolution = ResolutionHourly
				migrated = true
			}
			if s.Timezone == "" {
				s.Timezone = "UTC"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
