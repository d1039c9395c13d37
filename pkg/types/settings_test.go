package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		// v1 sets the percent, v2 converts it, v3 fills display fields
		assert.Equal(t, 0.6, s.SellPriceRatio)
		assert.Equal(t, 0, s.SellPricePercent)
		assert.Equal(t, ResolutionHourly, s.Resolution)
		assert.Equal(t, "UTC", s.Timezone)
	})

	t.Run("v1 to v2: percent becomes ratio", func(t *testing.T) {
		old := Settings{SellPricePercent: 80}
		s, changed, err := MigrateSettings(old, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0.8, s.SellPriceRatio)
		assert.Equal(t, 0, s.SellPricePercent)
	})

	t.Run("v2 to v3: resolution and timezone defaults", func(t *testing.T) {
		old := Settings{SellPriceRatio: 0.7}
		s, changed, err := MigrateSettings(old, 2)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0.7, s.SellPriceRatio)
		assert.Equal(t, ResolutionHourly, s.Resolution)
		assert.Equal(t, "UTC", s.Timezone)
	})

	t.Run("v2 to v3: keeps explicit timezone", func(t *testing.T) {
		old := Settings{SellPriceRatio: 0.6, Timezone: "America/Chicago"}
		s, changed, err := MigrateSettings(old, 2)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "America/Chicago", s.Timezone)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := Settings{
			Resolution:     ResolutionQuarterHourly,
			Timezone:       "America/Chicago",
			SellPriceRatio: 0.6,
		}
		s, changed, err := MigrateSettings(current, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}

func TestPeriodsPerDay(t *testing.T) {
	assert.Equal(t, 24, Settings{Resolution: ResolutionHourly}.PeriodsPerDay())
	assert.Equal(t, 96, Settings{Resolution: ResolutionQuarterHourly}.PeriodsPerDay())
	assert.Equal(t, 24, Settings{}.PeriodsPerDay())
}
