package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/fluxboard/fluxboard/pkg/log"
	"github.com/fluxboard/fluxboard/pkg/storage"
	"github.com/fluxboard/fluxboard/pkg/types"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	days := lflag.Int("seed-days", 14, "number of past days to seed, ending today")
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock telemetry")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Simulation state
	const (
		BatteryCapacityKWH = 13.5
		MaxBatteryKWH      = 5.0
		HomeAvgKWH         = 1.5
		SolarPeakKWH       = 8.0
		SellRatio          = 0.6
	)
	currentSOC := 40.0 // Start at 40%

	siteID := types.SiteIDNone
	now := time.Now().UTC()

	if err := s.SetSettings(ctx, siteID, types.Settings{
		Resolution:     types.ResolutionHourly,
		Timezone:       "UTC",
		SellPriceRatio: SellRatio,
	}, types.CurrentSettingsVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed settings", "error", err)
		os.Exit(1)
	}

	// Seed a dev user once so multi-site mode works against seeded data
	if _, err := s.GetUser(ctx, "dev"); errors.Is(err, storage.ErrUserNotFound) {
		if err := s.CreateUser(ctx, types.User{
			ID:      "dev",
			Email:   "dev@example.com",
			SiteIDs: []string{siteID},
			Admin:   true,
		}); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed user", "error", err)
			os.Exit(1)
		}
	} else if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to look up seed user", "error", err)
		os.Exit(1)
	}

	for d := -(*days - 1); d <= 0; d++ {
		dayT := now.AddDate(0, 0, d)
		date := dayT.Format(types.DateFormat)
		periods := make([]types.RawPeriod, 0, 24)

		for hour := 0; hour < 24; hour++ {
			// 1. Determine Price Scenario
			basePrice := 0.08
			if hour >= 6 && hour < 9 {
				basePrice = 0.22 // Morning Peak
			} else if hour >= 10 && hour < 15 {
				basePrice = 0.05 // Mid-day Lull
			} else if hour >= 17 && hour < 21 {
				basePrice = 0.35 // Evening Peak
			} else if hour >= 21 {
				basePrice = 0.10 // Night
			}
			// Jitter
			basePrice += (rng.Float64() * 0.02) - 0.01

			// 2. Solar (bell curve)
			solarKWH := 0.0
			if hour > 6 && hour < 19 {
				dist := math.Abs(float64(hour) - 13.0)
				solarKWH = SolarPeakKWH * math.Exp(-(dist*dist)/12.0)
			}

			// 3. Home usage
			homeKWH := HomeAvgKWH + (rng.Float64() * 1.0)
			if hour >= 7 && hour < 9 {
				homeKWH += 2.0 // Breakfast
			} else if hour >= 18 && hour < 22 {
				homeKWH += 4.0 // Evening activities
			}

			// 4. Battery strategy simulation, positive action charges
			actionKWH := 0.0
			if hour < 6 {
				// Night, charge if cheap
				if basePrice < 0.10 && currentSOC < 60 {
					actionKWH = MaxBatteryKWH
				}
			} else if hour < 9 {
				// Morning peak discharge
				needed := homeKWH - solarKWH
				if needed > 0 {
					actionKWH = -math.Min(needed, MaxBatteryKWH)
				}
			} else if hour < 17 {
				// Daytime solar charging
				surplus := solarKWH - homeKWH
				if surplus > 0 && currentSOC < 95 {
					actionKWH = math.Min(surplus, MaxBatteryKWH)
				}
			} else if hour < 22 {
				// Evening peak discharge
				needed := homeKWH - solarKWH
				if needed > 0 {
					actionKWH = -math.Min(needed, MaxBatteryKWH)
				}
			}

			// Clamp SOC to 5..100 and back out the action the battery
			// actually performed so the stored period stays consistent
			socStart := currentSOC
			socEnd := socStart + (actionKWH/BatteryCapacityKWH)*100.0
			if socEnd > 100 {
				socEnd = 100
			}
			if socEnd < 5 {
				socEnd = 5
			}
			actionKWH = (socEnd - socStart) / 100.0 * BatteryCapacityKWH
			currentSOC = socEnd

			// Derive metered grid flows from the energy balance
			gridKWH := homeKWH + math.Max(actionKWH, 0) - solarKWH - math.Max(-actionKWH, 0)
			gridImported := math.Max(gridKWH, 0)
			gridExported := math.Max(-gridKWH, 0)

			source := "predicted"
			if d < 0 || hour < now.Hour() {
				source = "actual"
			}

			periods = append(periods, types.RawPeriod{
				"dataSource":      source,
				"buyPrice":        basePrice,
				"sellPrice":       basePrice * SellRatio,
				"solarProduction": solarKWH,
				"homeConsumption": homeKWH,
				"gridImported":    gridImported,
				"gridExported":    gridExported,
				"batteryAction":   actionKWH,
				"batterySocStart": socStart,
				"batterySocEnd":   socEnd,
			})
		}

		day := types.TelemetryDay{
			Date:               date,
			BatteryCapacityKWH: BatteryCapacityKWH,
			Periods:            periods,
		}
		if err := s.UpsertTelemetryDay(ctx, siteID, day); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed telemetry day", "error", err)
			os.Exit(1)
		}

		fmt.Printf("Seeded day %s: %d periods (SOC ended at %.0f%%)\n", date, len(periods), currentSOC)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock telemetry successfully")
}
