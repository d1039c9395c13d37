package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fluxboard/fluxboard/pkg/engine"
	"github.com/fluxboard/fluxboard/pkg/log"
	"github.com/fluxboard/fluxboard/pkg/metrics"
	"github.com/fluxboard/fluxboard/pkg/report"
	"github.com/fluxboard/fluxboard/pkg/storage"
	"github.com/fluxboard/fluxboard/pkg/types"
)

var errInvalidDay = errors.New("day must be formatted as YYYY-MM-DD")

// siteLocation resolves the site's configured timezone, falling back to UTC
// when the stored value doesn't load.
func siteLocation(ctx context.Context, settings types.Settings) *time.Location {
	if settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid site timezone, using UTC", slog.String("timezone", settings.Timezone), slog.Any("error", err))
		return time.UTC
	}
	return loc
}

// loadDailyView fetches the site's telemetry for the given day and runs the
// engine over it. An empty day means today in the site's timezone. It returns
// the view, the resolved day, and the day's local midnight.
func (s *Server) loadDailyView(ctx context.Context, siteID, day string) (*types.DailyView, string, time.Time, error) {
	settings, err := s.getSettingsWithMigration(ctx, siteID)
	if err != nil {
		return nil, day, time.Time{}, fmt.Errorf("failed to get settings: %w", err)
	}
	loc := siteLocation(ctx, settings)

	if day == "" {
		day = time.Now().In(loc).Format(types.DateFormat)
	} else if _, err := time.Parse(types.DateFormat, day); err != nil {
		return nil, day, time.Time{}, errInvalidDay
	}

	telemetry, err := s.storage.GetTelemetryDay(ctx, siteID, day)
	if err != nil {
		return nil, day, time.Time{}, fmt.Errorf("failed to get telemetry day: %w", err)
	}
	dayStart, err := telemetry.StartIn(loc)
	if err != nil {
		return nil, day, time.Time{}, fmt.Errorf("failed to resolve day start: %w", err)
	}

	eng := s.engine.WithSellPriceRatio(settings.SellPriceRatio)
	start := time.Now()
	view, err := eng.ComputeDailyView(ctx, dayStart, telemetry.Periods, telemetry.BatteryCapacityKWH, time.Now().In(loc))
	if err != nil {
		metrics.ObserveDailyView(metrics.ResultError, time.Since(start))
		return nil, day, dayStart, fmt.Errorf("failed to compute daily view: %w", err)
	}
	metrics.ObserveDailyView(metrics.ResultSuccess, time.Since(start))

	stages := map[string]int{}
	for _, sp := range view.SkippedPeriods {
		stages[sp.Stage]++
	}
	for stage, n := range stages {
		metrics.AddSkippedPeriods(stage, n)
	}

	return view, day, dayStart, nil
}

// writeDailyViewError maps loadDailyView failures onto HTTP statuses: bad day
// parameters are the caller's fault, a missing day is 404, telemetry the
// engine rejects is 422, and everything else is a server error.
func writeDailyViewError(ctx context.Context, w http.ResponseWriter, err error) {
	var engineErr *engine.Error
	switch {
	case errors.Is(err, errInvalidDay):
		writeJSONError(w, errInvalidDay.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrDayNotFound):
		writeJSONError(w, "no telemetry for day", http.StatusNotFound)
	case errors.As(err, &engineErr):
		log.Ctx(ctx).WarnContext(ctx, "daily view computation failed", slog.Any("error", err))
		writeJSONError(w, engineErr.Msg, http.StatusUnprocessableEntity)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "failed to build daily view", slog.Any("error", err))
		writeJSONError(w, "failed to build daily view", http.StatusInternalServerError)
	}
}

// setDayCacheHeader sets Cache-Control for responses derived from one
// telemetry day. Days that ended before today (midnight today) are cached
// for 24 hours, everything else for 1 minute since re-ingests are expected.
func setDayCacheHeader(w http.ResponseWriter, dayStart time.Time) {
	today := time.Now().Truncate(24 * time.Hour)
	if dayStart.Add(24 * time.Hour).Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	view, _, dayStart, err := s.loadDailyView(ctx, siteID, r.URL.Query().Get("day"))
	if err != nil {
		writeDailyViewError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	setDayCacheHeader(w, dayStart)
	if err := json.NewEncoder(w).Encode(view); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleIngestDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	var day types.TelemetryDay
	if err := json.NewDecoder(r.Body).Decode(&day); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode telemetry day", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := time.Parse(types.DateFormat, day.Date); err != nil {
		writeJSONError(w, "date must be formatted as YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if len(day.Periods) == 0 {
		writeJSONError(w, "day contains no periods", http.StatusBadRequest)
		return
	}
	if day.BatteryCapacityKWH <= 0 {
		writeJSONError(w, "battery capacity must be a positive number of kWh", http.StatusBadRequest)
		return
	}

	// periods are stored as-is; validation happens at read time so a
	// partially bad upload still surfaces in skippedPeriods
	start := time.Now()
	err := s.storage.UpsertTelemetryDay(ctx, siteID, day)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		log.Ctx(ctx).ErrorContext(ctx, "failed to store telemetry day", slog.String("date", day.Date), slog.Any("error", err))
		writeJSONError(w, "failed to store telemetry day", http.StatusInternalServerError)
		return
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))

	log.Ctx(ctx).InfoContext(ctx, "telemetry day stored", slog.String("date", day.Date), slog.Int("periods", len(day.Periods)))

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"date":    day.Date,
		"periods": len(day.Periods),
	}); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleListDays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)
	start, end, err := parseDayRange(r)
	if err != nil {
		writeJSONError(w, "invalid day range: "+err.Error(), http.StatusBadRequest)
		return
	}

	days, err := s.storage.ListTelemetryDays(ctx, siteID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list telemetry days", slog.Any("error", err))
		writeJSONError(w, "failed to list telemetry days", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, max-age=60")
	if err := json.NewEncoder(w).Encode(days); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleDayReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatPDF
	}
	if report.ContentType(format) == "" {
		writeJSONError(w, fmt.Sprintf("unknown report format %q", format), http.StatusBadRequest)
		return
	}

	view, day, dayStart, err := s.loadDailyView(ctx, siteID, r.URL.Query().Get("day"))
	if err != nil {
		writeDailyViewError(ctx, w, err)
		return
	}

	start := time.Now()
	data, err := report.BuildDaily(view, day, format)
	if err != nil {
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
		log.Ctx(ctx).ErrorContext(ctx, "failed to build report", slog.String("format", format), slog.Any("error", err))
		writeJSONError(w, "failed to build report", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("fluxboard-%s.%s", day, format)))
	setDayCacheHeader(w, dayStart)
	if _, err := w.Write(data); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// parseDayRange reads the start/end day query parameters for listing.
// If either is missing the range defaults to the last 30 days.
func parseDayRange(r *http.Request) (string, string, error) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")

	if start == "" || end == "" {
		now := time.Now()
		return now.AddDate(0, 0, -30).Format(types.DateFormat), now.Format(types.DateFormat), nil
	}

	startT, err := time.Parse(types.DateFormat, start)
	if err != nil {
		return "", "", fmt.Errorf("invalid start day: %w", err)
	}
	endT, err := time.Parse(types.DateFormat, end)
	if err != nil {
		return "", "", fmt.Errorf("invalid end day: %w", err)
	}

	if endT.Before(startT) {
		return "", "", fmt.Errorf("start day must be before end day")
	}
	if endT.Sub(startT) > 366*24*time.Hour {
		return "", "", fmt.Errorf("day range cannot exceed one year")
	}

	return start, end, nil
}
