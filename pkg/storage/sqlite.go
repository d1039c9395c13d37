package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"

	"github.com/fluxboard/fluxboard/pkg/metrics"
	"github.com/fluxboard/fluxboard/pkg/types"
)

// SQLiteProvider implements the Database interface on a local SQLite file.
// Meant for single-site deployments that don't want a cloud dependency; the
// schema mirrors the Firestore layout with one JSON blob per record.
type SQLiteProvider struct {
	db   *sql.DB
	path string
}

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "fluxboard.db", "Path to the SQLite database file")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return fmt.Errorf("sqlite path cannot be empty")
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS telemetry_days (
	site_id TEXT NOT NULL,
	date TEXT NOT NULL,
	json TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (site_id, date)
);

CREATE TABLE IF NOT EXISTS settings (
	site_id TEXT NOT NULL PRIMARY KEY,
	json TEXT NOT NULL,
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT NOT NULL PRIMARY KEY,
	json TEXT NOT NULL
);
`

// Init opens the database file and creates the schema.
// This must be called before using the provider methods.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database %s: %w", s.path, err)
	}
	// SQLite serializes writers; extra connections would only trade
	// lock-wait for SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	s.db = db
	metrics.RegisterDBStats(db)
	return nil
}

// Close closes the database connection.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func checkSiteID(siteID string) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	return nil
}

// GetSettings retrieves the dynamic configuration for a site.
func (s *SQLiteProvider) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	if err := checkSiteID(siteID); err != nil {
		return types.Settings{}, 0, err
	}
	var jsonStr string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT json, version FROM settings WHERE site_id = ?`, siteID).
		Scan(&jsonStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		// Return default settings if not found
		return types.Settings{}, 0, nil
	}
	if err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}

	var set types.Settings
	if err := json.Unmarshal([]byte(jsonStr), &set); err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return set, version, nil
}

// SetSettings saves the dynamic configuration for a site.
func (s *SQLiteProvider) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (site_id, json, version) VALUES (?, ?, ?)`,
		siteID, string(jsonBytes), version)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// UpsertTelemetryDay adds or replaces one day of telemetry.
func (s *SQLiteProvider) UpsertTelemetryDay(ctx context.Context, siteID string, day types.TelemetryDay) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	if _, err := time.Parse(types.DateFormat, day.Date); err != nil {
		return fmt.Errorf("invalid telemetry day date %q: %w", day.Date, err)
	}
	if day.UpdatedAt.IsZero() {
		day.UpdatedAt = time.Now().UTC()
	}
	jsonBytes, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry day: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO telemetry_days (site_id, date, json, updated_at) VALUES (?, ?, ?, ?)`,
		siteID, day.Date, string(jsonBytes), day.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert telemetry day: %w", err)
	}
	return nil
}

// GetTelemetryDay retrieves one day of telemetry by its YYYY-MM-DD date.
func (s *SQLiteProvider) GetTelemetryDay(ctx context.Context, siteID, date string) (types.TelemetryDay, error) {
	if err := checkSiteID(siteID); err != nil {
		return types.TelemetryDay{}, err
	}
	var jsonStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT json FROM telemetry_days WHERE site_id = ? AND date = ?`, siteID, date).
		Scan(&jsonStr)
	if errors.Is(err, sql.ErrNoRows) {
		return types.TelemetryDay{}, fmt.Errorf("%w: %s", ErrDayNotFound, date)
	}
	if err != nil {
		return types.TelemetryDay{}, fmt.Errorf("failed to fetch telemetry day %s: %w", date, err)
	}

	var d types.TelemetryDay
	if err := json.Unmarshal([]byte(jsonStr), &d); err != nil {
		return types.TelemetryDay{}, fmt.Errorf("failed to unmarshal telemetry day %s: %w", date, err)
	}
	return d, nil
}

// ListTelemetryDays retrieves the dates with stored telemetry in [start, end].
func (s *SQLiteProvider) ListTelemetryDays(ctx context.Context, siteID, start, end string) ([]string, error) {
	if err := checkSiteID(siteID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date FROM telemetry_days WHERE site_id = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		siteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list telemetry days: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry day row: %w", err)
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telemetry days: %w", err)
	}
	return dates, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteProvider) GetUser(ctx context.Context, userID string) (types.User, error) {
	var jsonStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT json FROM users WHERE id = ?`, userID).
		Scan(&jsonStr)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return types.User{}, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	var user types.User
	if err := json.Unmarshal([]byte(jsonStr), &user); err != nil {
		return types.User{}, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}
	return user, nil
}

// CreateUser creates a new user. Fails if the user already exists.
func (s *SQLiteProvider) CreateUser(ctx context.Context, user types.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user %s: %w", user.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, json) VALUES (?, ?)`, user.ID, string(userJSON))
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.ID, err)
	}
	return nil
}

// UpdateUser creates or replaces a user.
func (s *SQLiteProvider) UpdateUser(ctx context.Context, user types.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user %s: %w", user.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, json) VALUES (?, ?)`, user.ID, string(userJSON))
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	return nil
}
