package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/fluxboard/fluxboard/pkg/types"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrDayNotFound  = errors.New("telemetry day not found")
)

// Database defines the interface for persisting telemetry days, settings,
// and users.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, siteID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error

	// Telemetry
	// UpsertTelemetryDay stores one day of raw telemetry, replacing any
	// previous document for the same date.
	UpsertTelemetryDay(ctx context.Context, siteID string, day types.TelemetryDay) error
	GetTelemetryDay(ctx context.Context, siteID, date string) (types.TelemetryDay, error)
	// ListTelemetryDays returns the dates (YYYY-MM-DD) with stored
	// telemetry in [start, end], ascending.
	ListTelemetryDays(ctx context.Context, siteID, start, end string) ([]string, error)

	// Users
	GetUser(ctx context.Context, userID string) (types.User, error)
	CreateUser(ctx context.Context, user types.User) error
	UpdateUser(ctx context.Context, user types.User) error

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, sqlite)")

	var p struct{ Database }

	fs := configuredFirestore()
	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
