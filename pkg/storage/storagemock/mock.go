package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fluxboard/fluxboard/pkg/storage"
	"github.com/fluxboard/fluxboard/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	args := m.Called(ctx, siteID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	args := m.Called(ctx, siteID, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) UpsertTelemetryDay(ctx context.Context, siteID string, day types.TelemetryDay) error {
	args := m.Called(ctx, siteID, day)
	return args.Error(0)
}

func (m *MockDatabase) GetTelemetryDay(ctx context.Context, siteID, date string) (types.TelemetryDay, error) {
	args := m.Called(ctx, siteID, date)
	if len(args) > 0 {
		return args.Get(0).(types.TelemetryDay), args.Error(1)
	}
	return types.TelemetryDay{}, nil
}

func (m *MockDatabase) ListTelemetryDays(ctx context.Context, siteID, start, end string) ([]string, error) {
	args := m.Called(ctx, siteID, start, end)
	if len(args) > 0 {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetUser(ctx context.Context, userID string) (types.User, error) {
	args := m.Called(ctx, userID)
	if len(args) > 0 {
		return args.Get(0).(types.User), args.Error(1)
	}
	return types.User{}, nil
}

func (m *MockDatabase) CreateUser(ctx context.Context, user types.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockDatabase) UpdateUser(ctx context.Context, user types.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
