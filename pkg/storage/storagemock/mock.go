package storagemock

import (
	"context"
	"time"

	"github.com/klausv/battopt/pkg/storage"
	"github.com/klausv/battopt/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) SaveState(ctx context.Context, runID string, state types.BatteryState) error {
	args := m.Called(ctx, runID, state)
	return args.Error(0)
}

func (m *MockDatabase) GetState(ctx context.Context, runID string) (types.BatteryState, error) {
	args := m.Called(ctx, runID)
	if len(args) > 0 {
		return args.Get(0).(types.BatteryState), args.Error(1)
	}
	return types.BatteryState{}, nil
}

func (m *MockDatabase) InsertStep(ctx context.Context, runID string, rec types.StepRecord) error {
	args := m.Called(ctx, runID, rec)
	return args.Error(0)
}

func (m *MockDatabase) GetSteps(ctx context.Context, runID string, start, end time.Time) ([]types.StepRecord, error) {
	args := m.Called(ctx, runID, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.StepRecord), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestStepTime(ctx context.Context, runID string) (time.Time, error) {
	args := m.Called(ctx, runID)
	if len(args) > 0 {
		return args.Get(0).(time.Time), args.Error(1)
	}
	return time.Time{}, nil
}

func (m *MockDatabase) ListRuns(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
