package iostore

import (
	"time"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/stretchr/testify/mock"
)

// MockHistoryManager is a mock implementation of HistoryManager for testing.
type MockHistoryManager struct {
	mock.Mock
}

var _ contract.HistoryManager = &MockHistoryManager{} // Compile-time check

// GetHistoryStore implements the HistoryManager interface.
func (m *MockHistoryManager) GetHistoryStore() contract.HistoryStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.HistoryStore)
	return store
}

// MockHistoryStore is a mock implementation of HistoryStore for testing.
type MockHistoryStore struct {
	mock.Mock
}

var _ contract.HistoryStore = &MockHistoryStore{} // Compile-time check

// BeginRun implements the HistoryStore interface.
func (m *MockHistoryStore) BeginRun(startTime time.Time, runUUID string, configParams map[string]any) (int64, error) {
	args := m.Called(startTime, runUUID, configParams)
	return args.Get(0).(int64), args.Error(1)
}

// EndRun implements the HistoryStore interface.
func (m *MockHistoryStore) EndRun(runID int64, endTime time.Time, summary schema.BatchSummary) error {
	args := m.Called(runID, endTime, summary)
	return args.Error(0)
}

// RecordReport implements the HistoryStore interface.
func (m *MockHistoryStore) RecordReport(runID int64, evaluatedAt time.Time, report schema.RiskReport) error {
	args := m.Called(runID, evaluatedAt, report)
	return args.Error(0)
}

// GetStatus implements the HistoryStore interface.
func (m *MockHistoryStore) GetStatus() (schema.HistoryStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.HistoryStatus), args.Error(1)
}

// GetAllRuns implements the HistoryStore interface.
func (m *MockHistoryStore) GetAllRuns() ([]schema.EvaluationRunRecord, error) {
	args := m.Called()
	runs, _ := args.Get(0).([]schema.EvaluationRunRecord)
	return runs, args.Error(1)
}

// GetAllReports implements the HistoryStore interface.
func (m *MockHistoryStore) GetAllReports() ([]schema.StudentReportRecord, error) {
	args := m.Called()
	reports, _ := args.Get(0).([]schema.StudentReportRecord)
	return reports, args.Error(1)
}

// Close implements the HistoryStore interface.
func (m *MockHistoryStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
