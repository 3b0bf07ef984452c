package testutil

import (
	"errors"
	"sync"

	"github.com/c360/trajstream/codec"
)

// ErrInjected is returned by MockModel for frames listed in FailFrames.
var ErrInjected = errors.New("injected failure")

// MockModel is an in-process model that reproduces Frames.
type MockModel struct {
	mu sync.Mutex

	TrajectoryInfo codec.TrajectoryInfo

	// FailFrames makes Update fail for these frame numbers.
	FailFrames map[int]bool

	// Calls records every frame number passed to Update.
	Calls []int
}

// NewMockModel creates a model with the given time step.
func NewMockModel(timeStep float64) *MockModel {
	return &MockModel{
		TrajectoryInfo: Info(0, timeStep),
		FailFrames:     make(map[int]bool),
	}
}

// Info returns the configured trajectory info.
func (m *MockModel) Info() codec.TrajectoryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TrajectoryInfo
}

// Update returns the flat record of Frame(n).
func (m *MockModel) Update(n int) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, n)
	if m.FailFrames[n] {
		return nil, ErrInjected
	}
	return codec.EncodeFlatRecord(Frame(n, 0).Agents), nil
}

// Fail makes Update fail for frame n.
func (m *MockModel) Fail(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailFrames[n] = true
}

// CallCount returns the number of Update calls.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
