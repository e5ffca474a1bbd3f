package brightness

import (
	"context"
	"sync"
)

// Mock is an in-memory brightness controller that records writes.
type Mock struct {
	mu      sync.Mutex
	value   float64
	writes  []float64
	ReadErr error
	Denied  bool
}

// NewMock starts at initial.
func NewMock(initial float64) *Mock {
	return &Mock{value: Clamp(initial)}
}

func (m *Mock) Authorize(ctx context.Context) (bool, error) {
	return !m.Denied, nil
}

func (m *Mock) Read(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return m.value, nil
}

func (m *Mock) Write(ctx context.Context, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = Clamp(value)
	m.writes = append(m.writes, m.value)
	return nil
}

// Writes returns a copy of every value written so far.
func (m *Mock) Writes() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.writes...)
}
