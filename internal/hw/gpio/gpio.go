package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/DualCap/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// PWMDriver is implemented by drivers that can run a pin in hardware PWM mode.
// Duty values are ratios in [0, 1].
type PWMDriver interface {
	Driver
	SetupPWM(pin int, freqHz int) error
	WriteDuty(pin int, duty float64) error
	ReadDuty(pin int) (float64, error)
}

// MockDriver is a test implementation that logs actions and remembers
// PWM duty values. Used for development on PC or testing.
type MockDriver struct {
	mu   sync.Mutex
	duty map[int]float64
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (PWMDriver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	drv, err := NewRPiRealDriver()
	if err != nil {
		return nil, err
	}
	return drv, nil
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return Low, nil
}

func (m *MockDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duty == nil {
		m.duty = make(map[int]float64)
	}
	if _, ok := m.duty[pin]; !ok {
		m.duty[pin] = 0
	}
	return nil
}

func (m *MockDriver) WriteDuty(pin int, duty float64) error {
	debug.GPIO("WriteDuty", pin, duty)
	if duty < 0 || duty > 1 {
		return fmt.Errorf("duty %.3f out of range [0,1]", duty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duty == nil {
		m.duty = make(map[int]float64)
	}
	m.duty[pin] = duty
	return nil
}

func (m *MockDriver) ReadDuty(pin int) (float64, error) {
	debug.GPIO("ReadDuty", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.duty[pin]
	if !ok {
		return 0, fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	return d, nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
