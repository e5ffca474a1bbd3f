package camera

import (
	"context"
	"sync"
	"time"

	"github.com/cjeanneret/DualCap/internal/debug"
	"github.com/cjeanneret/DualCap/internal/hw/gpio"
)

// MuxSelector is a Camera for rigs where both sensors share one camera port
// through a multiplexer board. The board selects a sensor from a single GPIO
// line:
// - select LOW: front sensor
// - select HIGH: back sensor
//
// Switching sequence:
// 1. Drive the select line for the requested facing
// 2. Wait for the sensor to settle
// 3. Delegate the shot to the inner camera
type MuxSelector struct {
	gpio      gpio.Driver
	selectPin int
	settle    time.Duration
	inner     Camera

	mu      sync.Mutex
	current Facing
}

// NewMuxSelector configures selectPin as output, points the mux at the front
// sensor and wraps inner.
func NewMuxSelector(g gpio.Driver, selectPin int, settle time.Duration, inner Camera) *MuxSelector {
	_ = g.SetupPin(selectPin, gpio.Output)
	_ = g.WritePin(selectPin, levelFor(Front))

	return &MuxSelector{
		gpio:      g,
		selectPin: selectPin,
		settle:    settle,
		inner:     inner,
		current:   Front,
	}
}

func levelFor(f Facing) gpio.Level {
	if f == Back {
		return gpio.High
	}
	return gpio.Low
}

func (m *MuxSelector) Authorize(ctx context.Context) (bool, error) {
	return m.inner.Authorize(ctx)
}

// Capture re-points the mux when needed, then shoots.
func (m *MuxSelector) Capture(ctx context.Context, facing Facing, quality float64) (Shot, error) {
	m.mu.Lock()
	if m.current != facing {
		debug.Verbose("Camera: switching mux to %s (pin %d -> %v)", facing, m.selectPin, levelFor(facing))
		if err := m.gpio.WritePin(m.selectPin, levelFor(facing)); err != nil {
			m.mu.Unlock()
			return Shot{}, err
		}
		m.current = facing
		time.Sleep(m.settle)
	}
	m.mu.Unlock()

	return m.inner.Capture(ctx, facing, quality)
}
