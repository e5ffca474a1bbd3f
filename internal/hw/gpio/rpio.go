package gpio

import (
	"fmt"
	"math"

	"github.com/cjeanneret/DualCap/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmCycle is the PWM period length in clock ticks; duty is expressed against it.
const pwmCycle uint32 = 1024

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
	duty map[int]float64
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root
// (root is needed for PWM).
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
		duty: make(map[int]float64),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// SetupPWM puts pin in hardware PWM mode (BCM 12, 13, 18 or 19).
func (r *RPiDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)

	switch pin {
	case 12, 13, 18, 19:
	default:
		return fmt.Errorf("pin %d has no hardware PWM channel", pin)
	}
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}

	p := rpio.Pin(pin)
	p.Pwm()
	// Freq sets the PWM clock; the output frequency is clock / cycle.
	p.Freq(freqHz * int(pwmCycle))
	r.pins[pin] = p
	if _, ok := r.duty[pin]; !ok {
		r.duty[pin] = 0
		p.DutyCycle(0, pwmCycle)
	}
	rpio.StartPwm()
	return nil
}

func (r *RPiDriver) WriteDuty(pin int, duty float64) error {
	debug.GPIO("WriteDuty", pin, duty)

	if duty < 0 || duty > 1 || math.IsNaN(duty) {
		return fmt.Errorf("duty %.3f out of range [0,1]", duty)
	}
	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	p.DutyCycle(uint32(math.Round(duty*float64(pwmCycle))), pwmCycle)
	r.duty[pin] = duty
	return nil
}

// ReadDuty returns the last duty written; the PWM block has no readback.
func (r *RPiDriver) ReadDuty(pin int) (float64, error) {
	debug.GPIO("ReadDuty", pin, nil)

	d, ok := r.duty[pin]
	if !ok {
		return 0, fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	return d, nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	if len(r.duty) > 0 {
		rpio.StopPwm()
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
