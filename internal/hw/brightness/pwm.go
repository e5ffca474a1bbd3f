package brightness

import (
	"context"
	"fmt"

	"github.com/cjeanneret/DualCap/internal/hw/gpio"
)

// PWM drives a display backlight from a hardware PWM pin.
type PWM struct {
	drv gpio.PWMDriver
	pin int
}

// NewPWM configures pin for PWM at freqHz.
func NewPWM(drv gpio.PWMDriver, pin, freqHz int) (*PWM, error) {
	if err := drv.SetupPWM(pin, freqHz); err != nil {
		return nil, fmt.Errorf("setup pwm backlight: %w", err)
	}
	return &PWM{drv: drv, pin: pin}, nil
}

func (p *PWM) Read(ctx context.Context) (float64, error) {
	return p.drv.ReadDuty(p.pin)
}

func (p *PWM) Write(ctx context.Context, value float64) error {
	return p.drv.WriteDuty(p.pin, Clamp(value))
}
