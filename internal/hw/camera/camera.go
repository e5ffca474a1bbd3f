package camera

import (
	"context"
	"fmt"
	"strings"
)

// Facing selects a physical sensor.
type Facing int

const (
	Front Facing = iota
	Back
)

func (f Facing) String() string {
	switch f {
	case Front:
		return "front"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("facing(%d)", int(f))
	}
}

// Opposite returns the other sensor.
func (f Facing) Opposite() Facing {
	if f == Front {
		return Back
	}
	return Front
}

// ParseFacing accepts "front" or "back" (case-insensitive).
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front":
		return Front, nil
	case "back", "rear":
		return Back, nil
	default:
		return Front, fmt.Errorf("unknown facing %q", s)
	}
}

// Shot is the raw result of one shutter action.
// URI is a device-local reference, Bytes the encoded image.
type Shot struct {
	URI   string
	Bytes []byte
}

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera" with two sensors, regardless of how
// it's controlled (subprocess, GPIO multiplexer, mock, etc.).
type Camera interface {
	// Authorize reports whether the camera can be used. A false result
	// without error means access was refused.
	Authorize(ctx context.Context) (bool, error)

	// Capture takes a single still from the sensor pointed to by facing.
	// quality is a hint in [0, 1].
	Capture(ctx context.Context, facing Facing, quality float64) (Shot, error)
}
