package brightness

import (
	"context"
	"math"
)

// Controller reads and writes screen brightness as a ratio in [0, 1].
type Controller interface {
	Read(ctx context.Context) (float64, error)
	Write(ctx context.Context, value float64) error
}

// Authorizer is implemented by controllers that need permission before use.
type Authorizer interface {
	Authorize(ctx context.Context) (bool, error)
}

// Clamp bounds v to [0, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
