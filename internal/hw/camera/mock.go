package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
)

// Mock produces synthetic JPEG frames, one solid colour per facing.
// Used when no camera hardware is present.
type Mock struct {
	Width  int
	Height int
	Denied bool

	mu    sync.Mutex
	count int
}

// NewMock creates a mock camera producing width x height frames.
func NewMock(width, height int) *Mock {
	return &Mock{Width: width, Height: height}
}

func (m *Mock) Authorize(ctx context.Context) (bool, error) {
	return !m.Denied, nil
}

func (m *Mock) Capture(ctx context.Context, facing Facing, quality float64) (Shot, error) {
	if err := ctx.Err(); err != nil {
		return Shot{}, err
	}
	m.mu.Lock()
	m.count++
	n := m.count
	m.mu.Unlock()

	fill := color.NRGBA{R: 40, G: 90, B: 200, A: 255}
	if facing == Back {
		fill = color.NRGBA{R: 60, G: 160, B: 70, A: 255}
	}
	img := imaging.New(m.Width, m.Height, fill)

	var buf bytes.Buffer
	q := int(clampQuality(quality) * 100)
	if q < 1 {
		q = 1
	}
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return Shot{}, fmt.Errorf("encode mock frame: %w", err)
	}
	return Shot{URI: fmt.Sprintf("mock://%s/%d", facing, n), Bytes: buf.Bytes()}, nil
}
