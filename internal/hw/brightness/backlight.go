package brightness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cjeanneret/DualCap/internal/debug"
)

// DefaultBacklightRoot is where Linux exposes backlight devices.
const DefaultBacklightRoot = "/sys/class/backlight"

// Backlight drives a Linux sysfs backlight device
// (<root>/<device>/brightness and max_brightness).
type Backlight struct {
	dir string
}

// NewBacklight returns a controller for device under root.
// An empty root uses DefaultBacklightRoot.
func NewBacklight(root, device string) *Backlight {
	if root == "" {
		root = DefaultBacklightRoot
	}
	return &Backlight{dir: filepath.Join(root, device)}
}

func (b *Backlight) readInt(name string) (int, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func (b *Backlight) max() (int, error) {
	m, err := b.readInt("max_brightness")
	if err != nil {
		return 0, err
	}
	if m <= 0 {
		return 0, fmt.Errorf("max_brightness must be > 0, got %d", m)
	}
	return m, nil
}

// Authorize checks that the brightness file is writable.
func (b *Backlight) Authorize(ctx context.Context) (bool, error) {
	f, err := os.OpenFile(filepath.Join(b.dir, "brightness"), os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return false, nil
		}
		return false, fmt.Errorf("open backlight: %w", err)
	}
	f.Close()
	return true, nil
}

func (b *Backlight) Read(ctx context.Context) (float64, error) {
	m, err := b.max()
	if err != nil {
		return 0, fmt.Errorf("read backlight: %w", err)
	}
	cur, err := b.readInt("brightness")
	if err != nil {
		return 0, fmt.Errorf("read backlight: %w", err)
	}
	return Clamp(float64(cur) / float64(m)), nil
}

func (b *Backlight) Write(ctx context.Context, value float64) error {
	m, err := b.max()
	if err != nil {
		return fmt.Errorf("write backlight: %w", err)
	}
	raw := int(math.Round(Clamp(value) * float64(m)))
	debug.Trace("Backlight: %s <- %d/%d", b.dir, raw, m)
	if err := os.WriteFile(filepath.Join(b.dir, "brightness"), []byte(strconv.Itoa(raw)), 0o644); err != nil {
		return fmt.Errorf("write backlight: %w", err)
	}
	return nil
}
