package camera

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cjeanneret/DualCap/internal/debug"
)

// StillCommand captures stills by running libcamera-still (or a compatible
// binary) once per shot. Each facing maps to a camera index; the file is
// written under Dir and read back.
type StillCommand struct {
	Binary     string
	FrontIndex int
	BackIndex  int
	Dir        string
	Timeout    time.Duration // per-shot process timeout, 0 = none

	run func(ctx context.Context, name string, args ...string) error
	now func() time.Time
}

// NewStillCommand creates a subprocess-backed camera.
func NewStillCommand(binary string, frontIndex, backIndex int, dir string, timeout time.Duration) *StillCommand {
	return &StillCommand{
		Binary:     binary,
		FrontIndex: frontIndex,
		BackIndex:  backIndex,
		Dir:        dir,
		Timeout:    timeout,
		run:        runCommand,
		now:        time.Now,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// Authorize checks that the binary exists and the captures directory is writable.
func (s *StillCommand) Authorize(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(s.Binary); err != nil {
		debug.Warn("Camera: %s not found: %v", s.Binary, err)
		return false, nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return false, fmt.Errorf("create captures dir: %w", err)
	}
	f, err := os.CreateTemp(s.Dir, ".probe-*")
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return false, nil
		}
		return false, fmt.Errorf("probe captures dir: %w", err)
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return true, nil
}

// Capture runs one still capture for the given facing.
func (s *StillCommand) Capture(ctx context.Context, facing Facing, quality float64) (Shot, error) {
	index := s.FrontIndex
	if facing == Back {
		index = s.BackIndex
	}
	q := int(math.Round(clampQuality(quality) * 100))
	if q < 1 {
		q = 1
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("%s-%s.jpg", facing, s.now().Format("20060102-150405.000000")))
	args := []string{
		"--camera", strconv.Itoa(index),
		"--nopreview",
		"--immediate",
		"-q", strconv.Itoa(q),
		"-o", path,
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	debug.Verbose("Camera: %s %v", s.Binary, args)
	if err := s.run(ctx, s.Binary, args...); err != nil {
		return Shot{}, fmt.Errorf("capture %s: %w", facing, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Shot{}, fmt.Errorf("read capture %s: %w", path, err)
	}
	return Shot{URI: path, Bytes: data}, nil
}

func clampQuality(q float64) float64 {
	if math.IsNaN(q) || q > 1 {
		return 1
	}
	if q < 0 {
		return 0
	}
	return q
}
