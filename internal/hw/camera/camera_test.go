package camera

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/DualCap/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

// recordingCamera records requested facings.
type recordingCamera struct {
	facings []Facing
}

func (c *recordingCamera) Authorize(ctx context.Context) (bool, error) { return true, nil }

func (c *recordingCamera) Capture(ctx context.Context, f Facing, q float64) (Shot, error) {
	c.facings = append(c.facings, f)
	return Shot{URI: "rec://" + f.String(), Bytes: []byte{0xff}}, nil
}

func TestFacing_StringAndParse(t *testing.T) {
	cases := []struct {
		in   string
		want Facing
	}{
		{"front", Front},
		{"BACK", Back},
		{" rear ", Back},
	}
	for _, tc := range cases {
		got, err := ParseFacing(tc.in)
		if err != nil {
			t.Fatalf("ParseFacing(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseFacing(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseFacing("side"); err == nil {
		t.Error("expected error for unknown facing")
	}
	if Front.Opposite() != Back || Back.Opposite() != Front {
		t.Error("Opposite should swap front and back")
	}
}

func TestMuxSelector_InitializedToFront(t *testing.T) {
	drv := &recordingDriver{}
	NewMuxSelector(drv, 17, time.Microsecond, &recordingCamera{})

	writes := drv.writeCalls()
	if len(writes) != 1 || writes[0].pin != 17 || writes[0].level != gpio.Low {
		t.Fatalf("expected a single LOW write on pin 17, got %v", writes)
	}
}

func TestMuxSelector_SwitchesOnlyOnFacingChange(t *testing.T) {
	drv := &recordingDriver{}
	inner := &recordingCamera{}
	cam := NewMuxSelector(drv, 17, time.Microsecond, inner)
	drv.calls = nil // reset after init

	ctx := context.Background()
	for _, f := range []Facing{Front, Back, Back, Front} {
		if _, err := cam.Capture(ctx, f, 1); err != nil {
			t.Fatalf("Capture(%v): %v", f, err)
		}
	}

	expected := []gpio.Level{gpio.High, gpio.Low}
	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, lvl := range expected {
		if writes[i].level != lvl {
			t.Errorf("write %d: level=%v, want %v", i, writes[i].level, lvl)
		}
	}
	if len(inner.facings) != 4 || inner.facings[1] != Back {
		t.Errorf("inner camera facings = %v", inner.facings)
	}
}

func TestMuxSelector_ImplementsCamera(t *testing.T) {
	var _ Camera = NewMuxSelector(&recordingDriver{}, 17, time.Millisecond, &recordingCamera{})
}

func TestStillCommand_CaptureArgsAndReadBack(t *testing.T) {
	dir := t.TempDir()
	cam := NewStillCommand("libcamera-still", 0, 1, dir, time.Second)
	cam.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }

	var gotArgs []string
	cam.run = func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		out := args[len(args)-1]
		return os.WriteFile(out, []byte("jpegdata"), 0o644)
	}

	shot, err := cam.Capture(context.Background(), Back, 0.8)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if string(shot.Bytes) != "jpegdata" {
		t.Errorf("bytes = %q", shot.Bytes)
	}
	if filepath.Dir(shot.URI) != dir || !strings.HasPrefix(filepath.Base(shot.URI), "back-") {
		t.Errorf("uri = %q, want back-*.jpg under %s", shot.URI, dir)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--camera 1") {
		t.Errorf("args %q should select camera 1 for back", joined)
	}
	if !strings.Contains(joined, "-q 80") {
		t.Errorf("args %q should carry quality 80", joined)
	}
}

func TestStillCommand_TimeoutBoundsOnlyWhenSet(t *testing.T) {
	cases := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{"zero_is_unbounded", 0, false},
		{"positive_sets_deadline", time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cam := NewStillCommand("libcamera-still", 0, 1, t.TempDir(), tc.timeout)
			var hasDeadline bool
			cam.run = func(ctx context.Context, name string, args ...string) error {
				_, hasDeadline = ctx.Deadline()
				return os.WriteFile(args[len(args)-1], []byte("jpegdata"), 0o644)
			}
			if _, err := cam.Capture(context.Background(), Front, 1); err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if hasDeadline != tc.wantDeadline {
				t.Errorf("deadline set = %v, want %v", hasDeadline, tc.wantDeadline)
			}
		})
	}
}

func TestStillCommand_RunFailure(t *testing.T) {
	cam := NewStillCommand("libcamera-still", 0, 1, t.TempDir(), 0)
	cam.run = func(ctx context.Context, name string, args ...string) error {
		return errors.New("no cameras available")
	}
	if _, err := cam.Capture(context.Background(), Front, 1); err == nil {
		t.Fatal("expected error when the capture process fails")
	}
}

func TestStillCommand_AuthorizeMissingBinary(t *testing.T) {
	cam := NewStillCommand("definitely-not-a-camera-binary", 0, 1, t.TempDir(), 0)
	ok, err := cam.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if ok {
		t.Error("Authorize should refuse when the binary is missing")
	}
}

func TestMock_ProducesDecodableJPEG(t *testing.T) {
	cam := NewMock(64, 48)
	shot, err := cam.Capture(context.Background(), Front, 0.9)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !strings.HasPrefix(shot.URI, "mock://front/") {
		t.Errorf("uri = %q", shot.URI)
	}
	img, err := jpeg.Decode(bytes.NewReader(shot.Bytes))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("size = %dx%d, want 64x48", b.Dx(), b.Dy())
	}
}

func TestMock_Denied(t *testing.T) {
	cam := NewMock(8, 8)
	cam.Denied = true
	ok, err := cam.Authorize(context.Background())
	if err != nil || ok {
		t.Errorf("Authorize = %v, %v; want false, nil", ok, err)
	}
}
