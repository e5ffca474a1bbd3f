package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/DualCap/internal/api"
	"github.com/cjeanneret/DualCap/internal/config"
	"github.com/cjeanneret/DualCap/internal/hw/brightness"
	"github.com/cjeanneret/DualCap/internal/hw/camera"
	"github.com/cjeanneret/DualCap/internal/hw/gpio"
	"github.com/cjeanneret/DualCap/internal/logic/capture"
	"github.com/cjeanneret/DualCap/internal/model"
	"github.com/cjeanneret/DualCap/internal/store"
)

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- optionalBool / applyOverrides ----------

func TestOptionalBool(t *testing.T) {
	var b optionalBool
	if b.String() != "" {
		t.Errorf("unset String() = %q, want empty", b.String())
	}
	if !b.IsBoolFlag() {
		t.Error("optionalBool should be a bool flag")
	}
	if err := b.Set("false"); err != nil {
		t.Fatalf("Set(false): %v", err)
	}
	if !b.set || b.val {
		t.Errorf("after Set(false): %+v", b)
	}
	if err := b.Set("maybe"); err == nil {
		t.Error("Set(maybe) should fail")
	}
}

func newTestConfig() *config.Config {
	delay := 100
	return &config.Config{
		Camera: config.CameraConfig{
			Type:        config.CameraMock,
			Binary:      "libcamera-still",
			BackIndex:   1,
			CapturesDir: "captures",
			Quality:     0.8,
			TimeoutMs:   10000,
			SettleMs:    50,
			MockWidth:   48,
			MockHeight:  64,
		},
		Brightness: config.BrightnessConfig{Type: config.BrightnessNone, PWMFreqHz: 1000},
		Flash:      config.FlashConfig{Enabled: true, DelayMs: &delay},
		Photo:      config.PhotoConfig{JPEGQuality: 90},
		Defaults:   config.DefaultsConfig{MockGPIO: true, Location: "Lausanne"},
	}
}

func TestApplyOverrides_UnsetLeavesConfig(t *testing.T) {
	cfg := newTestConfig()
	applyOverrides(cfg, &optionalBool{}, "   ")
	if !cfg.Flash.Enabled {
		t.Error("unset -flash should not change flash.enabled")
	}
	if cfg.Defaults.Location != "Lausanne" {
		t.Errorf("blank -location changed location to %q", cfg.Defaults.Location)
	}
}

func TestApplyOverrides_Set(t *testing.T) {
	cfg := newTestConfig()
	flash := &optionalBool{}
	if err := flash.Set("false"); err != nil {
		t.Fatal(err)
	}
	applyOverrides(cfg, flash, " Geneva ")
	if cfg.Flash.Enabled {
		t.Error("-flash=false should disable flash")
	}
	if cfg.Defaults.Location != "Geneva" {
		t.Errorf("location = %q, want Geneva", cfg.Defaults.Location)
	}
}

func TestSequencerConfig(t *testing.T) {
	cfg := newTestConfig()
	fb := 0.25
	cfg.Flash.FallbackBrightness = &fb
	got := sequencerConfig(cfg)
	if got.Quality != 0.8 || !got.FlashEnabled {
		t.Errorf("sequencerConfig = %+v", got)
	}
	if got.FlashDelay != 100*time.Millisecond {
		t.Errorf("FlashDelay = %v, want 100ms", got.FlashDelay)
	}
	if got.FallbackBrightness != 0.25 {
		t.Errorf("FallbackBrightness = %v, want 0.25", got.FallbackBrightness)
	}
}

// ---------- factories ----------

func TestNewCameraFromConfig(t *testing.T) {
	drv := &gpio.MockDriver{}
	cases := []struct {
		typ  string
		want string
	}{
		{config.CameraMock, "*camera.Mock"},
		{config.CameraLibcamera, "*camera.StillCommand"},
		{config.CameraLibcameraMux, "*camera.MuxSelector"},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.Camera.Type = tc.typ
			cfg.Camera.SelectPin = 4
			cam, err := newCameraFromConfig(drv, cfg)
			if err != nil {
				t.Fatalf("newCameraFromConfig: %v", err)
			}
			switch cam.(type) {
			case *camera.Mock:
				if tc.want != "*camera.Mock" {
					t.Errorf("got *camera.Mock, want %s", tc.want)
				}
			case *camera.StillCommand:
				if tc.want != "*camera.StillCommand" {
					t.Errorf("got *camera.StillCommand, want %s", tc.want)
				}
			case *camera.MuxSelector:
				if tc.want != "*camera.MuxSelector" {
					t.Errorf("got *camera.MuxSelector, want %s", tc.want)
				}
			default:
				t.Errorf("unexpected camera %T", cam)
			}
		})
	}

	cfg := newTestConfig()
	cfg.Camera.Type = "webcam"
	if _, err := newCameraFromConfig(drv, cfg); err == nil {
		t.Error("unknown camera type should fail")
	}
}

func TestNewBrightnessFromConfig(t *testing.T) {
	drv := &gpio.MockDriver{}
	cfg := newTestConfig()

	c, err := newBrightnessFromConfig(drv, cfg)
	if err != nil || c != nil {
		t.Errorf("none: got (%v, %v), want nil controller", c, err)
	}

	cfg.Brightness.Type = config.BrightnessMock
	if c, err = newBrightnessFromConfig(drv, cfg); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, ok := c.(*brightness.Mock); !ok {
		t.Errorf("mock: got %T", c)
	}

	cfg.Brightness.Type = config.BrightnessBacklight
	cfg.Brightness.Root = t.TempDir()
	cfg.Brightness.Device = "panel"
	if c, err = newBrightnessFromConfig(drv, cfg); err != nil {
		t.Fatalf("backlight: %v", err)
	}
	if _, ok := c.(*brightness.Backlight); !ok {
		t.Errorf("backlight: got %T", c)
	}

	cfg.Brightness.Type = config.BrightnessPWM
	cfg.Brightness.PWMPin = 18
	if c, err = newBrightnessFromConfig(drv, cfg); err != nil {
		t.Fatalf("pwm: %v", err)
	}
	if _, ok := c.(*brightness.PWM); !ok {
		t.Errorf("pwm: got %T", c)
	}

	cfg.Brightness.Type = "ddc"
	if _, err := newBrightnessFromConfig(drv, cfg); err == nil {
		t.Error("unknown brightness type should fail")
	}
}

// ---------- login ----------

func TestProfileFromFlags(t *testing.T) {
	u, err := profileFromFlags(7, " ana ", "+41 79 000 00 00", "1990-04-02")
	if err != nil {
		t.Fatalf("valid profile: %v", err)
	}
	if u.ID != 7 || u.Nickname != "ana" || u.Birthdate != "1990-04-02" {
		t.Errorf("profile = %+v", u)
	}

	cases := []struct {
		name      string
		id        int
		nick      string
		phone     string
		birthdate string
	}{
		{"zero_id", 0, "ana", "1", ""},
		{"no_nickname", 1, " ", "1", ""},
		{"no_phone", 1, "ana", "", ""},
		{"bad_birthdate", 1, "ana", "1", "02/04/1990"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := profileFromFlags(tc.id, tc.nick, tc.phone, tc.birthdate); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

type fakeLoginer struct {
	password string
	err      error
}

func (f *fakeLoginer) Login(ctx context.Context, password string) (api.Credentials, error) {
	f.password = password
	if f.err != nil {
		return api.Credentials{}, f.err
	}
	return api.Credentials{Token: "opaque-token"}, nil
}

type memProfiles struct {
	mu      sync.Mutex
	profile *store.Profile
	err     error
	loads   int
}

func (m *memProfiles) SaveProfile(ctx context.Context, p store.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
	return nil
}

func (m *memProfiles) LoadProfile(ctx context.Context) (store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return store.Profile{}, m.err
	}
	if m.profile == nil {
		return store.Profile{}, store.ErrNotLoggedIn
	}
	return *m.profile, nil
}

func TestRunLogin(t *testing.T) {
	ctx := context.Background()
	user := model.User{ID: 3, Nickname: "ana", PhoneNumber: "1"}

	if err := runLogin(ctx, &fakeLoginer{}, &memProfiles{}, user, ""); err == nil ||
		!strings.Contains(err.Error(), config.EnvFeedPassword) {
		t.Errorf("missing password: err = %v", err)
	}

	l := &fakeLoginer{}
	profiles := &memProfiles{}
	if err := runLogin(ctx, l, profiles, user, "hunter2"); err != nil {
		t.Fatalf("runLogin: %v", err)
	}
	if l.password != "hunter2" {
		t.Errorf("password = %q", l.password)
	}
	if profiles.profile == nil || profiles.profile.Token != "opaque-token" || profiles.profile.User != user {
		t.Errorf("saved profile = %+v", profiles.profile)
	}

	denied := errors.New("denied")
	profiles = &memProfiles{}
	if err := runLogin(ctx, &fakeLoginer{err: denied}, profiles, user, "x"); !errors.Is(err, denied) {
		t.Errorf("err = %v, want denied", err)
	}
	if profiles.profile != nil {
		t.Error("failed login must not store a profile")
	}
}

// ---------- remote ----------

func TestRemote_Credentials(t *testing.T) {
	ctx := context.Background()
	profiles := &memProfiles{}
	r := &remote{profiles: profiles}

	if _, err := r.credentials(ctx); !errors.Is(err, store.ErrNotLoggedIn) {
		t.Errorf("no profile: err = %v, want ErrNotLoggedIn", err)
	}

	profiles.profile = &store.Profile{User: model.User{ID: 1, Nickname: "ana"}, Token: "stored"}
	creds, err := r.credentials(ctx)
	if err != nil || creds.Token != "stored" {
		t.Errorf("stored: got (%v, %v)", creds, err)
	}

	r.envToken = "from-env"
	creds, err = r.credentials(ctx)
	if err != nil || creds.Token != "from-env" {
		t.Errorf("env override: got (%v, %v)", creds, err)
	}

	u, err := r.User(ctx)
	if err != nil || u.Nickname != "ana" {
		t.Errorf("User = (%+v, %v)", u, err)
	}
	if profiles.loads < 2 {
		t.Errorf("profile should be re-read per call, loads = %d", profiles.loads)
	}
}

func TestRemote_NoProfileSource(t *testing.T) {
	r := &remote{}
	if _, err := r.credentials(context.Background()); !errors.Is(err, api.ErrNoToken) {
		t.Errorf("credentials err = %v, want ErrNoToken", err)
	}
	if _, err := r.User(context.Background()); !errors.Is(err, store.ErrNotLoggedIn) {
		t.Errorf("User err = %v, want ErrNotLoggedIn", err)
	}
}

// ---------- runOnce ----------

type recordingUploader struct {
	pairs []capture.Pair
}

func (u *recordingUploader) Upload(ctx context.Context, pair capture.Pair) (string, error) {
	u.pairs = append(u.pairs, pair)
	return "42", nil
}

func newTestSequencer(t *testing.T) *capture.Sequencer {
	t.Helper()
	cfg := capture.DefaultConfig()
	cfg.FlashDelay = time.Millisecond
	seq := capture.NewSequencer(camera.NewMock(16, 16), nil, cfg)
	if err := seq.Authorize(context.Background()); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return seq
}

func TestRunOnce_SubmitsWhenLoggedIn(t *testing.T) {
	seq := newTestSequencer(t)
	up := &recordingUploader{}
	user := func(ctx context.Context) (model.User, error) {
		return model.User{ID: 1, Nickname: "ana"}, nil
	}
	var out bytes.Buffer
	if err := runOnce(context.Background(), seq, up, user, "Lausanne", &out); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if len(up.pairs) != 1 {
		t.Fatalf("uploads = %d, want 1", len(up.pairs))
	}
	if up.pairs[0].Location != "Lausanne" || up.pairs[0].User.Nickname != "ana" {
		t.Errorf("pair metadata = %+v", up.pairs[0])
	}
	if !strings.Contains(out.String(), "posted moment 42") {
		t.Errorf("output = %q", out.String())
	}
	if seq.Snapshot().State() != capture.IdleFront {
		t.Errorf("state after submit = %s, want IdleFront", seq.Snapshot().State())
	}
}

func TestRunOnce_NotLoggedInKeepsPhotos(t *testing.T) {
	seq := newTestSequencer(t)
	up := &recordingUploader{}
	user := func(ctx context.Context) (model.User, error) {
		return model.User{}, store.ErrNotLoggedIn
	}
	var out bytes.Buffer
	if err := runOnce(context.Background(), seq, up, user, "", &out); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if len(up.pairs) != 0 {
		t.Errorf("uploads = %d, want 0", len(up.pairs))
	}
	if !strings.Contains(out.String(), "mock://front/") || !strings.Contains(out.String(), "not logged in") {
		t.Errorf("output = %q", out.String())
	}
	if seq.Snapshot().State() != capture.Complete {
		t.Errorf("state = %s, want Complete", seq.Snapshot().State())
	}
}

// ---------- archive ----------

func TestArchiveToAndPrint(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "dualcap.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	archive := archiveTo(db)
	err = archive(ctx, "session-1", capture.Pair{
		FrontURI: "captures/front.jpg",
		BackURI:  "captures/back.jpg",
		TakenAt:  taken,
		Location: "Lausanne",
	}, "99")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	var out bytes.Buffer
	if err := printArchive(ctx, db, 10, &out); err != nil {
		t.Fatalf("printArchive: %v", err)
	}
	for _, want := range []string{"REMOTE ID", "99", "Lausanne", "captures/front.jpg", "captures/back.jpg"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("archive listing missing %q: %q", want, out.String())
		}
	}
}
