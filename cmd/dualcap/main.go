package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjeanneret/DualCap/internal/api"
	"github.com/cjeanneret/DualCap/internal/config"
	"github.com/cjeanneret/DualCap/internal/debug"
	"github.com/cjeanneret/DualCap/internal/hw/brightness"
	"github.com/cjeanneret/DualCap/internal/hw/camera"
	"github.com/cjeanneret/DualCap/internal/hw/gpio"
	"github.com/cjeanneret/DualCap/internal/logic/capture"
	"github.com/cjeanneret/DualCap/internal/logic/photo"
	"github.com/cjeanneret/DualCap/internal/metrics"
	"github.com/cjeanneret/DualCap/internal/model"
	"github.com/cjeanneret/DualCap/internal/store"
	"github.com/cjeanneret/DualCap/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file with DUALCAP_* variables")
	flash := &optionalBool{}
	flag.Var(flash, "flash", "override flash.enabled for this run")
	location := flag.String("location", "", "location attached to submissions (default: config)")
	doLogin := flag.Bool("login", false, "log in to the feed (password from "+config.EnvFeedPassword+") and store the profile")
	userID := flag.Int("user-id", 0, "profile user id (with -login)")
	nickname := flag.String("nickname", "", "profile nickname (with -login)")
	phone := flag.String("phone", "", "profile phone number (with -login)")
	birthdate := flag.String("birthdate", "", "profile birthdate YYYY-MM-DD (with -login)")
	doLogout := flag.Bool("logout", false, "forget the stored profile")
	archiveN := flag.Int("archive", 0, "print the last N submitted moments and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		log.Fatalf("load environment failed: %v", err)
	}
	applyOverrides(cfg, flash, *location)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	defer debug.Sync()
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Opening local store")
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}
	defer db.Close()
	debug.Value("Store", cfg.Store.Path)

	client, err := api.NewClient(cfg.API.BaseURL, api.Credentials{}, cfg.APITimeout())
	if err != nil {
		log.Fatalf("init feed client failed: %v", err)
	}
	rem := &remote{client: client, profiles: db, envToken: cfg.API.Token}
	debug.Value("Feed URL", cfg.API.BaseURL)

	switch {
	case *doLogout:
		if err := db.ClearProfile(ctx); err != nil {
			log.Fatalf("logout failed: %v", err)
		}
		fmt.Println("logged out")
		return
	case *doLogin:
		profile, err := profileFromFlags(*userID, *nickname, *phone, *birthdate)
		if err != nil {
			log.Fatalf("invalid profile: %v", err)
		}
		if err := runLogin(ctx, client, db, profile, os.Getenv(config.EnvFeedPassword)); err != nil {
			log.Fatalf("login failed: %v", err)
		}
		fmt.Printf("logged in as %s\n", profile.Nickname)
		return
	case *archiveN > 0:
		if err := printArchive(ctx, db, *archiveN, os.Stdout); err != nil {
			log.Fatalf("list archive failed: %v", err)
		}
		return
	}

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(2, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize camera and brightness
	debug.Step(3, "Initializing camera")
	cam, err := newCameraFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.PrintStruct("Camera config", cfg.Camera)

	debug.Step(4, "Initializing brightness controller")
	bright, err := newBrightnessFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init brightness failed: %v", err)
	}
	debug.Value("Brightness type", cfg.Brightness.Type)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := []capture.Option{
		capture.WithDeveloper(photo.NewDeveloper(photo.Options{
			MirrorFront:  cfg.Photo.MirrorFront,
			MaxDimension: cfg.Photo.MaxDimension,
			JPEGQuality:  cfg.Photo.JPEGQuality,
		})),
		capture.WithRecorder(m),
		capture.WithArchive(archiveTo(db)),
	}

	port := webPort.port()
	var broadcaster *web.StatusBroadcaster
	var seq *capture.Sequencer
	if port > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		opts = append(opts,
			capture.WithOverlay(web.NewOverlay(broadcaster)),
			capture.WithNotifier(web.Notifier(broadcaster, func() bool { return seq.Authorized() })),
		)
	}

	debug.Step(5, "Creating capture sequencer")
	seq = capture.NewSequencer(cam, bright, sequencerConfig(cfg), opts...)
	if err := seq.Authorize(ctx); err != nil {
		if port == 0 {
			log.Fatalf("authorization failed: %v", err)
		}
		debug.Warn("Authorization failed, capture disabled until POST /authorize: %v", err)
	}

	if port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		srv, err := web.NewServer(webAddr, broadcaster, web.Deps{
			Station:  seq,
			Uploader: rem,
			Feed:     rem,
			User:     rem.User,
			Settings: web.Settings{
				FlashEnabled: cfg.Flash.Enabled,
				Location:     cfg.Defaults.Location,
				Quality:      cfg.Camera.Quality,
				FeedURL:      cfg.API.BaseURL,
			},
		}, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	// Run one capture (and submit when logged in)
	if err := runOnce(ctx, seq, rem, rem.User, cfg.Defaults.Location, os.Stdout); err != nil {
		log.Fatalf("capture failed: %v", err)
	}
}

// station is the part of the sequencer used by runOnce.
type station interface {
	Capture(ctx context.Context) error
	Snapshot() capture.Session
	Submit(ctx context.Context, up capture.Uploader, meta capture.Metadata) (string, error)
}

// runOnce takes the front and back photos, then submits them when a user
// is logged in. Without a login the photos stay on disk and are reported.
func runOnce(ctx context.Context, st station, up capture.Uploader, user web.UserFunc, location string, w io.Writer) error {
	debug.Section("Capturing")
	if err := st.Capture(ctx); err != nil {
		return err
	}
	snap := st.Snapshot()
	if snap.Front == nil || snap.Back == nil {
		return fmt.Errorf("capture incomplete (state %s)", snap.State())
	}
	fmt.Fprintf(w, "front: %s\nback:  %s\n", snap.Front.URI, snap.Back.URI)

	u, err := user(ctx)
	if errors.Is(err, store.ErrNotLoggedIn) {
		fmt.Fprintln(w, "not logged in; skipping submit (run with -login)")
		return nil
	}
	if err != nil {
		return err
	}

	debug.Section("Submitting")
	id, err := st.Submit(ctx, up, capture.Metadata{User: u, Location: location})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "posted moment %s\n", id)
	return nil
}

// sequencerConfig maps the station config onto the sequencer tuning.
func sequencerConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		Quality:            cfg.Camera.Quality,
		FlashEnabled:       cfg.Flash.Enabled,
		FlashDelay:         cfg.FlashDelay(),
		FallbackBrightness: cfg.Fallback(),
	}
}

// applyOverrides mutates cfg with CLI overrides. Unset flags leave the config untouched.
func applyOverrides(cfg *config.Config, flash *optionalBool, location string) {
	if flash != nil && flash.set {
		cfg.Flash.Enabled = flash.val
	}
	if location = strings.TrimSpace(location); location != "" {
		cfg.Defaults.Location = location
	}
}

// archiveTo records submitted pairs in the local store.
func archiveTo(db *store.DB) func(ctx context.Context, sessionID string, pair capture.Pair, remoteID string) error {
	return func(ctx context.Context, sessionID string, pair capture.Pair, remoteID string) error {
		return db.Archive(ctx, store.ArchivedMoment{
			SessionID: sessionID,
			RemoteID:  remoteID,
			Location:  pair.Location,
			FrontURI:  pair.FrontURI,
			BackURI:   pair.BackURI,
			TakenAt:   pair.TakenAt,
		})
	}
}

func printArchive(ctx context.Context, db *store.DB, n int, w io.Writer) error {
	moments, err := db.ListArchive(ctx, n)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REMOTE ID\tTAKEN AT\tLOCATION\tFRONT\tBACK")
	for _, m := range moments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.RemoteID, m.TakenAt.Local().Format(time.DateTime), m.Location, m.FrontURI, m.BackURI)
	}
	return tw.Flush()
}

type loginer interface {
	Login(ctx context.Context, password string) (api.Credentials, error)
}

type profileSaver interface {
	SaveProfile(ctx context.Context, p store.Profile) error
}

// runLogin exchanges the password for a token and stores it with the profile.
func runLogin(ctx context.Context, l loginer, s profileSaver, user model.User, password string) error {
	if password == "" {
		return fmt.Errorf("%s is not set", config.EnvFeedPassword)
	}
	creds, err := l.Login(ctx, password)
	if err != nil {
		return err
	}
	if claims, err := creds.Claims(); err == nil && !claims.ExpiresAt.IsZero() {
		debug.Info("Token valid until %s", claims.ExpiresAt.Format(time.RFC3339))
	}
	return s.SaveProfile(ctx, store.Profile{User: user, Token: creds.Token})
}

// profileFromFlags validates the -login profile fields.
func profileFromFlags(userID int, nickname, phone, birthdate string) (model.User, error) {
	nickname = strings.TrimSpace(nickname)
	phone = strings.TrimSpace(phone)
	if userID <= 0 {
		return model.User{}, fmt.Errorf("user-id must be positive, got %d", userID)
	}
	if nickname == "" {
		return model.User{}, errors.New("nickname is required")
	}
	if phone == "" {
		return model.User{}, errors.New("phone is required")
	}
	if birthdate != "" {
		if _, err := time.Parse(time.DateOnly, birthdate); err != nil {
			return model.User{}, fmt.Errorf("birthdate must be YYYY-MM-DD: %w", err)
		}
	}
	return model.User{ID: userID, Nickname: nickname, PhoneNumber: phone, Birthdate: birthdate}, nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// optionalBool is a boolean flag that remembers whether it was given.
type optionalBool struct {
	set bool
	val bool
}

func (b *optionalBool) String() string {
	if !b.set {
		return ""
	}
	return strconv.FormatBool(b.val)
}

func (b *optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.set, b.val = true, v
	return nil
}

func (b *optionalBool) IsBoolFlag() bool { return true }

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(g gpio.Driver, cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case config.CameraMock:
		return camera.NewMock(cfg.Camera.MockWidth, cfg.Camera.MockHeight), nil
	case config.CameraLibcamera:
		return camera.NewStillCommand(
			cfg.Camera.Binary,
			cfg.Camera.FrontIndex,
			cfg.Camera.BackIndex,
			cfg.Camera.CapturesDir,
			cfg.CaptureTimeout(),
		), nil
	case config.CameraLibcameraMux:
		inner := camera.NewStillCommand(
			cfg.Camera.Binary,
			cfg.Camera.FrontIndex,
			cfg.Camera.BackIndex,
			cfg.Camera.CapturesDir,
			cfg.CaptureTimeout(),
		)
		return camera.NewMuxSelector(g, cfg.Camera.SelectPin, cfg.SettleDelay(), inner), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// newBrightnessFromConfig selects the screen brightness controller. The
// "none" type returns a nil controller: the flash then only drives the overlay.
func newBrightnessFromConfig(g gpio.PWMDriver, cfg *config.Config) (brightness.Controller, error) {
	switch cfg.Brightness.Type {
	case config.BrightnessNone, "":
		return nil, nil
	case config.BrightnessMock:
		return brightness.NewMock(0.5), nil
	case config.BrightnessBacklight:
		return brightness.NewBacklight(cfg.Brightness.Root, cfg.Brightness.Device), nil
	case config.BrightnessPWM:
		p, err := brightness.NewPWM(g, cfg.Brightness.PWMPin, cfg.Brightness.PWMFreqHz)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported brightness type: %s", cfg.Brightness.Type)
	}
}
