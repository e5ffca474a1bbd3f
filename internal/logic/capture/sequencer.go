package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/DualCap/internal/debug"
	"github.com/cjeanneret/DualCap/internal/hw/brightness"
	"github.com/cjeanneret/DualCap/internal/hw/camera"
)

// Overlay is the full-screen white layer shown during a flash.
type Overlay interface {
	Show()
	Hide()
}

// Developer post-processes raw captures. A zero time means "unknown".
type Developer interface {
	Develop(facing camera.Facing, data []byte) ([]byte, time.Time, error)
}

// Uploader hands an assembled pair to the remote feed and returns its id.
type Uploader interface {
	Upload(ctx context.Context, pair Pair) (string, error)
}

// Recorder receives sequencer measurements (metrics).
type Recorder interface {
	ObserveShot(facing camera.Facing, err error, d time.Duration)
	ObserveFlash()
	ObserveUpload(err error)
}

// EventKind tags notifications sent to observers.
type EventKind string

const (
	EventState     EventKind = "state"
	EventFlashOn   EventKind = "flash_on"
	EventFlashOff  EventKind = "flash_off"
	EventError     EventKind = "error"
	EventSubmitted EventKind = "submitted"
)

// Event is a notification with a snapshot of the session.
type Event struct {
	Kind    EventKind
	Session Session
	Err     error
}

// Config holds sequencer tuning.
type Config struct {
	Quality            float64       // shutter quality hint [0,1]
	FlashEnabled       bool          // initial flash toggle
	FlashDelay         time.Duration // wait between brightness raise and shutter
	FallbackBrightness float64       // restored when the prior level is unknown
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Quality:            1,
		FlashDelay:         100 * time.Millisecond,
		FallbackBrightness: 0.5,
	}
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

func WithOverlay(o Overlay) Option       { return func(s *Sequencer) { s.overlay = o } }
func WithDeveloper(d Developer) Option   { return func(s *Sequencer) { s.dev = d } }
func WithRecorder(r Recorder) Option     { return func(s *Sequencer) { s.rec = r } }
func WithNotifier(fn func(Event)) Option { return func(s *Sequencer) { s.notify = fn } }

// WithArchive registers a hook run after a successful submit.
func WithArchive(fn func(ctx context.Context, sessionID string, pair Pair, remoteID string) error) Option {
	return func(s *Sequencer) { s.archive = fn }
}

// Sequencer drives the two-shot capture: front, then back, from one trigger.
type Sequencer struct {
	cam    camera.Camera
	bright brightness.Controller
	cfg    Config

	overlay Overlay
	dev     Developer
	rec     Recorder
	notify  func(Event)
	archive func(ctx context.Context, sessionID string, pair Pair, remoteID string) error

	now   func() time.Time
	sleep func(time.Duration)

	mu         sync.Mutex
	session    Session
	authorized bool
	submitting bool
}

// NewSequencer creates a sequencer. bright may be nil (flash then only
// drives the overlay).
func NewSequencer(cam camera.Camera, bright brightness.Controller, cfg Config, opts ...Option) *Sequencer {
	s := &Sequencer{
		cam:     cam,
		bright:  bright,
		cfg:     cfg,
		now:     time.Now,
		sleep:   time.Sleep,
		session: NewSession(cfg.FlashEnabled),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current session.
func (s *Sequencer) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Authorized reports the result of the last Authorize call.
func (s *Sequencer) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

// Authorize requests the camera and, when supported, brightness permission.
func (s *Sequencer) Authorize(ctx context.Context) error {
	ok, err := s.cam.Authorize(ctx)
	if err != nil {
		s.setAuthorized(false)
		return fmt.Errorf("camera authorization: %w", err)
	}
	if ok {
		if a, isAuth := s.bright.(brightness.Authorizer); isAuth {
			ok, err = a.Authorize(ctx)
			if err != nil {
				s.setAuthorized(false)
				return fmt.Errorf("brightness authorization: %w", err)
			}
		}
	}
	s.setAuthorized(ok)
	if !ok {
		return ErrAuthorizationDenied
	}
	debug.Info("Capture authorized")
	return nil
}

func (s *Sequencer) setAuthorized(ok bool) {
	s.mu.Lock()
	s.authorized = ok
	s.mu.Unlock()
}

// SetFlash toggles the brightness flash for the following captures.
func (s *Sequencer) SetFlash(enabled bool) Session {
	s.mu.Lock()
	s.session.FlashEnabled = enabled
	snap := s.session
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, Session: snap})
	return snap
}

// apply runs one transition under the lock and returns the snapshot.
func (s *Sequencer) apply(ev event) (Session, action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ev)
}

func (s *Sequencer) applyLocked(ev event) (Session, action, error) {
	before := s.session.State()
	sess, act, err := next(s.session, ev)
	if err != nil {
		return s.session, actNone, err
	}
	s.session = sess
	if after := sess.State(); after != before {
		debug.State(before.String(), after.String())
	}
	return sess, act, nil
}

// Capture runs the dual-capture sequence from the current state: in
// IDLE_FRONT it takes the front shot and then the back shot; in IDLE_BACK
// (after a failed back shot) it takes the back shot only.
// A failed shot leaves the state where it was and returns an error wrapping
// ErrCaptureFailed.
func (s *Sequencer) Capture(ctx context.Context) error {
	s.mu.Lock()
	if !s.authorized {
		s.mu.Unlock()
		return ErrAuthorizationDenied
	}
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmitInProgress
	}
	snap, act, err := s.applyLocked(event{kind: evTrigger})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(Event{Kind: EventState, Session: snap})

	for act == actShoot {
		facing := snap.Facing
		photo, shotErr := s.shoot(ctx, facing, snap.FlashEnabled)
		if shotErr != nil {
			snap, _, _ = s.apply(event{kind: evShotFailed})
			debug.Error(shotErr)
			s.emit(Event{Kind: EventError, Session: snap, Err: shotErr})
			return shotErr
		}

		snap, act, err = s.apply(event{kind: evShot, photo: photo})
		if err != nil {
			return err
		}
		debug.Shot(facing.String(), photo.URI, len(photo.Bytes))
		s.emit(Event{Kind: EventState, Session: snap})
	}
	return nil
}

// shoot takes one photo, wrapped in the flash effect when enabled.
func (s *Sequencer) shoot(ctx context.Context, facing camera.Facing, flash bool) (*Photo, error) {
	if flash {
		s.raiseFlash(ctx)
		defer s.lowerFlash(ctx)
	}

	start := s.now()
	shot, err := s.cam.Capture(ctx, facing, s.cfg.Quality)
	photo, err := s.toPhoto(facing, shot, err, start)
	if s.rec != nil {
		s.rec.ObserveShot(facing, err, s.now().Sub(start))
	}
	return photo, err
}

func (s *Sequencer) toPhoto(facing camera.Facing, shot camera.Shot, err error, start time.Time) (*Photo, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, facing, err)
	}
	if shot.URI == "" || len(shot.Bytes) == 0 {
		return nil, fmt.Errorf("%w: %s: empty result", ErrCaptureFailed, facing)
	}

	data := shot.Bytes
	var takenAt time.Time
	if s.dev != nil {
		data, takenAt, err = s.dev.Develop(facing, shot.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, facing, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: %s: empty developed image", ErrCaptureFailed, facing)
		}
	}
	if takenAt.IsZero() {
		takenAt = start
	}
	return &Photo{URI: shot.URI, Bytes: data, Facing: facing, TakenAt: takenAt}, nil
}

// raiseFlash saves the current brightness, maximizes it, shows the overlay
// and waits for the panel to ramp up.
func (s *Sequencer) raiseFlash(ctx context.Context) {
	var saved *float64
	if s.bright != nil {
		if v, err := s.bright.Read(ctx); err != nil {
			debug.Warn("Flash: brightness read failed, will restore %.2f: %v", s.cfg.FallbackBrightness, err)
		} else {
			saved = &v
		}
	}

	s.mu.Lock()
	s.session.SavedBrightness = saved
	s.session.FlashActive = true
	snap := s.session
	s.mu.Unlock()

	if s.bright != nil {
		if err := s.bright.Write(ctx, 1.0); err != nil {
			debug.Warn("Flash: brightness raise failed: %v", err)
		}
	}
	if s.overlay != nil {
		s.overlay.Show()
	}
	debug.Flash("on", 1.0)
	if s.rec != nil {
		s.rec.ObserveFlash()
	}
	s.emit(Event{Kind: EventFlashOn, Session: snap})
	s.sleep(s.cfg.FlashDelay)
}

// lowerFlash restores the saved brightness (or the fallback) and hides the overlay.
func (s *Sequencer) lowerFlash(ctx context.Context) {
	s.mu.Lock()
	restore := s.cfg.FallbackBrightness
	if s.session.SavedBrightness != nil {
		restore = *s.session.SavedBrightness
	}
	s.mu.Unlock()

	if s.bright != nil {
		if err := s.bright.Write(ctx, restore); err != nil {
			debug.Warn("Flash: brightness restore failed: %v", err)
		}
	}
	if s.overlay != nil {
		s.overlay.Hide()
	}
	debug.Flash("off", restore)

	s.mu.Lock()
	s.session.FlashActive = false
	snap := s.session
	s.mu.Unlock()
	s.emit(Event{Kind: EventFlashOff, Session: snap})
}

// Discard resets the session to IDLE_FRONT. Calling it on a fresh session
// is a no-op.
func (s *Sequencer) Discard() (Session, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return s.Snapshot(), ErrSubmitInProgress
	}
	snap, _, err := s.applyLocked(event{kind: evDiscard})
	s.mu.Unlock()
	if err != nil {
		return snap, err
	}
	s.emit(Event{Kind: EventState, Session: snap})
	return snap, nil
}

// Assemble returns the paired payload. Outside COMPLETE it returns
// ErrPrematureAssembly.
func (s *Sequencer) Assemble(meta Metadata) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return assemble(s.session, meta)
}

// Submit assembles the pair and uploads it. On success the session is reset
// and the archive hook runs; on failure the session stays COMPLETE.
func (s *Sequencer) Submit(ctx context.Context, up Uploader, meta Metadata) (string, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return "", ErrSubmitInProgress
	}
	pair, err := assemble(s.session, meta)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	sessionID := s.session.ID
	s.submitting = true
	s.mu.Unlock()

	remoteID, upErr := up.Upload(ctx, pair)
	if s.rec != nil {
		s.rec.ObserveUpload(upErr)
	}

	s.mu.Lock()
	s.submitting = false
	if upErr != nil {
		snap := s.session
		s.mu.Unlock()
		err := fmt.Errorf("%w: %w", ErrUploadFailed, upErr)
		debug.Error(err)
		s.emit(Event{Kind: EventError, Session: snap, Err: err})
		return "", err
	}
	snap, _, _ := s.applyLocked(event{kind: evSubmitted})
	s.mu.Unlock()

	debug.Info("Session %s submitted as %s", sessionID, remoteID)
	s.emit(Event{Kind: EventSubmitted, Session: snap})

	if s.archive != nil {
		if err := s.archive(ctx, sessionID, pair, remoteID); err != nil {
			debug.Warn("Archive of session %s failed: %v", sessionID, err)
		}
	}
	return remoteID, nil
}

func (s *Sequencer) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

// IsUserError reports errors caused by calling an operation in the wrong state.
func IsUserError(err error) bool {
	return errors.Is(err, ErrCaptureInProgress) ||
		errors.Is(err, ErrSessionComplete) ||
		errors.Is(err, ErrPrematureAssembly) ||
		errors.Is(err, ErrSubmitInProgress)
}
