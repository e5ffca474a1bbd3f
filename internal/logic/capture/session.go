package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/DualCap/internal/hw/camera"
	"github.com/cjeanneret/DualCap/internal/model"
)

// State is derived from the session fields.
type State int

const (
	IdleFront State = iota
	CapturingFront
	IdleBack
	CapturingBack
	Complete
)

func (s State) String() string {
	switch s {
	case IdleFront:
		return "IDLE_FRONT"
	case CapturingFront:
		return "CAPTURING_FRONT"
	case IdleBack:
		return "IDLE_BACK"
	case CapturingBack:
		return "CAPTURING_BACK"
	case Complete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Photo is one successful shutter action. Bytes is never empty when URI is set.
type Photo struct {
	URI     string
	Bytes   []byte
	Facing  camera.Facing
	TakenAt time.Time
}

// Session is the transient state of one dual capture.
type Session struct {
	ID              string
	Facing          camera.Facing
	Front           *Photo
	Back            *Photo
	Capturing       bool
	FlashEnabled    bool
	FlashActive     bool
	SavedBrightness *float64
}

// NewSession returns a session in IDLE_FRONT.
func NewSession(flashEnabled bool) Session {
	return Session{
		ID:           uuid.NewString(),
		Facing:       camera.Front,
		FlashEnabled: flashEnabled,
	}
}

// State derives the sequencer state.
func (s Session) State() State {
	switch {
	case s.Front != nil && s.Back != nil:
		return Complete
	case s.Front == nil && s.Capturing:
		return CapturingFront
	case s.Front == nil:
		return IdleFront
	case s.Capturing:
		return CapturingBack
	default:
		return IdleBack
	}
}

// pristine reports whether the session holds nothing worth discarding.
func (s Session) pristine() bool {
	return s.Front == nil && s.Back == nil && s.Facing == camera.Front &&
		!s.Capturing && !s.FlashActive && s.SavedBrightness == nil
}

// Metadata is supplied by the caller when assembling a pair.
type Metadata struct {
	User     model.User
	Location string
}

// Pair is the assembled result of a complete session.
type Pair struct {
	Front    []byte
	Back     []byte
	FrontURI string
	BackURI  string
	TakenAt  time.Time
	User     model.User
	Location string
}

// Input converts the pair to the upload body.
func (p Pair) Input() model.MomentInput {
	return model.MomentInput{
		User:       p.User,
		FrontPhoto: model.ByteArray(p.Front),
		BackPhoto:  model.ByteArray(p.Back),
		Location:   p.Location,
	}
}

// assemble is a pure function of the two photos and the metadata.
func assemble(s Session, meta Metadata) (Pair, error) {
	if s.State() != Complete {
		return Pair{}, fmt.Errorf("%w (state %s)", ErrPrematureAssembly, s.State())
	}
	return Pair{
		Front:    append([]byte(nil), s.Front.Bytes...),
		Back:     append([]byte(nil), s.Back.Bytes...),
		FrontURI: s.Front.URI,
		BackURI:  s.Back.URI,
		TakenAt:  s.Front.TakenAt,
		User:     meta.User,
		Location: meta.Location,
	}, nil
}

type eventKind int

const (
	evTrigger eventKind = iota
	evShot
	evShotFailed
	evDiscard
	evSubmitted
)

type event struct {
	kind  eventKind
	photo *Photo
}

type action int

const (
	actNone action = iota
	actShoot
)

// next is the single transition function of the sequencer. It never mutates
// its input and returns the follow-up action the caller must run.
func next(s Session, ev event) (Session, action, error) {
	switch ev.kind {
	case evTrigger:
		if s.Capturing {
			return s, actNone, ErrCaptureInProgress
		}
		if s.State() == Complete {
			return s, actNone, ErrSessionComplete
		}
		s.Capturing = true
		return s, actShoot, nil

	case evShot:
		if !s.Capturing || ev.photo == nil {
			return s, actNone, fmt.Errorf("capture: unexpected shot in state %s", s.State())
		}
		if s.Facing == camera.Front {
			s.Front = ev.photo
			s.Facing = s.Facing.Opposite()
			if s.Back == nil {
				// The back shot starts in the same transition: no IDLE_BACK
				// window in which another caller could reset the session.
				return s, actShoot, nil
			}
			s.Capturing = false
			return s, actNone, nil
		}
		s.Capturing = false
		s.Back = ev.photo
		return s, actNone, nil

	case evShotFailed:
		s.Capturing = false
		return s, actNone, nil

	case evDiscard:
		if s.Capturing {
			return s, actNone, ErrCaptureInProgress
		}
		if s.pristine() {
			return s, actNone, nil
		}
		return NewSession(s.FlashEnabled), actNone, nil

	case evSubmitted:
		return NewSession(s.FlashEnabled), actNone, nil
	}
	return s, actNone, fmt.Errorf("capture: unknown event %d", ev.kind)
}
