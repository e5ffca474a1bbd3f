package web

import (
	"github.com/cjeanneret/DualCap/internal/logic/capture"
)

// Overlay renders the flash overlay on connected browsers.
type Overlay struct {
	b *StatusBroadcaster
}

// NewOverlay returns a capture.Overlay backed by the status stream.
func NewOverlay(b *StatusBroadcaster) *Overlay {
	return &Overlay{b: b}
}

func (o *Overlay) Show() { o.b.Publish(KindOverlay, "", "show", nil) }
func (o *Overlay) Hide() { o.b.Publish(KindOverlay, "", "hide", nil) }

// Notifier forwards sequencer events to the status stream.
// authorized is read at emit time so the view reflects the latest grant.
func Notifier(b *StatusBroadcaster, authorized func() bool) func(capture.Event) {
	return func(ev capture.Event) {
		view := NewSessionView(ev.Session, authorized())
		switch ev.Kind {
		case capture.EventError:
			msg := ""
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			b.Publish(KindSession, "error", msg, view)
		default:
			b.Publish(KindSession, "info", string(ev.Kind), view)
		}
	}
}
