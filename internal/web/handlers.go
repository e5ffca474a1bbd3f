package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/DualCap/internal/debug"
	"github.com/cjeanneret/DualCap/internal/hw/camera"
	"github.com/cjeanneret/DualCap/internal/logic/capture"
	"github.com/cjeanneret/DualCap/internal/logic/photo"
	"github.com/cjeanneret/DualCap/internal/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Station is the capture side used by the handlers (a *capture.Sequencer).
type Station interface {
	Snapshot() capture.Session
	Authorized() bool
	Authorize(ctx context.Context) error
	Capture(ctx context.Context) error
	SetFlash(enabled bool) capture.Session
	Discard() (capture.Session, error)
	Submit(ctx context.Context, up capture.Uploader, meta capture.Metadata) (string, error)
}

// Feed reads moments back from the remote feed (an *api.Client).
type Feed interface {
	ListMoments(ctx context.Context) ([]model.Moment, error)
	GetMoment(ctx context.Context, id int64) (model.Moment, error)
}

// UserFunc returns the logged-in user attached to submissions.
type UserFunc func(ctx context.Context) (model.User, error)

// Settings are the station defaults exposed on GET /config.
type Settings struct {
	FlashEnabled bool    `json:"flash_enabled"`
	Location     string  `json:"location"`
	Quality      float64 `json:"quality"`
	FeedURL      string  `json:"feed_url"`
}

// Deps groups the handler collaborators. Uploader, Feed and User may be nil;
// the matching routes then answer 503.
type Deps struct {
	Station  Station
	Uploader capture.Uploader
	Feed     Feed
	User     UserFunc
	Settings Settings
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	deps        Deps
	runningMu   sync.Mutex
	running     bool
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, deps Deps, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		deps:        deps,
		staticFS:    staticFS,
	}
}

// SessionView is the JSON form of a capture session.
type SessionView struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Facing       string `json:"facing"`
	HasFront     bool   `json:"has_front"`
	HasBack      bool   `json:"has_back"`
	FrontURI     string `json:"front_uri,omitempty"`
	BackURI      string `json:"back_uri,omitempty"`
	Capturing    bool   `json:"capturing"`
	FlashEnabled bool   `json:"flash_enabled"`
	FlashActive  bool   `json:"flash_active"`
	Authorized   bool   `json:"authorized"`
	CanSubmit    bool   `json:"can_submit"`
}

// NewSessionView flattens a session for clients.
func NewSessionView(s capture.Session, authorized bool) SessionView {
	v := SessionView{
		ID:           s.ID,
		State:        s.State().String(),
		Facing:       s.Facing.String(),
		HasFront:     s.Front != nil,
		HasBack:      s.Back != nil,
		Capturing:    s.Capturing,
		FlashEnabled: s.FlashEnabled,
		FlashActive:  s.FlashActive,
		Authorized:   authorized,
		CanSubmit:    s.State() == capture.Complete,
	}
	if s.Front != nil {
		v.FrontURI = s.Front.URI
	}
	if s.Back != nil {
		v.BackURI = s.Back.URI
	}
	return v
}

// FeedItem is a moment without its photo payloads.
type FeedItem struct {
	ID          int64     `json:"id"`
	Nickname    string    `json:"nickname"`
	Location    string    `json:"location,omitempty"`
	DateCreated time.Time `json:"date_created"`
	FrontURL    string    `json:"front_url"`
	BackURL     string    `json:"back_url"`
}

func newFeedItem(m model.Moment) FeedItem {
	base := "/feed/" + strconv.FormatInt(m.ID, 10)
	return FeedItem{
		ID:          m.ID,
		Nickname:    m.User.Nickname,
		Location:    m.Location,
		DateCreated: m.DateCreated,
		FrontURL:    base + "/front.jpg",
		BackURL:     base + "/back.jpg",
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps sequencer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrUploadFailed):
		return http.StatusBadGateway
	case capture.IsUserError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) sessionView() SessionView {
	return NewSessionView(h.deps.Station.Snapshot(), h.deps.Station.Authorized())
}

// HandleConfig returns the station defaults as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Settings)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleSession returns the current session snapshot.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionView())
}

// HandleAuthorize re-requests camera and brightness permission.
func (h *Handlers) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Station.Authorize(r.Context()); err != nil {
		debug.Error(err)
		writeError(w, http.StatusForbidden, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView())
}

// HandleCapture handles POST /capture: it starts the front-then-back
// sequence in the background and answers 202 immediately.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.deps.Station.Authorized() {
		writeError(w, http.StatusForbidden, capture.ErrAuthorizationDenied)
		return
	}
	snap := h.deps.Station.Snapshot()
	if snap.Capturing {
		writeError(w, http.StatusConflict, capture.ErrCaptureInProgress)
		return
	}
	if snap.State() == capture.Complete {
		writeError(w, http.StatusConflict, capture.ErrSessionComplete)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		writeError(w, http.StatusConflict, capture.ErrCaptureInProgress)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		if err := h.deps.Station.Capture(context.Background()); err != nil {
			h.Broadcaster.Broadcast("error", "Capture failed: "+err.Error())
			debug.Error(err)
			return
		}
		h.Broadcaster.Broadcast("info", "Both photos taken")
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type flashRequest struct {
	Enabled *bool `json:"enabled"`
}

// HandleFlash toggles the flash for the next captures.
func (h *Handlers) HandleFlash(w http.ResponseWriter, r *http.Request) {
	var req flashRequest
	if err := decodeBody(w, r, &req); err != nil || req.Enabled == nil {
		http.Error(w, "invalid JSON: expected {\"enabled\": bool}", http.StatusBadRequest)
		return
	}
	snap := h.deps.Station.SetFlash(*req.Enabled)
	writeJSON(w, http.StatusOK, NewSessionView(snap, h.deps.Station.Authorized()))
}

// HandleDiscard resets the session.
func (h *Handlers) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Station.Discard()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(snap, h.deps.Station.Authorized()))
}

type submitRequest struct {
	Location string `json:"location"`
}

// HandleSubmit assembles the pair and uploads it to the feed.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Uploader == nil || h.deps.User == nil {
		http.Error(w, "upload not configured", http.StatusServiceUnavailable)
		return
	}
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Location == "" {
		req.Location = h.deps.Settings.Location
	}

	user, err := h.deps.User(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	id, err := h.deps.Station.Submit(r.Context(), h.deps.Uploader, capture.Metadata{
		User:     user,
		Location: req.Location,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.Broadcaster.Broadcast("info", "Moment "+id+" posted")
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// HandlePhoto serves a photo of the current session.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	facing, err := camera.ParseFacing(r.PathValue("facing"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap := h.deps.Station.Snapshot()
	p := snap.Front
	if facing == camera.Back {
		p = snap.Back
	}
	if p == nil {
		http.Error(w, "no "+facing.String()+" photo", http.StatusNotFound)
		return
	}
	writeJPEG(w, p.Bytes)
}

func writeJPEG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleFeed lists the remote moments, newest first.
func (h *Handlers) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if h.deps.Feed == nil {
		http.Error(w, "feed not configured", http.StatusServiceUnavailable)
		return
	}
	moments, err := h.deps.Feed.ListMoments(r.Context())
	if err != nil {
		debug.Error(err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	items := make([]FeedItem, 0, len(moments))
	for _, m := range moments {
		items = append(items, newFeedItem(m))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) moment(w http.ResponseWriter, r *http.Request) (model.Moment, bool) {
	if h.deps.Feed == nil {
		http.Error(w, "feed not configured", http.StatusServiceUnavailable)
		return model.Moment{}, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid moment id", http.StatusBadRequest)
		return model.Moment{}, false
	}
	m, err := h.deps.Feed.GetMoment(r.Context(), id)
	if err != nil {
		debug.Error(err)
		writeError(w, http.StatusBadGateway, err)
		return model.Moment{}, false
	}
	return m, true
}

// HandleMoment returns one moment without its photo payloads.
func (h *Handlers) HandleMoment(w http.ResponseWriter, r *http.Request) {
	m, ok := h.moment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newFeedItem(m))
}

// HandleMomentImage serves front.jpg, back.jpg or background.jpg (the
// blurred, darkened back photo used behind the details view).
func (h *Handlers) HandleMomentImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("image")
	if name != "front.jpg" && name != "back.jpg" && name != "background.jpg" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	m, ok := h.moment(w, r)
	if !ok {
		return
	}
	switch name {
	case "front.jpg":
		writeJPEG(w, m.FrontPhoto)
	case "back.jpg":
		writeJPEG(w, m.BackPhoto)
	default:
		bg, err := photo.BlurredBackground(m.BackPhoto, 12, 40)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJPEG(w, bg)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
