package feed

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cjeanneret/DualCap/internal/metrics"
	"github.com/cjeanneret/DualCap/internal/model"
)

// maxMomentBytes bounds a POST /bereal body. Photos travel as JSON number
// arrays, roughly four characters per byte.
const maxMomentBytes = 64 << 20

// Server serves the feed API.
type Server struct {
	store   Store
	auth    *Auth
	log     *zap.Logger
	metrics *metrics.Feed
	now     func() time.Time
}

// NewServer wires the handlers. m may be nil.
func NewServer(store Store, auth *Auth, logger *zap.Logger, m *metrics.Feed) *Server {
	return &Server{store: store, auth: auth, log: logger, metrics: m, now: time.Now}
}

// Router returns the chi router. metricsHandler may be nil.
func (s *Server) Router(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(s.log))
	r.Use(RequestLogger(s.log))

	r.Post("/login", s.handleLogin)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.auth, s.log))
		r.Post("/bereal", s.handleCreate)
		r.Get("/bereal", s.handleList)
		r.Get("/bereal/{id}", s.handleGet)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		s.log.Warn("failed to decode login request body", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, exp, err := s.auth.Login(req.Password)
	if s.metrics != nil {
		s.metrics.ObserveLogin(err == nil)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		s.log.Warn("invalid login credentials", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.log.Error("failed to generate JWT token", zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	s.log.Info("login successful")
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expiresAt": exp.UTC()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.MomentInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMomentBytes)).Decode(&in); err != nil {
		s.log.Warn("failed to decode moment", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := in.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.ObserveMoment(err)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := s.store.Create(r.Context(), in, s.now())
	if s.metrics != nil {
		s.metrics.ObserveMoment(err)
	}
	if err != nil {
		s.log.Error("failed to store moment", zap.Error(err))
		http.Error(w, "Failed to store moment", http.StatusInternalServerError)
		return
	}

	s.log.Info("moment created",
		zap.Int64("id", m.ID),
		zap.String("nickname", m.User.Nickname),
		zap.String("subject", Subject(r.Context())),
		zap.Int("front_bytes", len(m.FrontPhoto)),
		zap.Int("back_bytes", len(m.BackPhoto)),
	)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	moments, err := s.store.List(r.Context())
	if err != nil {
		s.log.Error("failed to list moments", zap.Error(err))
		http.Error(w, "Failed to list moments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, moments)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid moment id", http.StatusBadRequest)
		return
	}
	m, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Moment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("failed to get moment", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "Failed to get moment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
