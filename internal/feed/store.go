// Package feed is a small reference backend for the moment feed: login,
// post a moment, list and fetch moments.
package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cjeanneret/DualCap/internal/model"
)

// ErrNotFound is returned when no moment has the requested id.
var ErrNotFound = errors.New("feed: moment not found")

// Store persists moments. Ids are assigned by the store, starting at 1.
type Store interface {
	Create(ctx context.Context, in model.MomentInput, now time.Time) (model.Moment, error)
	List(ctx context.Context) ([]model.Moment, error) // newest first
	Get(ctx context.Context, id int64) (model.Moment, error)
}

// MemoryStore keeps moments in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	lastID  int64
	moments map[int64]model.Moment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{moments: make(map[int64]model.Moment)}
}

func (s *MemoryStore) Create(ctx context.Context, in model.MomentInput, now time.Time) (model.Moment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	m := model.Moment{
		ID:          s.lastID,
		User:        in.User,
		FrontPhoto:  append(model.ByteArray(nil), in.FrontPhoto...),
		BackPhoto:   append(model.ByteArray(nil), in.BackPhoto...),
		Location:    in.Location,
		DateCreated: now.UTC(),
	}
	s.moments[m.ID] = m
	return m, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Moment, error) {
	s.mu.RLock()
	out := make([]model.Moment, 0, len(s.moments))
	for _, m := range s.moments {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].DateCreated.After(out[j].DateCreated)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (model.Moment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.moments[id]
	if !ok {
		return model.Moment{}, ErrNotFound
	}
	return m, nil
}
