package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/domain"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/store"
)

// ErrNotFound is returned for sessions the store does not know.
var ErrNotFound = errors.New("session not found")

type subscriber struct {
	ch chan store.Session
}

// Service applies game operations to stored sessions and notifies
// subscribers of every change.
type Service struct {
	log   zerolog.Logger
	store store.Store
	now   func() time.Time

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewService creates a service over st.
func NewService(st store.Store, log zerolog.Logger) *Service {
	return &Service{
		log:   log.With().Str("component", "app").Logger(),
		store: st,
		now:   time.Now,
		subs:  make(map[string]map[*subscriber]struct{}),
	}
}

// Open returns the session for id, starting a new game under that id when the
// store has none. An empty id mints a fresh one.
func (s *Service) Open(ctx context.Context, id string) (*store.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, store.ErrCorrupt):
		// unreadable sessions are replaced by a fresh game
		s.log.Warn().Str("session", id).Err(err).Msg("discarding corrupt session")
		if err = s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to discard session: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	now := s.now()
	sess = &store.Session{ID: id, State: domain.New(), Rev: 1, Created: now, Updated: now}
	if err = s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.log.Debug().Str("session", id).Msg("session started")
	return sess, nil
}

// Get returns the session for id.
func (s *Service) Get(ctx context.Context, id string) (*store.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// Play applies a move at cell. A rejected move returns the unchanged session
// together with the domain error.
func (s *Service) Play(ctx context.Context, id string, cell int) (*store.Session, error) {
	return s.update(ctx, id, func(st domain.State) (domain.State, error) {
		return st.ApplyMove(cell)
	})
}

// JumpTo selects a history step.
func (s *Service) JumpTo(ctx context.Context, id string, step int) (*store.Session, error) {
	return s.update(ctx, id, func(st domain.State) (domain.State, error) {
		return st.JumpTo(step)
	})
}

// ToggleSort flips the move-list order.
func (s *Service) ToggleSort(ctx context.Context, id string) (*store.Session, error) {
	return s.update(ctx, id, func(st domain.State) (domain.State, error) {
		return st.ToggleSort(), nil
	})
}

func (s *Service) update(ctx context.Context, id string, apply func(domain.State) (domain.State, error)) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	next, err := apply(sess.State)
	if err != nil {
		s.log.Debug().Str("session", id).Err(err).Msg("operation rejected")
		return sess, err
	}

	sess.State = next
	sess.Rev++
	sess.Updated = s.now()
	if err = s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	cp := *sess
	if dropped := s.broadcastLocked(id, cp); dropped > 0 {
		s.log.Debug().Str("session", id).Int("dropped", dropped).Msg("dropped slow subscribers")
	}
	return &cp, nil
}

// broadcastLocked offers sess to every subscriber of id without blocking.
// Subscribers with a full buffer are closed and removed.
func (s *Service) broadcastLocked(id string, sess store.Session) int {
	dropped := 0
	for sub := range s.subs[id] {
		select {
		case sub.ch <- sess:
		default:
			s.removeLocked(id, sub)
			dropped++
		}
	}
	return dropped
}

// removeLocked closes sub and forgets it. Removing an unknown subscriber is
// a no-op, so every channel is closed exactly once.
func (s *Service) removeLocked(id string, sub *subscriber) {
	set, ok := s.subs[id]
	if !ok {
		return
	}
	if _, ok = set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(s.subs, id)
	}
}

// Subscribe registers for updates to a session. The channel is closed when
// ctx ends, the returned func is called, or the subscriber falls behind.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan store.Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan store.Session, 1)}
	set[sub] = struct{}{}

	remove := func() {
		s.mu.Lock()
		s.removeLocked(id, sub)
		s.mu.Unlock()
	}
	stop := context.AfterFunc(ctx, remove)
	return sub.ch, func() {
		stop()
		remove()
	}
}
