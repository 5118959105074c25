package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository keyed by PIN.
type SessionStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		rooms: make(map[string]*app.Room),
	}
}

func (s *SessionStore) Reserve(_ context.Context, pin string, room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[pin]; ok {
		return app.ErrPINTaken
	}
	s.rooms[pin] = room
	return nil
}

func (s *SessionStore) Get(pin string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[pin]
	return room, ok
}

func (s *SessionStore) Delete(_ context.Context, pin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, pin)
}

func (s *SessionStore) List() []*app.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
