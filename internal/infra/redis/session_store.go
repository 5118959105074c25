package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Rooms themselves live in a local map; game state is never shared between processes.
//   - Redis holds one key per live PIN, claimed with SETNX, so two instances
//     pointed at the same Redis never hand out the same PIN.
//   - Keys expire after ttl (the maximum game age) even if a process dies without cleaning up.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

type pinClaim struct {
	GameID    string    `json:"gameId"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *SessionStore) Reserve(ctx context.Context, pin string, room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[pin]; ok {
		return app.ErrPINTaken
	}

	claim, err := json.Marshal(pinClaim{GameID: room.GameID(), CreatedAt: room.CreatedAt()})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(pin), claim, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim pin: %w", err)
	}
	if !ok {
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

func (s *SessionStore) Delete(ctx context.Context, pin string) {
	s.mu.Lock()
	delete(s.rooms, pin)
	s.mu.Unlock()
	// best-effort; the key expires on its own
	if err := s.client.Del(ctx, s.key(pin)).Err(); err != nil {
		log.Printf("redis release pin %s: %v", pin, err)
	}
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

func (s *SessionStore) key(pin string) string {
	return "quiz:session:" + pin
}
