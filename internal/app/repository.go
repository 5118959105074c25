package app

import (
	"context"
	"errors"

	"live-quiz-service/internal/domain"
)

// ErrPINTaken is returned by SessionRepository.Reserve when the PIN already
// belongs to a live game.
var ErrPINTaken = errors.New("pin already in use")

// SessionRepository abstracts where live rooms are registered (in-memory, Redis, etc).
// Reserve must be atomic: two concurrent reservations of one PIN never both succeed.
type SessionRepository interface {
	Reserve(ctx context.Context, pin string, room *Room) error
	Get(pin string) (*Room, bool)
	Delete(ctx context.Context, pin string)
	List() []*Room
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}
