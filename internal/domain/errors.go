package domain

import "fmt"

// Code is the machine-readable error code sent in error events.
type Code string

const (
	CodeQuizNotFound    Code = "QUIZ_NOT_FOUND"
	CodeGameNotFound    Code = "GAME_NOT_FOUND"
	CodePlayerNotFound  Code = "PLAYER_NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeNoPlayers       Code = "NO_PLAYERS"
	CodeAlreadyStarted  Code = "ALREADY_STARTED"
	CodeNotStarted      Code = "NOT_STARTED"
	CodeGameStarted     Code = "GAME_STARTED"
	CodeGameEnded       Code = "GAME_ENDED"
	CodeInvalidNickname Code = "INVALID_NICKNAME"
	CodeNicknameTaken   Code = "NICKNAME_TAKEN"
	CodeInvalidPIN      Code = "INVALID_PIN"
	CodeInvalidMessage  Code = "INVALID_MESSAGE"
	CodeAlreadyJoined   Code = "ALREADY_JOINED"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Error is a rejection scoped to a single inbound event.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on the code so that Errorf variants satisfy errors.Is against
// the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = &Error{Code: CodeQuizNotFound, Message: "quiz not found"}
	// ErrGameNotFound is returned when a PIN does not resolve to a live game.
	ErrGameNotFound = &Error{Code: CodeGameNotFound, Message: "game not found"}
	// ErrPlayerNotFound is returned when a player id is unknown to the game.
	ErrPlayerNotFound = &Error{Code: CodePlayerNotFound, Message: "player not found"}
	// ErrUnauthorized is returned when a non-host issues a host command.
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "not authorized"}
	// ErrNoPlayers rejects starting an empty game.
	ErrNoPlayers = &Error{Code: CodeNoPlayers, Message: "no players in game"}
	// ErrAlreadyStarted rejects a second host:start.
	ErrAlreadyStarted = &Error{Code: CodeAlreadyStarted, Message: "game already started"}
	// ErrNotStarted rejects host:next while still in the lobby.
	ErrNotStarted = &Error{Code: CodeNotStarted, Message: "game has not started"}
	// ErrGameStarted rejects joins after the lobby closed.
	ErrGameStarted = &Error{Code: CodeGameStarted, Message: "game already started"}
	// ErrGameEnded rejects commands against a finished game.
	ErrGameEnded = &Error{Code: CodeGameEnded, Message: "game has ended"}
	// ErrNicknameTaken is case-insensitive within one game.
	ErrNicknameTaken = &Error{Code: CodeNicknameTaken, Message: "nickname already taken"}
	// ErrInvalidPIN rejects malformed PINs before any lookup.
	ErrInvalidPIN = &Error{Code: CodeInvalidPIN, Message: "pin must be 6 digits"}
	// ErrInvalidMessage is returned for frames that cannot be decoded.
	ErrInvalidMessage = &Error{Code: CodeInvalidMessage, Message: "invalid message"}
	// ErrAlreadyJoined rejects a connection that already hosts or plays in a game.
	ErrAlreadyJoined = &Error{Code: CodeAlreadyJoined, Message: "connection already joined a game"}
	// ErrInternal replaces any unexpected failure inside a handler.
	ErrInternal = &Error{Code: CodeInternal, Message: "internal error"}
)
