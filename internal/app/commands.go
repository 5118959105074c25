package app

import (
	"encoding/json"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
)

// Command is an inbound client message. The set of implementations is closed;
// Registry.Handle switches over every one of them.
type Command interface {
	command()
}

// Inbound event types.
const (
	CommandCreateGame    = "host:create_game"
	CommandStartGame     = "host:start"
	CommandNextQuestion  = "host:next"
	CommandEndGame       = "host:end"
	CommandHostReconnect = "host:reconnect"
	CommandJoinGame      = "player:join"
	CommandSubmitAnswer  = "player:answer"
	CommandRejoin        = "player:reconnect"
	CommandHeartbeat     = "heartbeat"
)

type CreateGame struct {
	QuizID   string          `json:"quizId"`
	Settings *game.Overrides `json:"settings,omitempty"`
}

type StartGame struct {
	PIN string `json:"pin"`
}

type NextQuestion struct {
	PIN string `json:"pin"`
}

type EndGame struct {
	PIN string `json:"pin"`
}

// HostReconnect rebinds a host connection using the key handed out in
// game:created.
type HostReconnect struct {
	PIN     string `json:"pin"`
	HostKey string `json:"hostKey"`
}

type JoinGame struct {
	PIN      string `json:"pin"`
	Nickname string `json:"nickname"`
}

type SubmitAnswer struct {
	QuestionID string        `json:"questionId"`
	Answer     domain.Answer `json:"answer"`
}

type Rejoin struct {
	PIN      string `json:"pin"`
	PlayerID string `json:"playerId"`
}

type Heartbeat struct{}

func (CreateGame) command()    {}
func (StartGame) command()     {}
func (NextQuestion) command()  {}
func (EndGame) command()       {}
func (HostReconnect) command() {}
func (JoinGame) command()      {}
func (SubmitAnswer) command()  {}
func (Rejoin) command()        {}
func (Heartbeat) command()     {}

// ParseCommand decodes the payload of an inbound event of the given type.
// An empty payload decodes to the zero command.
func ParseCommand(kind string, payload json.RawMessage) (Command, error) {
	var cmd Command
	switch kind {
	case CommandCreateGame:
		cmd = &CreateGame{}
	case CommandStartGame:
		cmd = &StartGame{}
	case CommandNextQuestion:
		cmd = &NextQuestion{}
	case CommandEndGame:
		cmd = &EndGame{}
	case CommandHostReconnect:
		cmd = &HostReconnect{}
	case CommandJoinGame:
		cmd = &JoinGame{}
	case CommandSubmitAnswer:
		cmd = &SubmitAnswer{}
	case CommandRejoin:
		cmd = &Rejoin{}
	case CommandHeartbeat:
		return Heartbeat{}, nil
	default:
		return nil, domain.Errorf(domain.CodeInvalidMessage, "unsupported event %q", kind)
	}

	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, cmd); err != nil {
			return nil, domain.Errorf(domain.CodeInvalidMessage, "invalid %s payload", kind)
		}
	}

	switch c := cmd.(type) {
	case *CreateGame:
		return *c, nil
	case *StartGame:
		return *c, nil
	case *NextQuestion:
		return *c, nil
	case *EndGame:
		return *c, nil
	case *HostReconnect:
		return *c, nil
	case *JoinGame:
		return *c, nil
	case *SubmitAnswer:
		return *c, nil
	case *Rejoin:
		return *c, nil
	}
	return cmd, nil
}
