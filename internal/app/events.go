package app

import (
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
	"live-quiz-service/internal/scoring"
)

// Outbound event types.
const (
	EventGameCreated       = "game:created"
	EventGameJoined        = "game:joined"
	EventGameRejoined      = "game:rejoined"
	EventHostRejoined      = "game:host_rejoined"
	EventGameEnded         = "game:ended"
	EventLobbyUpdate       = "lobby:update"
	EventQuestionStart     = "question:start"
	EventQuestionResults   = "question:results"
	EventLeaderboardUpdate = "leaderboard:update"
	EventLeaderboardYou    = "leaderboard:you"
	EventAnswerAccepted    = "answer:accepted"
	EventAnswerRejected    = "answer:rejected"
	EventAnswerCount       = "answer:count"
	EventPlayerLeft        = "player:disconnected"
	EventPlayerBack        = "player:reconnected"
	EventHostLeft          = "host:disconnected"
	EventHostBack          = "host:reconnected"
	EventHeartbeat         = "heartbeat"
	EventError             = "error"
)

// Answer rejection reasons carried by answer:rejected.
const (
	ReasonPlayerUnavailable = "PLAYER_UNAVAILABLE"
	ReasonStaleQuestion     = "STALE_QUESTION"
	ReasonQuestionClosed    = "QUESTION_CLOSED"
	ReasonDuplicateAnswer   = "DUPLICATE_ANSWER"
)

// Event is one outbound message. Payload is marshalled as-is by the transport.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type GameCreated struct {
	GameID   string             `json:"gameId"`
	PIN      string             `json:"pin"`
	HostKey  string             `json:"hostKey"`
	Quiz     domain.QuizSummary `json:"quiz"`
	Settings game.Settings      `json:"settings"`
}

type GameJoined struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	GameID   string `json:"gameId"`
	PIN      string `json:"pin"`
	Avatar   string `json:"avatar"`
}

type LobbyUpdate struct {
	PlayerCount int               `json:"playerCount"`
	Players     []game.PublicInfo `json:"players"`
}

// QuestionStart describes an open question. The answer key is only filled
// in for the host.
type QuestionStart struct {
	QuestionID     string              `json:"questionId"`
	QuestionNumber int                 `json:"questionNumber"`
	TotalQuestions int                 `json:"totalQuestions"`
	Type           domain.QuestionType `json:"type"`
	Text           string              `json:"text"`
	ImageURL       string              `json:"imageUrl,omitempty"`
	Options        []string            `json:"options,omitempty"`
	TimeLimitSec   int                 `json:"timeLimitSec"`
	CorrectIndex   *int                `json:"correctIndex,omitempty"`
	CorrectText    string              `json:"correctText,omitempty"`
}

type AnswerAccepted struct {
	QuestionID  string `json:"questionId"`
	IsCorrect   bool   `json:"isCorrect"`
	Provisional bool   `json:"provisional"`
	Replaced    bool   `json:"replaced"`
}

type AnswerRejected struct {
	QuestionID string `json:"questionId"`
	Reason     string `json:"reason"`
}

type AnswerCount struct {
	QuestionID string `json:"questionId"`
	Answered   int    `json:"answered"`
	Total      int    `json:"total"`
}

type LeaderboardUpdate struct {
	QuestionNumber int                        `json:"questionNumber"`
	TotalQuestions int                        `json:"totalQuestions"`
	IsFinal        bool                       `json:"isFinal"`
	Leaderboard    []scoring.LeaderboardEntry `json:"leaderboard"`
}

// PlayerStanding is the leaderboard:you payload.
type PlayerStanding struct {
	Rank         int              `json:"rank"`
	Score        int              `json:"score"`
	Nickname     string           `json:"nickname"`
	Streak       int              `json:"streak"`
	PreviousRank int              `json:"previousRank"`
	Movement     scoring.Movement `json:"movement"`
	TotalPlayers int              `json:"totalPlayers"`
}

type GameEnded struct {
	Leaderboard []scoring.LeaderboardEntry `json:"leaderboard"`
}

type PlayerPresence struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

type GameRejoined struct {
	PlayerID             string      `json:"playerId"`
	Nickname             string      `json:"nickname"`
	Avatar               string      `json:"avatar"`
	Score                int         `json:"score"`
	GameStatus           game.Status `json:"gameStatus"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
}

type HostRejoined struct {
	GameID               string                     `json:"gameId"`
	PIN                  string                     `json:"pin"`
	Quiz                 domain.QuizSummary         `json:"quiz"`
	GameStatus           game.Status                `json:"gameStatus"`
	CurrentQuestionIndex int                        `json:"currentQuestionIndex"`
	Players              []game.PublicInfo          `json:"players"`
	Leaderboard          []scoring.LeaderboardEntry `json:"leaderboard"`
}

type HeartbeatReply struct {
	Time int64 `json:"time"`
}

type ErrorPayload struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

func questionStart(q domain.Question, number, total int, withAnswer bool) QuestionStart {
	payload := QuestionStart{
		QuestionID:     q.ID,
		QuestionNumber: number,
		TotalQuestions: total,
		Type:           q.Type(),
		Text:           q.Text,
		ImageURL:       q.ImageURL,
		Options:        q.Options(),
		TimeLimitSec:   q.TimeLimitSec,
	}
	if withAnswer {
		if idx, ok := q.CorrectIndex(); ok {
			payload.CorrectIndex = &idx
		}
		if text, ok := q.CorrectText(); ok {
			payload.CorrectText = text
		}
	}
	return payload
}

func publicPlayers(s *game.Session) []game.PublicInfo {
	players := s.Players()
	out := make([]game.PublicInfo, 0, len(players))
	for _, p := range players {
		out = append(out, p.PublicInfo())
	}
	return out
}
