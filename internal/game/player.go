package game

import (
	"time"

	"live-quiz-service/internal/domain"
)

// LastAnswer is the most recent answer a player submitted.
type LastAnswer struct {
	QuestionID   string        `json:"questionId"`
	Answer       domain.Answer `json:"answer"`
	ElapsedMs    int64         `json:"elapsedMs"`
	SubmittedAt  time.Time     `json:"submittedAt"`
	Correct      bool          `json:"correct"`
	FirstCorrect bool          `json:"firstCorrect"`
}

// Player is owned by exactly one Session.
type Player struct {
	ID         string
	Nickname   string
	Avatar     string
	ConnID     string
	Score      int
	Streak     int
	LastAnswer *LastAnswer
	Connected  bool
	JoinedAt   time.Time

	previousRank int
}

func NewPlayer(id, nickname, connID string, joinedAt time.Time) *Player {
	return &Player{
		ID:        id,
		Nickname:  nickname,
		ConnID:    connID,
		Connected: true,
		JoinedAt:  joinedAt,
	}
}

// award applies a scored answer. Points are never negative so the score
// only grows.
func (p *Player) award(points int, correct bool) {
	if points > 0 {
		p.Score += points
	}
	if correct {
		p.Streak++
	} else {
		p.Streak = 0
	}
}

func (p *Player) Disconnect() {
	p.Connected = false
}

func (p *Player) Reconnect(connID string) {
	p.ConnID = connID
	p.Connected = true
}

// PublicInfo is what other participants may see about a player.
type PublicInfo struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar,omitempty"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

func (p *Player) PublicInfo() PublicInfo {
	return PublicInfo{
		ID:        p.ID,
		Nickname:  p.Nickname,
		Avatar:    p.Avatar,
		Score:     p.Score,
		Connected: p.Connected,
	}
}
