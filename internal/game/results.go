package game

import (
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

// Results is broadcast when a question is revealed.
type Results struct {
	QuestionID     string         `json:"questionId"`
	QuestionNumber int            `json:"questionNumber"`
	TotalAnswers   int            `json:"totalAnswers"`
	OptionCounts   map[int]int    `json:"optionCounts,omitempty"`
	CorrectAnswer  any            `json:"correctAnswer"`
	Players        []PlayerResult `json:"players"`
}

// PlayerResult is one line of the per-player breakdown. Score and Streak
// are the totals after this question was applied.
type PlayerResult struct {
	PlayerID     string            `json:"playerId"`
	Nickname     string            `json:"nickname"`
	Answered     bool              `json:"answered"`
	Answer       domain.Answer     `json:"answer"`
	Correct      bool              `json:"correct"`
	FirstCorrect bool              `json:"firstCorrect"`
	ElapsedMs    int64             `json:"elapsedMs"`
	Points       int               `json:"points"`
	Breakdown    scoring.Breakdown `json:"breakdown"`
	Score        int               `json:"score"`
	Streak       int               `json:"streak"`
}

// ForPlayer returns the breakdown line of one player.
func (r Results) ForPlayer(playerID string) (PlayerResult, bool) {
	for _, pr := range r.Players {
		if pr.PlayerID == playerID {
			return pr, true
		}
	}
	return PlayerResult{}, false
}
