// Package scoring holds the pure point and ranking rules of a game.
package scoring

import (
	"math"
	"sort"
	"time"
)

// StreakStep is the bonus per consecutive correct answer already held.
const StreakStep = 100

// Input describes one answer to be scored. Streak is the player's streak
// before this answer is applied.
type Input struct {
	Correct         bool
	TimeTakenMs     int64
	TimeLimitMs     int64
	BasePoints      int
	SpeedMultiplier float64
	Streak          int
	StreakBonus     bool
	FirstCorrect    bool
}

// Breakdown itemises the points of a single answer.
type Breakdown struct {
	Base       int `json:"base"`
	Speed      int `json:"speed"`
	Streak     int `json:"streak"`
	FirstBonus int `json:"firstBonus"`
	Total      int `json:"total"`
}

type Result struct {
	Points    int       `json:"points"`
	Breakdown Breakdown `json:"breakdown"`
}

// CalculateScore maps an answer to points. Incorrect answers score zero in
// every component. A non-positive time limit yields no speed bonus.
// Fractional speed and first-answer bonuses round up.
func CalculateScore(in Input) Result {
	if !in.Correct {
		return Result{}
	}

	b := Breakdown{Base: in.BasePoints}

	if in.TimeLimitMs > 0 {
		remaining := in.TimeLimitMs - in.TimeTakenMs
		if remaining < 0 {
			remaining = 0
		}
		speed := float64(remaining) * float64(in.BasePoints) * in.SpeedMultiplier / float64(in.TimeLimitMs)
		b.Speed = int(math.Ceil(speed))
	}

	if in.StreakBonus && in.Streak > 0 {
		b.Streak = in.Streak * StreakStep
	}

	if in.FirstCorrect {
		b.FirstBonus = int(math.Ceil(float64(in.BasePoints) / 2))
	}

	b.Total = b.Base + b.Speed + b.Streak + b.FirstBonus
	return Result{Points: b.Total, Breakdown: b}
}

// Standing is the per-player input to CalculateLeaderboard.
type Standing struct {
	PlayerID     string
	Nickname     string
	Avatar       string
	Score        int
	Streak       int
	Connected    bool
	LastAnswerAt time.Time // zero means the player never answered
	PreviousRank int       // zero means no previous ranking
}

// Movement describes how a rank changed since the previous leaderboard.
type Movement string

const (
	MovementUp   Movement = "up"
	MovementDown Movement = "down"
	MovementSame Movement = "same"
)

type LeaderboardEntry struct {
	PlayerID     string   `json:"id"`
	Nickname     string   `json:"nickname"`
	Avatar       string   `json:"avatar,omitempty"`
	Score        int      `json:"score"`
	Streak       int      `json:"streak"`
	Connected    bool     `json:"connected"`
	Rank         int      `json:"rank"`
	PreviousRank int      `json:"previousRank"`
	Movement     Movement `json:"movement"`
}

// CalculateLeaderboard orders players by score descending, breaking ties by
// the earliest last answer. Players that never answered lose ties. Ranks are
// 1-based positions after sorting; equal keys keep their input order.
func CalculateLeaderboard(standings []Standing) []LeaderboardEntry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.LastAnswerAt.IsZero():
			return false
		case b.LastAnswerAt.IsZero():
			return true
		default:
			return a.LastAnswerAt.Before(b.LastAnswerAt)
		}
	})

	entries := make([]LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		rank := i + 1
		previous := s.PreviousRank
		if previous == 0 {
			previous = rank
		}
		entries[i] = LeaderboardEntry{
			PlayerID:     s.PlayerID,
			Nickname:     s.Nickname,
			Avatar:       s.Avatar,
			Score:        s.Score,
			Streak:       s.Streak,
			Connected:    s.Connected,
			Rank:         rank,
			PreviousRank: previous,
			Movement:     RankChange(rank, previous),
		}
	}
	return entries
}

// RankChange compares a rank against the previous one; a smaller rank is
// an improvement.
func RankChange(current, previous int) Movement {
	switch {
	case previous > current:
		return MovementUp
	case previous < current:
		return MovementDown
	default:
		return MovementSame
	}
}
