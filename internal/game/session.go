// Package game implements the per-game state machine:
// lobby -> question -> reveal -> leaderboard -> question | ended.
package game

import (
	"errors"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

type Status string

const (
	StatusLobby       Status = "lobby"
	StatusQuestion    Status = "question"
	StatusReveal      Status = "reveal"
	StatusLeaderboard Status = "leaderboard"
	StatusEnded       Status = "ended"
)

// Answer rejections. They are ordinary results of SubmitAnswer, not faults.
var (
	ErrPlayerUnavailable = errors.New("player not found or disconnected")
	ErrStaleQuestion     = errors.New("answer is for a different question")
	ErrQuestionClosed    = errors.New("question is not accepting answers")
	ErrDuplicateAnswer   = errors.New("answer already submitted")
)

var (
	// ErrQuestionOpen is returned by StartQuestion while a question is
	// still accepting answers.
	ErrQuestionOpen = errors.New("current question is still open")
	// ErrNoMoreQuestions means the quiz is exhausted and the session ended.
	ErrNoMoreQuestions = errors.New("no more questions")
)

// AnswerRecord is one entry of a question ledger.
type AnswerRecord struct {
	PlayerID     string
	QuestionID   string
	Answer       domain.Answer
	ElapsedMs    int64
	SubmittedAt  time.Time
	Correct      bool
	FirstCorrect bool
}

// Receipt is returned for an accepted answer. FirstCorrect is provisional:
// the bonus is settled when the question ends.
type Receipt struct {
	QuestionID   string
	Correct      bool
	FirstCorrect bool
	ElapsedMs    int64
	Replaced     bool
}

type Option func(*Session)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one run of a quiz. It is not safe for concurrent use; the
// registry serialises every call for a given session.
type Session struct {
	id       string
	pin      string
	quiz     domain.Quiz
	hostID   string
	settings Settings

	status        Status
	currentIndex  int
	questionStart time.Time
	createdAt     time.Time
	now           func() time.Time

	players map[string]*Player
	order   []string
	answers map[string]map[string]*AnswerRecord
	results map[string]Results
}

func NewSession(id, pin string, quiz domain.Quiz, hostID string, settings Settings, opts ...Option) *Session {
	s := &Session{
		id:           id,
		pin:          pin,
		quiz:         quiz,
		hostID:       hostID,
		settings:     settings,
		status:       StatusLobby,
		currentIndex: -1,
		now:          time.Now,
		players:      make(map[string]*Player),
		answers:      make(map[string]map[string]*AnswerRecord),
		results:      make(map[string]Results),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) PIN() string               { return s.pin }
func (s *Session) Quiz() domain.Quiz         { return s.quiz }
func (s *Session) Settings() Settings        { return s.settings }
func (s *Session) Status() Status            { return s.status }
func (s *Session) CurrentQuestionIndex() int { return s.currentIndex }
func (s *Session) CreatedAt() time.Time      { return s.createdAt }
func (s *Session) QuestionCount() int        { return len(s.quiz.Questions) }

// HostID is the connection identity allowed to issue host commands.
func (s *Session) HostID() string { return s.hostID }

func (s *Session) SetHost(id string) { s.hostID = id }

// CurrentQuestion returns the question at the cursor, if any.
func (s *Session) CurrentQuestion() (domain.Question, bool) {
	if s.currentIndex < 0 || s.currentIndex >= len(s.quiz.Questions) {
		return domain.Question{}, false
	}
	return s.quiz.Questions[s.currentIndex], true
}

// QuestionStartedAt is when the current question opened.
func (s *Session) QuestionStartedAt() time.Time { return s.questionStart }

// AddPlayer admits a player while the lobby is open, or at any point before
// the end when late joins are allowed.
func (s *Session) AddPlayer(p *Player) error {
	if s.status == StatusEnded {
		return domain.ErrGameEnded
	}
	if s.status != StatusLobby && !s.settings.LateJoin {
		return domain.ErrGameStarted
	}
	if s.NicknameTaken(p.Nickname) {
		return domain.ErrNicknameTaken
	}
	if _, exists := s.players[p.ID]; exists {
		return errors.New("duplicate player id")
	}
	s.players[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

func (s *Session) RemovePlayer(id string) {
	if _, ok := s.players[id]; !ok {
		return
	}
	delete(s.players, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Session) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players returns the players in join order.
func (s *Session) Players() []*Player {
	out := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

func (s *Session) PlayerCount() int { return len(s.players) }

// NicknameTaken compares case-insensitively.
func (s *Session) NicknameTaken(nickname string) bool {
	for _, p := range s.players {
		if strings.EqualFold(p.Nickname, nickname) {
			return true
		}
	}
	return false
}

// StartQuestion advances the cursor and opens the next question. When the
// quiz is exhausted the session ends and ErrNoMoreQuestions is returned.
func (s *Session) StartQuestion() (domain.Question, error) {
	switch s.status {
	case StatusEnded:
		return domain.Question{}, domain.ErrGameEnded
	case StatusQuestion:
		return domain.Question{}, ErrQuestionOpen
	}

	next := s.currentIndex + 1
	if next >= len(s.quiz.Questions) {
		s.currentIndex = len(s.quiz.Questions)
		s.status = StatusEnded
		return domain.Question{}, ErrNoMoreQuestions
	}

	s.currentIndex = next
	s.status = StatusQuestion
	s.questionStart = s.now()

	question := s.quiz.Questions[next]
	if _, ok := s.answers[question.ID]; !ok {
		s.answers[question.ID] = make(map[string]*AnswerRecord)
	}
	return question, nil
}

// SubmitAnswer records an answer for the open question. Scores are not
// touched here; they are applied once in EndQuestion.
func (s *Session) SubmitAnswer(playerID, questionID string, answer domain.Answer) (Receipt, error) {
	player, ok := s.players[playerID]
	if !ok || !player.Connected {
		return Receipt{}, ErrPlayerUnavailable
	}

	question, ok := s.CurrentQuestion()
	if !ok || question.ID != questionID {
		return Receipt{}, ErrStaleQuestion
	}

	if s.status != StatusQuestion {
		return Receipt{}, ErrQuestionClosed
	}

	ledger := s.answers[questionID]
	_, replaced := ledger[playerID]
	if replaced && !s.settings.AllowAnswerChange {
		return Receipt{}, ErrDuplicateAnswer
	}

	now := s.now()
	correct := question.IsCorrectAnswer(answer)
	firstCorrect := correct
	if correct {
		for pid, rec := range ledger {
			if pid != playerID && rec.Correct {
				firstCorrect = false
				break
			}
		}
	}

	rec := &AnswerRecord{
		PlayerID:     playerID,
		QuestionID:   questionID,
		Answer:       answer,
		ElapsedMs:    now.Sub(s.questionStart).Milliseconds(),
		SubmittedAt:  now,
		Correct:      correct,
		FirstCorrect: firstCorrect,
	}
	ledger[playerID] = rec
	player.LastAnswer = &LastAnswer{
		QuestionID:   questionID,
		Answer:       answer,
		ElapsedMs:    rec.ElapsedMs,
		SubmittedAt:  now,
		Correct:      correct,
		FirstCorrect: firstCorrect,
	}

	return Receipt{
		QuestionID:   questionID,
		Correct:      correct,
		FirstCorrect: firstCorrect,
		ElapsedMs:    rec.ElapsedMs,
		Replaced:     replaced,
	}, nil
}

// AnswerCount is the number of ledger entries for a question.
func (s *Session) AnswerCount(questionID string) int {
	return len(s.answers[questionID])
}

// EndQuestion seals the open question, scores its ledger and moves to
// reveal. It reports false without side effects when no question is open,
// so a timeout racing a manual advance is harmless.
func (s *Session) EndQuestion() (Results, bool) {
	if s.status != StatusQuestion {
		return Results{}, false
	}
	question, ok := s.CurrentQuestion()
	if !ok {
		return Results{}, false
	}

	s.rememberRanks()
	results := s.calculateResults(question)
	s.results[question.ID] = results
	s.status = StatusReveal
	return results, true
}

// Results returns the settled results of a question that has ended.
func (s *Session) Results(questionID string) (Results, bool) {
	r, ok := s.results[questionID]
	return r, ok
}

func (s *Session) calculateResults(question domain.Question) Results {
	ledger := s.answers[question.ID]

	results := Results{
		QuestionID:     question.ID,
		QuestionNumber: s.currentIndex + 1,
		TotalAnswers:   len(ledger),
		CorrectAnswer:  question.CorrectAnswer(),
	}

	if question.IsChoice() {
		options := question.Options()
		results.OptionCounts = make(map[int]int, len(options))
		for i := range options {
			results.OptionCounts[i] = 0
		}
		for _, rec := range ledger {
			if idx, ok := rec.Answer.Index(); ok && idx >= 0 && idx < len(options) {
				results.OptionCounts[idx]++
			}
		}
	}

	first := s.firstCorrect(ledger)
	limitMs := question.TimeLimitMs()

	for _, id := range s.order {
		player := s.players[id]
		rec, answered := ledger[id]
		pr := PlayerResult{
			PlayerID: id,
			Nickname: player.Nickname,
			Answered: answered,
		}
		if answered {
			score := scoring.CalculateScore(scoring.Input{
				Correct:         rec.Correct,
				TimeTakenMs:     rec.ElapsedMs,
				TimeLimitMs:     limitMs,
				BasePoints:      s.settings.PointsBase,
				SpeedMultiplier: s.settings.SpeedMultiplier,
				Streak:          player.Streak,
				StreakBonus:     s.settings.StreakBonus,
				FirstCorrect:    id == first,
			})
			rec.FirstCorrect = id == first
			if player.LastAnswer != nil && player.LastAnswer.QuestionID == question.ID {
				player.LastAnswer.FirstCorrect = rec.FirstCorrect
			}
			pr.Answer = rec.Answer
			pr.Correct = rec.Correct
			pr.FirstCorrect = rec.FirstCorrect
			pr.ElapsedMs = rec.ElapsedMs
			pr.Points = score.Points
			pr.Breakdown = score.Breakdown
			player.award(score.Points, rec.Correct)
		} else {
			player.award(0, false)
		}
		pr.Score = player.Score
		pr.Streak = player.Streak
		results.Players = append(results.Players, pr)
	}
	return results
}

// firstCorrect picks the earliest correct submission; ties go to the
// player who joined first.
func (s *Session) firstCorrect(ledger map[string]*AnswerRecord) string {
	var best *AnswerRecord
	for _, id := range s.order {
		rec, ok := ledger[id]
		if !ok || !rec.Correct {
			continue
		}
		if best == nil || rec.SubmittedAt.Before(best.SubmittedAt) {
			best = rec
		}
	}
	if best == nil {
		return ""
	}
	return best.PlayerID
}

func (s *Session) rememberRanks() {
	for _, entry := range s.Leaderboard() {
		if p, ok := s.players[entry.PlayerID]; ok {
			p.previousRank = entry.Rank
		}
	}
}

// ShowLeaderboard moves from reveal to leaderboard.
func (s *Session) ShowLeaderboard() bool {
	if s.status != StatusReveal {
		return false
	}
	s.status = StatusLeaderboard
	return true
}

// End forces the terminal state. It reports false if the session had
// already ended.
func (s *Session) End() bool {
	if s.status == StatusEnded {
		return false
	}
	s.status = StatusEnded
	return true
}

// IsGameOver reports whether the cursor is on (or past) the last question.
func (s *Session) IsGameOver() bool {
	return s.currentIndex >= len(s.quiz.Questions)-1
}

// Leaderboard ranks every player, connected or not.
func (s *Session) Leaderboard() []scoring.LeaderboardEntry {
	standings := make([]scoring.Standing, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		st := scoring.Standing{
			PlayerID:     p.ID,
			Nickname:     p.Nickname,
			Avatar:       p.Avatar,
			Score:        p.Score,
			Streak:       p.Streak,
			Connected:    p.Connected,
			PreviousRank: p.previousRank,
		}
		if p.LastAnswer != nil {
			st.LastAnswerAt = p.LastAnswer.SubmittedAt
		}
		standings = append(standings, st)
	}
	return scoring.CalculateLeaderboard(standings)
}
