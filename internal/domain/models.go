package domain

import (
	"fmt"
	"strings"
)

// QuestionType identifies which variant a question carries.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeTrueFalse      QuestionType = "true-false"
	TypeShortText      QuestionType = "short-text"
)

// Quiz is an ordered, immutable collection of questions. The index of a
// question in Questions is the progression cursor of a game.
type Quiz struct {
	ID          string
	Title       string
	Description string
	Questions   []Question
}

// QuizSummary is the lightweight view sent to hosts when a game is created.
type QuizSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	QuestionCount int    `json:"questionCount"`
}

func (q Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		QuestionCount: len(q.Questions),
	}
}

// Validate checks authoring invariants: unique question IDs, positive time
// limits and an answer key that fits the question variant.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quiz id is required")
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %s has no questions", q.ID)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("quiz %s question %d: %w", q.ID, i, err)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("quiz %s: duplicate question id %q", q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
	}
	return nil
}

// Question holds the fields shared by every question type. The
// type-specific answer key lives in Body.
type Question struct {
	ID           string
	Text         string
	ImageURL     string
	TimeLimitSec int
	Body         QuestionBody
}

// QuestionBody is implemented by MultipleChoice, TrueFalse and ShortText.
type QuestionBody interface {
	Type() QuestionType
	isCorrect(Answer) bool
	validate() error
}

// MultipleChoice is answered with the index of one of Options.
type MultipleChoice struct {
	Options      []string
	CorrectIndex int
}

// TrueFalse is a two-option choice question.
type TrueFalse struct {
	Options      []string
	CorrectIndex int
}

// ShortText is answered with free text compared case-insensitively.
type ShortText struct {
	CorrectText string
}

func (MultipleChoice) Type() QuestionType { return TypeMultipleChoice }
func (TrueFalse) Type() QuestionType      { return TypeTrueFalse }
func (ShortText) Type() QuestionType      { return TypeShortText }

func (b MultipleChoice) isCorrect(a Answer) bool {
	return choiceCorrect(a, len(b.Options), b.CorrectIndex)
}

func (b TrueFalse) isCorrect(a Answer) bool {
	return choiceCorrect(a, len(b.Options), b.CorrectIndex)
}

func (b ShortText) isCorrect(a Answer) bool {
	text, ok := a.Text()
	if !ok || b.CorrectText == "" {
		return false
	}
	return normalizeText(text) == normalizeText(b.CorrectText)
}

func choiceCorrect(a Answer, optionCount, correct int) bool {
	idx, ok := a.Index()
	if !ok || idx < 0 || idx >= optionCount {
		return false
	}
	return idx == correct
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (b MultipleChoice) validate() error {
	if len(b.Options) < 2 {
		return fmt.Errorf("multiple-choice needs at least 2 options")
	}
	if b.CorrectIndex < 0 || b.CorrectIndex >= len(b.Options) {
		return fmt.Errorf("correct index %d out of range", b.CorrectIndex)
	}
	return nil
}

func (b TrueFalse) validate() error {
	if len(b.Options) != 2 {
		return fmt.Errorf("true-false needs exactly 2 options")
	}
	if b.CorrectIndex < 0 || b.CorrectIndex > 1 {
		return fmt.Errorf("correct index %d out of range", b.CorrectIndex)
	}
	return nil
}

func (b ShortText) validate() error {
	if strings.TrimSpace(b.CorrectText) == "" {
		return fmt.Errorf("short-text needs a correct text")
	}
	return nil
}

// Type reports the variant of the question, or "" if it has no body.
func (q Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// IsCorrectAnswer is pure: wrong-typed or out-of-range answers are simply
// incorrect.
func (q Question) IsCorrectAnswer(a Answer) bool {
	if q.Body == nil {
		return false
	}
	return q.Body.isCorrect(a)
}

// Options returns the choice labels, or nil for short-text questions.
func (q Question) Options() []string {
	switch b := q.Body.(type) {
	case MultipleChoice:
		return b.Options
	case TrueFalse:
		return b.Options
	default:
		return nil
	}
}

// IsChoice reports whether answers are option indexes.
func (q Question) IsChoice() bool {
	switch q.Body.(type) {
	case MultipleChoice, TrueFalse:
		return true
	default:
		return false
	}
}

// CorrectIndex returns the answer key of a choice question.
func (q Question) CorrectIndex() (int, bool) {
	switch b := q.Body.(type) {
	case MultipleChoice:
		return b.CorrectIndex, true
	case TrueFalse:
		return b.CorrectIndex, true
	default:
		return 0, false
	}
}

// CorrectText returns the answer key of a short-text question.
func (q Question) CorrectText() (string, bool) {
	if b, ok := q.Body.(ShortText); ok {
		return b.CorrectText, true
	}
	return "", false
}

// CorrectAnswer is the canonical answer as revealed to clients: an int for
// choice questions and a string for short-text.
func (q Question) CorrectAnswer() any {
	if idx, ok := q.CorrectIndex(); ok {
		return idx
	}
	if text, ok := q.CorrectText(); ok {
		return text
	}
	return nil
}

// TimeLimitMs is the question time limit in milliseconds.
func (q Question) TimeLimitMs() int64 {
	return int64(q.TimeLimitSec) * 1000
}

func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id is required")
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question %s: text is required", q.ID)
	}
	if q.TimeLimitSec <= 0 {
		return fmt.Errorf("question %s: time limit must be positive", q.ID)
	}
	if q.Body == nil {
		return fmt.Errorf("question %s: missing answer key", q.ID)
	}
	if err := q.Body.validate(); err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	return nil
}
