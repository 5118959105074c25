package domain

import (
	"encoding/json"
	"fmt"
)

// QuizDocument is the flat storage form of a quiz, shared by the YAML
// content files, the Postgres JSONB column and the Redis cache.
type QuizDocument struct {
	ID          string             `json:"id" yaml:"id"`
	Title       string             `json:"title" yaml:"title"`
	Description string             `json:"description,omitempty" yaml:"description"`
	Questions   []QuestionDocument `json:"questions" yaml:"questions"`
}

// QuestionDocument mirrors the authoring format: correctIndex is read for
// choice questions and correctText for short-text ones.
type QuestionDocument struct {
	ID           string       `json:"id" yaml:"id"`
	Type         QuestionType `json:"type" yaml:"type"`
	Text         string       `json:"text" yaml:"text"`
	ImageURL     string       `json:"imageUrl,omitempty" yaml:"imageUrl"`
	Options      []string     `json:"options,omitempty" yaml:"options"`
	CorrectIndex *int         `json:"correctIndex,omitempty" yaml:"correctIndex"`
	CorrectText  string       `json:"correctText,omitempty" yaml:"correctText"`
	TimeLimitSec int          `json:"timeLimitSec" yaml:"timeLimitSec"`
}

const defaultTimeLimitSec = 30

var defaultTrueFalseOptions = []string{"True", "False"}

// Build converts the document into a validated Quiz.
func (d QuizDocument) Build() (Quiz, error) {
	quiz := Quiz{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Questions:   make([]Question, 0, len(d.Questions)),
	}
	for _, qd := range d.Questions {
		q, err := qd.Build()
		if err != nil {
			return Quiz{}, fmt.Errorf("quiz %s: %w", d.ID, err)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := quiz.Validate(); err != nil {
		return Quiz{}, err
	}
	return quiz, nil
}

func (d QuestionDocument) Build() (Question, error) {
	q := Question{
		ID:           d.ID,
		Text:         d.Text,
		ImageURL:     d.ImageURL,
		TimeLimitSec: d.TimeLimitSec,
	}
	if q.TimeLimitSec == 0 {
		q.TimeLimitSec = defaultTimeLimitSec
	}
	switch d.Type {
	case TypeMultipleChoice:
		if d.CorrectIndex == nil {
			return Question{}, fmt.Errorf("question %s: correctIndex is required", d.ID)
		}
		q.Body = MultipleChoice{Options: append([]string(nil), d.Options...), CorrectIndex: *d.CorrectIndex}
	case TypeTrueFalse:
		if d.CorrectIndex == nil {
			return Question{}, fmt.Errorf("question %s: correctIndex is required", d.ID)
		}
		options := d.Options
		if len(options) == 0 {
			options = defaultTrueFalseOptions
		}
		q.Body = TrueFalse{Options: append([]string(nil), options...), CorrectIndex: *d.CorrectIndex}
	case TypeShortText:
		q.Body = ShortText{CorrectText: d.CorrectText}
	default:
		return Question{}, fmt.Errorf("question %s: unknown type %q", d.ID, d.Type)
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Document returns the storage form of the quiz.
func (q Quiz) Document() QuizDocument {
	doc := QuizDocument{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Questions:   make([]QuestionDocument, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		doc.Questions = append(doc.Questions, question.Document())
	}
	return doc
}

func (q Question) Document() QuestionDocument {
	doc := QuestionDocument{
		ID:           q.ID,
		Type:         q.Type(),
		Text:         q.Text,
		ImageURL:     q.ImageURL,
		Options:      q.Options(),
		TimeLimitSec: q.TimeLimitSec,
	}
	if idx, ok := q.CorrectIndex(); ok {
		doc.CorrectIndex = &idx
	}
	if text, ok := q.CorrectText(); ok {
		doc.CorrectText = text
	}
	return doc
}

func (q Quiz) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Document())
}

func (q *Quiz) UnmarshalJSON(data []byte) error {
	var doc QuizDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	quiz, err := doc.Build()
	if err != nil {
		return err
	}
	*q = quiz
	return nil
}
