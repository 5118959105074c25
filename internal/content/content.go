// Package content loads quiz definitions from YAML, including the sample
// quizzes compiled into the binary.
package content

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/domain"
)

//go:embed sample_quizzes.yaml
var sampleQuizzes []byte

type file struct {
	Quizzes []domain.QuizDocument `yaml:"quizzes"`
}

// Samples returns the built-in quizzes.
func Samples() ([]domain.Quiz, error) {
	return Parse(sampleQuizzes)
}

// LoadFile reads quizzes from a YAML file with a top-level quizzes list.
func LoadFile(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}
	quizzes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return quizzes, nil
}

// Parse decodes and validates every quiz in data. Quiz ids must be unique.
func Parse(data []byte) ([]domain.Quiz, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quizzes: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Quizzes))
	quizzes := make([]domain.Quiz, 0, len(f.Quizzes))
	for _, doc := range f.Quizzes {
		quiz, err := doc.Build()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[quiz.ID]; dup {
			return nil, fmt.Errorf("duplicate quiz id %q", quiz.ID)
		}
		seen[quiz.ID] = struct{}{}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}
