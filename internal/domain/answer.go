package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Answer is a raw player answer. Clients send either a number (an option
// index) or a string; anything else decodes to an answer that is never
// correct.
type Answer struct {
	index    int
	text     string
	hasIndex bool
	hasText  bool
}

func ChoiceAnswer(index int) Answer {
	return Answer{index: index, hasIndex: true, text: strconv.Itoa(index), hasText: true}
}

func TextAnswer(text string) Answer {
	return Answer{text: text, hasText: true}
}

// Index returns the option index if the answer was numeric and integral.
func (a Answer) Index() (int, bool) {
	return a.index, a.hasIndex
}

// Text returns the textual form of the answer. Numeric answers also have a
// textual form so "206" matches a short-text key of "206".
func (a Answer) Text() (string, bool) {
	return a.text, a.hasText
}

// IsZero reports whether the answer carries nothing usable.
func (a Answer) IsZero() bool {
	return !a.hasIndex && !a.hasText
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case a.hasIndex:
		return json.Marshal(a.index)
	case a.hasText:
		return json.Marshal(a.text)
	default:
		return []byte("null"), nil
	}
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		if f == math.Trunc(f) && math.Abs(f) < math.MaxInt32 {
			*a = ChoiceAnswer(int(f))
			return nil
		}
		*a = TextAnswer(string(data))
	}
	// objects, arrays, booleans and null stay empty and are never correct
	return nil
}
