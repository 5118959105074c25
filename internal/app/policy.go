package app

import (
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"live-quiz-service/internal/domain"
)

const maxNicknameLength = 20

// JoinPolicy vets nicknames and decorates new players before they enter a
// game.
type JoinPolicy interface {
	// Admit returns the normalised nickname or an INVALID_NICKNAME error.
	Admit(nickname string) (string, error)
	Avatar(nickname string) string
}

var avatarPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
}

var defaultBlocklist = []string{
	"bastard", "bitch", "crap", "damn", "dick", "fuck", "piss", "shit", "slut",
}

// WordFilter rejects nicknames containing a blocked word and derives an
// avatar colour from the nickname.
type WordFilter struct {
	blocked []string
}

// NewWordFilter uses the built-in block list when words is empty.
func NewWordFilter(words ...string) *WordFilter {
	if len(words) == 0 {
		words = defaultBlocklist
	}
	blocked := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			blocked = append(blocked, w)
		}
	}
	return &WordFilter{blocked: blocked}
}

func (f *WordFilter) Admit(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(nickname)
	if n == 0 || n > maxNicknameLength {
		return "", domain.Errorf(domain.CodeInvalidNickname, "nickname must be 1-%d characters", maxNicknameLength)
	}
	lower := strings.ToLower(nickname)
	for _, word := range f.blocked {
		if strings.Contains(lower, word) {
			return "", domain.Errorf(domain.CodeInvalidNickname, "nickname is not allowed")
		}
	}
	return nickname, nil
}

func (f *WordFilter) Avatar(nickname string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(nickname)))
	return avatarPalette[h.Sum32()%uint32(len(avatarPalette))]
}
