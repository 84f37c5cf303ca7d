package service

import (
	"strings"

	"github.com/memexpert/memexpert/internal/domain"
)

// BuildEmbeddingText flattens a meme and its translations into the
// single passage fed to the text embedder: the on-image text first,
// then title, caption, and description of every translation in the
// order the store returned them (reference language first). Each piece
// is sentence-terminated so concatenation doesn't fuse unrelated
// phrases into one sentence.
func BuildEmbeddingText(meme *domain.Meme, translations []domain.Translation) string {
	var parts []string
	appendPart := func(s string) {
		if terminated := sentenceTerminated(s); terminated != "" {
			parts = append(parts, terminated)
		}
	}

	if meme.Text != nil {
		appendPart(*meme.Text)
	}
	for _, t := range translations {
		appendPart(t.Title)
		appendPart(t.Caption)
		appendPart(t.Description)
	}
	return strings.Join(parts, " ")
}

// sentenceTerminated trims the string and appends a period unless the
// last character is already ASCII punctuation.
func sentenceTerminated(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	last := s[len(s)-1]
	if isASCIIPunct(last) {
		return s
	}
	return s + "."
}

func isASCIIPunct(b byte) bool {
	switch {
	case b >= '!' && b <= '/':
		return true
	case b >= ':' && b <= '@':
		return true
	case b >= '[' && b <= '`':
		return true
	case b >= '{' && b <= '~':
		return true
	}
	return false
}
