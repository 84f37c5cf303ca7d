package service

import (
	"testing"

	"github.com/memexpert/memexpert/internal/domain"
)

func TestSentenceTerminated(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain word gets a period", input: "hello", want: "hello."},
		{name: "existing period kept", input: "hello.", want: "hello."},
		{name: "exclamation kept", input: "wow!", want: "wow!"},
		{name: "question mark kept", input: "why?", want: "why?"},
		{name: "ellipsis kept", input: "well...", want: "well..."},
		{name: "whitespace trimmed first", input: "  hello  ", want: "hello."},
		{name: "empty stays empty", input: "", want: ""},
		{name: "whitespace only stays empty", input: "   ", want: ""},
		{name: "cyrillic ending gets a period", input: "мем", want: "мем."},
		{name: "closing paren kept", input: "(so)", want: "(so)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sentenceTerminated(tc.input); got != tc.want {
				t.Errorf("sentenceTerminated(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestBuildEmbeddingText(t *testing.T) {
	text := "ну давай"
	meme := &domain.Meme{Text: &text}
	translations := []domain.Translation{
		{Language: "ru", Title: "Кот", Caption: "грустный кот!", Description: "Кот смотрит в окно"},
		{Language: "en", Title: "Cat", Caption: "", Description: "A sad cat."},
	}

	got := BuildEmbeddingText(meme, translations)
	want := "ну давай. Кот. грустный кот! Кот смотрит в окно. Cat. A sad cat."
	if got != want {
		t.Errorf("BuildEmbeddingText() = %q, want %q", got, want)
	}
}

func TestBuildEmbeddingTextSkipsEmptyParts(t *testing.T) {
	meme := &domain.Meme{}
	translations := []domain.Translation{
		{Language: "ru", Title: "Заголовок"},
	}

	got := BuildEmbeddingText(meme, translations)
	if got != "Заголовок." {
		t.Errorf("BuildEmbeddingText() = %q, want %q", got, "Заголовок.")
	}

	if got := BuildEmbeddingText(&domain.Meme{}, nil); got != "" {
		t.Errorf("BuildEmbeddingText() with no content = %q, want empty", got)
	}
}
