package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// Extractor handles text/plain and other UTF-8 payloads.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, data []byte, _ string) (domain.ExtractedContent, error) {
	if !utf8.Valid(data) {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract plaintext",
			fmt.Errorf("payload is not valid UTF-8"))
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract plaintext",
			fmt.Errorf("document contains no text"))
	}
	return domain.ExtractedContent{
		Text:             text,
		PageCount:        1,
		DetectedLanguage: detectLanguage(text),
	}, nil
}

// detectLanguage is a cheap heuristic: Cyrillic-heavy text is tagged ru,
// everything else en. Good enough for prompt selection.
func detectLanguage(text string) string {
	var cyrillic, letters int
	for _, r := range text {
		if r >= 'а' && r <= 'я' || r >= 'А' && r <= 'Я' {
			cyrillic++
		}
		if unicodeLetter(r) {
			letters++
		}
	}
	if letters > 0 && cyrillic*2 > letters {
		return "ru"
	}
	return "en"
}

func unicodeLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' ||
		r >= 'а' && r <= 'я' || r >= 'А' && r <= 'Я'
}
