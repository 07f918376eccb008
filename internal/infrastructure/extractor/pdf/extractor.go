package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// Extractor pulls plain text out of PDF payloads. Encrypted or malformed
// files surface as extraction errors so the retry budget applies.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, data []byte, _ string) (content domain.ExtractedContent, err error) {
	// The parser panics on some malformed files; turn that into an error
	// instead of taking the worker down.
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrExtraction, "extract pdf",
				fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract pdf", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract pdf",
				fmt.Errorf("page %d: %w", i, err))
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract pdf",
			fmt.Errorf("no extractable text in %d pages", pages))
	}
	return domain.ExtractedContent{
		Text:      text,
		PageCount: pages,
	}, nil
}
