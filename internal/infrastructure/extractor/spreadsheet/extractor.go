package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// Extractor flattens xlsx workbooks into tab-separated text, one sheet per
// section, so summarization sees the cell contents in reading order.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, data []byte, _ string) (domain.ExtractedContent, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract spreadsheet", err)
	}
	defer book.Close()

	var b strings.Builder
	sheets := book.GetSheetList()
	for _, sheet := range sheets {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract spreadsheet",
				fmt.Errorf("sheet %s: %w", sheet, err))
		}
		b.WriteString("## " + sheet + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "extract spreadsheet",
			fmt.Errorf("workbook has no cell content"))
	}
	return domain.ExtractedContent{
		Text:      text,
		PageCount: len(sheets),
	}, nil
}
