package extractor

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/extractor/spreadsheet"
)

// Composite routes a payload to the extractor registered for its media type.
type Composite struct {
	byType   map[string]ports.ContentExtractor
	fallback ports.ContentExtractor
}

// NewComposite wires the default format support: PDF, xlsx and plain text,
// with plain text as the fallback for unknown types.
func NewComposite() *Composite {
	plain := plaintext.NewExtractor()
	sheet := spreadsheet.NewExtractor()
	return &Composite{
		byType: map[string]ports.ContentExtractor{
			"application/pdf": pdf.NewExtractor(),
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": sheet,
			"application/vnd.ms-excel": sheet,
			"text/plain":               plain,
			"text/csv":                 plain,
			"text/markdown":            plain,
			"application/json":         plain,
		},
		fallback: plain,
	}
}

func (c *Composite) Extract(ctx context.Context, data []byte, contentType string) (domain.ExtractedContent, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if ext, ok := c.byType[mediaType]; ok {
		return ext.Extract(ctx, data, contentType)
	}

	// Sniff PDF regardless of the declared type; object stores frequently
	// report application/octet-stream.
	if len(data) >= 5 && string(data[:5]) == "%PDF-" {
		return c.byType["application/pdf"].Extract(ctx, data, contentType)
	}
	if c.fallback == nil {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "route extractor",
			fmt.Errorf("unsupported content type %q", contentType))
	}
	return c.fallback.Extract(ctx, data, contentType)
}
