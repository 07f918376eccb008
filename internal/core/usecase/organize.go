package usecase

import (
	"context"
	"fmt"
	"path"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
)

// Organizer files a classified document under its category prefix and tags
// it. Filing is idempotent: re-entry after a crash finds the object already
// moved and succeeds without a second side effect.
type Organizer struct {
	storage ports.StorageGateway
}

func NewOrganizer(storage ports.StorageGateway) *Organizer {
	return &Organizer{storage: storage}
}

func (o *Organizer) File(ctx context.Context, rec *domain.ProcessingRecord) (string, error) {
	category := rec.Category
	if category == "" {
		category = domain.UnclassifiedCategory
	}
	destination := domain.CategorySlug(category) + "/" + path.Base(rec.Identity.Location)

	if destination != rec.Identity.Location {
		if err := o.storage.Move(ctx, rec.Identity.Location, destination); err != nil {
			return "", fmt.Errorf("move to %s: %w", destination, err)
		}
	}

	if err := o.storage.Tag(ctx, destination, "autopilot-category", category); err != nil {
		return "", fmt.Errorf("tag category: %w", err)
	}
	if rec.ReviewRequired {
		if err := o.storage.Tag(ctx, destination, "autopilot-review", "required"); err != nil {
			return "", fmt.Errorf("tag review flag: %w", err)
		}
	}
	return destination, nil
}
