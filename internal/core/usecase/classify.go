package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
)

type ClassifierConfig struct {
	NoveltyThreshold       float64
	LowConfidenceThreshold float64
}

func (c ClassifierConfig) normalize() ClassifierConfig {
	out := c
	if out.NoveltyThreshold <= 0 || out.NoveltyThreshold > 1 {
		out.NoveltyThreshold = 0.7
	}
	if out.LowConfidenceThreshold <= 0 || out.LowConfidenceThreshold > 1 {
		out.LowConfidenceThreshold = 0.4
	}
	return out
}

// Decision is the settled classification outcome for one document.
type Decision struct {
	Category        string
	Confidence      float64
	ReviewRequired  bool
	CreatedCategory bool
}

// Classifier maps extracted text and summary to a category, creating a new
// category when the model suggests one with enough confidence.
type Classifier struct {
	inference ports.Inference
	directory ports.CategoryDirectory
	cfg       ClassifierConfig
	logger    *slog.Logger
}

func NewClassifier(inference ports.Inference, directory ports.CategoryDirectory, cfg ClassifierConfig, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		inference: inference,
		directory: directory,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

func (c *Classifier) Classify(ctx context.Context, text, summary string) (Decision, error) {
	categories, err := c.directory.List(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("list categories: %w", err)
	}

	cls, err := c.inference.Classify(ctx, text, summary, categories)
	if err != nil {
		return Decision{}, err
	}

	// Low confidence routes to Unclassified even when the name matches a
	// known category.
	if cls.Confidence < c.cfg.LowConfidenceThreshold {
		return Decision{
			Category:       domain.UnclassifiedCategory,
			Confidence:     cls.Confidence,
			ReviewRequired: true,
		}, nil
	}

	norm := domain.NormalizeCategoryName(cls.CategoryName)
	for _, cat := range categories {
		if domain.NormalizeCategoryName(cat.Name) == norm {
			return Decision{
				Category:   cat.Name,
				Confidence: cls.Confidence,
			}, nil
		}
	}

	if norm == "" {
		return Decision{
			Category:       domain.UnclassifiedCategory,
			Confidence:     cls.Confidence,
			ReviewRequired: true,
		}, nil
	}

	if cls.NovelSuggestion && cls.Confidence >= c.cfg.NoveltyThreshold {
		// Conditional insert guards the race between two workers suggesting
		// the same new category; last-writer-wins by normalized name.
		cat, created, err := c.directory.Ensure(ctx, domain.Category{
			Name:        domain.TitleCategoryName(cls.CategoryName),
			Description: cls.Reasoning,
			Origin:      domain.CategoryDynamic,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("ensure category: %w", err)
		}
		if created {
			c.logger.Info("category created", "category", cat.Name, "confidence", cls.Confidence)
		}
		return Decision{
			Category:        cat.Name,
			Confidence:      cls.Confidence,
			CreatedCategory: created,
		}, nil
	}

	// Unknown name without the novelty criteria met: file for human review
	// rather than inventing a folder.
	return Decision{
		Category:       domain.UnclassifiedCategory,
		Confidence:     cls.Confidence,
		ReviewRequired: true,
	}, nil
}
