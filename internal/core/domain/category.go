package domain

import (
	"strings"
	"time"
	"unicode"
)

type CategoryOrigin string

const (
	CategoryPredefined CategoryOrigin = "predefined"
	CategoryDynamic    CategoryOrigin = "dynamically-created"
)

// UnclassifiedCategory is the sentinel destination for documents that the
// classifier could not place with enough confidence.
const UnclassifiedCategory = "Unclassified"

// Category is a named destination folder in the flat taxonomy.
type Category struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Origin      CategoryOrigin `json:"origin"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DefaultCategories seeds the directory with the departments the pipeline
// knows out of the box.
func DefaultCategories() []Category {
	seed := []struct{ name, desc string }{
		{"IT", "Technical guidelines, system and code documentation, IT procedures"},
		{"Financial", "Financial reports, budgets, invoices, statements, accounting documents"},
		{"HR", "CVs, HR policies, job descriptions, performance reviews, handbooks"},
		{"Logistics", "Supply chain, shipping, inventory, transportation, warehouse documentation"},
		{"Legal", "Contracts, compliance documents, legal opinions, regulations, policies"},
		{"Marketing", "Marketing plans, branding, advertising, market research"},
		{"Operations", "Standard operating procedures, process documents, operations manuals"},
		{"General", "Documents that do not fit a specific department"},
		{UnclassifiedCategory, "Documents the classifier could not place with enough confidence"},
	}
	out := make([]Category, 0, len(seed))
	for _, s := range seed {
		out = append(out, Category{Name: s.name, Description: s.desc, Origin: CategoryPredefined})
	}
	return out
}

// NormalizeCategoryName case-folds and trims a category name so that minor
// casing and punctuation differences from inference output still match an
// existing category.
func NormalizeCategoryName(name string) string {
	trimmed := strings.TrimSpace(name)
	trimmed = strings.Trim(trimmed, ".,;:!\"'")
	return strings.ToLower(trimmed)
}

// CategorySlug builds the object-store key prefix for a category: spaces
// become underscores and anything outside [A-Za-z0-9_-] is dropped.
func CategorySlug(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	slug := b.String()
	if slug == "" {
		return "General"
	}
	return slug
}

// TitleCategoryName capitalizes the first rune so dynamically created folder
// names stay consistent with the predefined ones.
func TitleCategoryName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return trimmed
	}
	runes := []rune(trimmed)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
