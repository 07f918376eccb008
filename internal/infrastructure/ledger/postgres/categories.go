package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// CategoryDirectory is the Postgres-backed taxonomy. Rows are keyed by the
// normalized name, which makes Ensure race-safe: concurrent inserts of the
// same category collapse onto one row and exactly one caller sees created.
type CategoryDirectory struct {
	db *sql.DB
}

func NewCategoryDirectory(db *sql.DB) *CategoryDirectory {
	return &CategoryDirectory{db: db}
}

// Seed inserts the predefined categories, skipping any that already exist.
func (d *CategoryDirectory) Seed(ctx context.Context) error {
	for _, cat := range domain.DefaultCategories() {
		cat.CreatedAt = time.Now().UTC()
		if _, _, err := d.Ensure(ctx, cat); err != nil {
			return fmt.Errorf("seed category %s: %w", cat.Name, err)
		}
	}
	return nil
}

func (d *CategoryDirectory) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT name, description, origin, created_at
FROM categories
ORDER BY name
`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var cat domain.Category
		var origin string
		if err := rows.Scan(&cat.Name, &cat.Description, &origin, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cat.Origin = domain.CategoryOrigin(origin)
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (d *CategoryDirectory) Ensure(ctx context.Context, cat domain.Category) (domain.Category, bool, error) {
	if cat.CreatedAt.IsZero() {
		cat.CreatedAt = time.Now().UTC()
	}
	norm := domain.NormalizeCategoryName(cat.Name)

	res, err := d.db.ExecContext(ctx, `
INSERT INTO categories (normalized_name, name, description, origin, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (normalized_name) DO NOTHING
`, norm, cat.Name, cat.Description, string(cat.Origin), cat.CreatedAt)
	if err != nil {
		return domain.Category{}, false, fmt.Errorf("insert category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Category{}, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return cat, true, nil
	}

	// Lost the race or already present: hand back the winner's row.
	row := d.db.QueryRowContext(ctx, `
SELECT name, description, origin, created_at
FROM categories
WHERE normalized_name = $1
`, norm)
	var stored domain.Category
	var origin string
	if err := row.Scan(&stored.Name, &stored.Description, &origin, &stored.CreatedAt); err != nil {
		return domain.Category{}, false, fmt.Errorf("fetch existing category: %w", err)
	}
	stored.Origin = domain.CategoryOrigin(origin)
	return stored, false, nil
}
