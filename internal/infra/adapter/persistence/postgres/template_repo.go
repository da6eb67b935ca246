package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
)

type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(db *sql.DB) repository.TemplateRepository {
	return &TemplateRepo{db: db}
}

// LatestActive returns nil, nil when no active version exists.
func (repo *TemplateRepo) LatestActive(ctx context.Context, code, language string) (*entity.Template, error) {
	const query = `
SELECT id, template_code, language, subject, body, version, is_active, created_at
FROM templates
WHERE template_code = $1 AND language = $2 AND is_active = TRUE
ORDER BY version DESC
LIMIT 1`
	var t entity.Template
	err := repo.db.QueryRowContext(ctx, query, code, language).Scan(
		&t.ID, &t.Code, &t.Language, &t.Subject, &t.Body, &t.Version, &t.IsActive, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestActive: %w", err)
	}
	return &t, nil
}
