package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// TemplateRepository provides PostgreSQL-backed face template storage
type TemplateRepository struct {
	pool *Pool
}

// NewTemplateRepository creates a new PostgreSQL template repository
func NewTemplateRepository(pool *Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Neighbor is a template close to a query vector, as ranked by pgvector
type Neighbor struct {
	TemplateID int64   `json:"template_id"`
	OwnerID    string  `json:"owner_id"`
	Similarity float64 `json:"similarity"`
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

const templateColumns = `id, owner_id, landmarks, dim, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*database.StoredTemplate, error) {
	var t database.StoredTemplate
	var landmarks pq.Float64Array
	if err := row.Scan(&t.ID, &t.OwnerID, &landmarks, &t.Dim, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Vector = landmarks
	return &t, nil
}

// GetAllTemplates returns every template ordered by ascending ID
func (r *TemplateRepository) GetAllTemplates(ctx context.Context) ([]database.StoredTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM face_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []database.StoredTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// GetTemplate returns the template of an owner
func (r *TemplateRepository) GetTemplate(ctx context.Context, ownerID string) (*database.StoredTemplate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM face_templates WHERE owner_id = $1`, ownerID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: template for owner %s", database.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return t, nil
}

// Count returns the total number of templates stored
func (r *TemplateRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_templates").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return count, nil
}

// PutTemplate inserts or replaces the template of an owner. The ID of an
// existing owner is kept.
func (r *TemplateRepository) PutTemplate(ctx context.Context, ownerID string, vector []float64) (*database.StoredTemplate, error) {
	query := `
		INSERT INTO face_templates (owner_id, landmarks, embedding, dim)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE SET
			landmarks = EXCLUDED.landmarks,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			updated_at = NOW()
		RETURNING ` + templateColumns

	row := r.pool.QueryRow(ctx, query,
		ownerID,
		pq.Float64Array(vector),
		pgvector.NewVector(toFloat32(vector)),
		len(vector),
	)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	return t, nil
}

// DeleteTemplate removes the template of an owner
func (r *TemplateRepository) DeleteTemplate(ctx context.Context, ownerID string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_templates WHERE owner_id = $1", ownerID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: template for owner %s", database.ErrNotFound, ownerID)
	}
	return nil
}

// FindNearest returns up to limit templates of the same dimension closest to
// vector by cosine distance, skipping excludeOwner.
func (r *TemplateRepository) FindNearest(ctx context.Context, vector []float64, limit int, excludeOwner string) ([]Neighbor, error) {
	query := `
		SELECT id, owner_id, 1 - (embedding <=> $1) AS similarity
		FROM face_templates
		WHERE dim = $2 AND owner_id <> $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(toFloat32(vector)), len(vector), excludeOwner, limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest templates: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.TemplateID, &n.OwnerID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbors: %w", err)
	}
	return neighbors, nil
}
