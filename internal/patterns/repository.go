package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/database"
)

const patternColumns = `
	pattern_id, pattern_name, description, category,
	technical_criteria, fundamental_criteria, sort_by,
	created_by, is_builtin, created_at, updated_at`

// Repository handles pattern persistence
// ⭐ SSOT: 패턴 저장/조회는 여기서만
type Repository struct {
	db  database.Querier
	now func() time.Time
}

var _ contracts.PatternRepository = (*Repository)(nil)

// NewRepository creates a new pattern repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a user or built-in pattern
func (r *Repository) Create(ctx context.Context, p *contracts.Pattern) error {
	technical, fundamental, err := encodeCriteria(p.Criteria)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	query := `
		INSERT INTO patterns.screening_patterns (` + patternColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (pattern_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Description, string(p.Category),
		technical, fundamental, string(p.EffectiveSortKey()),
		p.CreatedBy, p.IsBuiltIn, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pattern: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pattern %q: %w", p.ID, contracts.ErrAlreadyExists)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Get retrieves a pattern by id
func (r *Repository) Get(ctx context.Context, id string) (*contracts.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns.screening_patterns WHERE pattern_id = $1`

	p, err := scanPattern(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pattern %q: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

// List returns patterns matching filter, built-ins first
func (r *Repository) List(ctx context.Context, filter contracts.PatternFilter) ([]*contracts.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM patterns.screening_patterns
		WHERE ($1 = '' OR category = $1)
		  AND ($2::BOOLEAN IS NULL OR is_builtin = $2)
		ORDER BY is_builtin DESC, category, pattern_id
	`

	rows, err := r.db.Query(ctx, query, string(filter.Category), filter.BuiltIn)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	result := make([]*contracts.Pattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return result, nil
}

// Update locks the row, applies fn and writes the whole definition back
func (r *Repository) Update(ctx context.Context, id string, fn func(p *contracts.Pattern) error) (*contracts.Pattern, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + patternColumns + ` FROM patterns.screening_patterns WHERE pattern_id = $1 FOR UPDATE`
	p, err := scanPattern(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pattern %q: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock pattern: %w", err)
	}
	if p.IsBuiltIn {
		return nil, fmt.Errorf("pattern %q: %w", id, contracts.ErrForbidden)
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	technical, fundamental, err := encodeCriteria(p.Criteria)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.UpdatedAt = r.now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE patterns.screening_patterns SET
			pattern_name = $2,
			description = $3,
			category = $4,
			technical_criteria = $5,
			fundamental_criteria = $6,
			sort_by = $7,
			updated_at = $8
		WHERE pattern_id = $1
	`, id, p.Name, p.Description, string(p.Category), technical, fundamental, string(p.EffectiveSortKey()), p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update pattern: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return p, nil
}

// Delete removes a user pattern. Cached results cascade through the foreign key.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var builtIn bool
	err = tx.QueryRow(ctx,
		"SELECT is_builtin FROM patterns.screening_patterns WHERE pattern_id = $1 FOR UPDATE", id,
	).Scan(&builtIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pattern %q: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock pattern: %w", err)
	}
	if builtIn {
		return fmt.Errorf("pattern %q: %w", id, contracts.ErrForbidden)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM patterns.screening_patterns WHERE pattern_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SeedBuiltIns inserts any missing built-in pattern, leaving existing rows untouched
func (r *Repository) SeedBuiltIns(ctx context.Context, builtIns []*contracts.Pattern) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := r.now().UTC()
	query := `
		INSERT INTO patterns.screening_patterns (` + patternColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9)
		ON CONFLICT (pattern_id) DO NOTHING
	`

	inserted := 0
	for _, p := range builtIns {
		technical, fundamental, err := encodeCriteria(p.Criteria)
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, query,
			p.ID, p.Name, p.Description, string(p.Category),
			technical, fundamental, string(p.EffectiveSortKey()),
			p.CreatedBy, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to seed pattern %s: %w", p.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func encodeCriteria(c contracts.Criteria) (technical, fundamental []byte, err error) {
	if c.HasTechnical() {
		if technical, err = json.Marshal(c.Technical); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal technical criteria: %w", err)
		}
	}
	if c.HasFundamental() {
		if fundamental, err = json.Marshal(c.Fundamental); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal fundamental criteria: %w", err)
		}
	}
	return technical, fundamental, nil
}

func scanPattern(row pgx.Row) (*contracts.Pattern, error) {
	var (
		p                      contracts.Pattern
		category, sortBy       string
		technical, fundamental []byte
	)

	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &category,
		&technical, &fundamental, &sortBy,
		&p.CreatedBy, &p.IsBuiltIn, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Category = contracts.Category(category)
	p.SortKey = contracts.SortKey(sortBy)

	if len(technical) > 0 && string(technical) != "null" {
		var t contracts.TechnicalCriteria
		if err := json.Unmarshal(technical, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal technical criteria: %w", err)
		}
		p.Technical = &t
	}
	if len(fundamental) > 0 && string(fundamental) != "null" {
		if err := json.Unmarshal(fundamental, &p.Fundamental); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fundamental criteria: %w", err)
		}
	}

	return &p, nil
}
