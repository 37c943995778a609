package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// PostgresRepository stores entries in the activity_log table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, entry Entry) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO activity_log (id, user_id, action, path, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := r.pool.Exec(ctx, query, entry.ID, entry.UserID, string(entry.Action), entry.Path, entry.Detail, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT id, user_id, action, path, detail, created_at
FROM activity_log
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.Path, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}
