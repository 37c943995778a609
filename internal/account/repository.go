package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository persists account documents.
type Repository interface {
	Get(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, acct Account) (Account, error)
	Save(ctx context.Context, acct Account) error
	ListIDs(ctx context.Context) ([]string, error)
}

// PostgresRepository stores each account as a JSONB document.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs an account repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get loads the account with the given id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var doc []byte
	if err := r.pool.QueryRow(ctx, `SELECT doc FROM accounts WHERE id = $1;`, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account: %w", err)
	}

	var acct Account
	if err := json.Unmarshal(doc, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	return acct, nil
}

// Create inserts a new account document.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	doc, err := json.Marshal(acct)
	if err != nil {
		return Account{}, fmt.Errorf("encode account: %w", err)
	}

	query := `
INSERT INTO accounts (id, doc, created_at, updated_at)
VALUES ($1, $2, $3, $3);`

	if _, err := r.pool.Exec(ctx, query, acct.ID, doc, acct.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// Save replaces the stored document. The last writer wins.
func (r *PostgresRepository) Save(ctx context.Context, acct Account) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	doc, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET doc = $2, updated_at = $3 WHERE id = $1;`, acct.ID, doc, acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListIDs returns every account id.
func (r *PostgresRepository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id FROM accounts ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan accounts: %w", err)
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
