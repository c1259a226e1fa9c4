package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore provides typed access to Postgres-backed referral data.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// NewPostgres opens a new connection pool to the database with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "store_postgres"),
		schema: schema,
	}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// RunMigrations applies schema migrations on the connected database.
func (s *PostgresStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, s.pool, filesystem)
}

// UpsertUserByTG stores or updates the user profile based on Telegram ID.
func (s *PostgresStore) UpsertUserByTG(ctx context.Context, profile UserProfile) (*User, error) {
	const q = `
INSERT INTO users (tg_id, username, display_name, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (tg_id) DO UPDATE SET
    username = COALESCE(EXCLUDED.username, users.username),
    display_name = COALESCE(EXCLUDED.display_name, users.display_name),
    updated_at = NOW()
RETURNING id, tg_id, username, display_name, balance::text, created_at, updated_at;
`
	row := s.pool.QueryRow(ctx, q, profile.TGID, profile.Username, profile.DisplayName)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// GetUserByID loads a user by primary key.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, tg_id, username, display_name, balance::text, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1;
`
	u, err := scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// SetUserBalance writes the visible balance mirror on the user row.
func (s *PostgresStore) SetUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	const q = `UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, userID, balance.String())
	if err != nil {
		return fmt.Errorf("set user balance: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u          User
		balanceStr string
	)
	if err := row.Scan(&u.ID, &u.TGID, &u.Username, &u.DisplayName, &balanceStr, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	u.Balance = balance
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
