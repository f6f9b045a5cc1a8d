package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/session-service/internal/core/domain"
)

// PgxUserRepository implements domain.UserRepository using pgxpool.
type PgxUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PgxUserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PgxUserRepository {
	return &PgxUserRepository{pool: pool}
}

const selectUserColumns = `SELECT id, username, email, password_hash, created_at FROM users`

func scanUser(row pgx.Row) (*domain.UserRow, error) {
	var u domain.UserRow
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the user matching the given email.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByEmail(ctx context.Context, email string) (*domain.UserRow, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUserColumns+` WHERE lower(email) = lower($1)`, email))
}

// GetByID returns the user with the given ID.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByID(ctx context.Context, id int) (*domain.UserRow, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUserColumns+` WHERE id = $1`, id))
}

// ExistsByUsernameOrEmail returns true when a user with the given
// username or email already exists.
func (r *PgxUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR lower(email) = lower($2))`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, username, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a new user and returns the generated user ID.
func (r *PgxUserRepository) Create(ctx context.Context, username, email, passwordHash string) (int, error) {
	query := `INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id`

	var userID int
	if err := r.pool.QueryRow(ctx, query, username, email, passwordHash).Scan(&userID); err != nil {
		return 0, err
	}
	return userID, nil
}

// UpdateLastLogin sets the last_login timestamp to now for the given user.
func (r *PgxUserRepository) UpdateLastLogin(ctx context.Context, userID int) error {
	query := `UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}
