package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is the subset of the onboarding app's users table the toolkit reads
// and writes.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	FirstName     string
	LastName      string
	PropertyID    *string
	IsTestAccount bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserRepository accesses the users table.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, password_hash, role, COALESCE(first_name,''), COALESCE(last_name,''), property_id, is_test_account, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u        User
		property sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName, &property, &u.IsTestAccount, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if property.Valid {
		p := property.String
		u.PropertyID = &p
	}
	return &u, nil
}

// FindByEmail looks a user up case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, strings.TrimSpace(email))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// ListByEmailDomain returns users whose address ends in @domain, for batch
// resets of seeded accounts.
func (r *UserRepository) ListByEmailDomain(ctx context.Context, domain string) ([]*User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) LIKE '%@' || lower($1) ORDER BY email`,
		strings.TrimPrefix(domain, "@"))
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Create inserts a user. ID and timestamps must already be set.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, first_name, last_name, property_id, is_test_account, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName, u.PropertyID, u.IsTestAccount, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdatePassword stores a new bcrypt hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash=$1, updated_at=$2 WHERE id=$3`, hash, now, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}
