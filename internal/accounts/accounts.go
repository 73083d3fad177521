// Package accounts resets passwords and provisions test accounts directly in
// the onboarding app's users table.
package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dharsanguruparan/OnboardOps/internal/repository"
)

const MinPasswordLength = 8

var (
	ErrWeakPassword = errors.New("password too short")
	ErrInvalidRole  = errors.New("invalid role")
)

// Roles understood by the onboarding app.
const (
	RoleHR       = "hr"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// UserStore is the part of repository.UserRepository the service needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*repository.User, error)
	Create(ctx context.Context, u *repository.User) error
	UpdatePassword(ctx context.Context, userID, hash string, now time.Time) error
}

// Service performs account maintenance.
type Service struct {
	users UserStore
	cost  int
	now   func() time.Time
}

// NewService constructs a Service using bcrypt.DefaultCost.
func NewService(users UserStore) *Service {
	return &Service{users: users, cost: bcrypt.DefaultCost, now: time.Now}
}

// ResetPassword replaces the password of an existing user.
func (s *Service) ResetPassword(ctx context.Context, email, password string) (*repository.User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.UpdatedAt = now
	return user, nil
}

// TestAccount describes an account to create or reset.
type TestAccount struct {
	Email      string
	Password   string
	Role       string
	FirstName  string
	LastName   string
	PropertyID string
}

// ProvisionResult reports what ProvisionTestAccount did.
type ProvisionResult struct {
	User     *repository.User
	Password string
	Created  bool
}

// ProvisionTestAccount creates the account, or resets its password if the
// email already exists. An empty Password generates one.
func (s *Service) ProvisionTestAccount(ctx context.Context, acct TestAccount) (*ProvisionResult, error) {
	role := strings.ToLower(strings.TrimSpace(acct.Role))
	switch role {
	case RoleHR, RoleManager, RoleEmployee:
	default:
		return nil, fmt.Errorf("%w: %q (want hr, manager or employee)", ErrInvalidRole, acct.Role)
	}
	password := acct.Password
	if password == "" {
		generated, err := GeneratePassword(16)
		if err != nil {
			return nil, err
		}
		password = generated
	}

	existing, err := s.users.FindByEmail(ctx, acct.Email)
	switch {
	case err == nil:
		user, err := s.ResetPassword(ctx, existing.Email, password)
		if err != nil {
			return nil, err
		}
		return &ProvisionResult{User: user, Password: password}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &repository.User{
		ID:            uuid.NewString(),
		Email:         strings.ToLower(strings.TrimSpace(acct.Email)),
		PasswordHash:  hash,
		Role:          role,
		FirstName:     acct.FirstName,
		LastName:      acct.LastName,
		IsTestAccount: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if acct.PropertyID != "" {
		p := acct.PropertyID
		user.PropertyID = &p
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return &ProvisionResult{User: user, Password: password, Created: true}, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches a bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func validatePassword(p string) error {
	if len([]rune(p)) < MinPasswordLength {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	return nil
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#%*"

// GeneratePassword returns a random password of n characters drawn from an
// alphabet without look-alike characters.
func GeneratePassword(n int) (string, error) {
	if n < MinPasswordLength {
		n = MinPasswordLength
	}
	max := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
