// Package accounts owns users, password login, API tokens and JWT pairs,
// and the signup flow that creates a user together with their organization.
package accounts

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// User is an account that can sign in.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	DateJoined   time.Time  `json:"date_joined"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Identity is the request identity other modules see for u.
func (u *User) Identity() *authctx.User {
	return &authctx.User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
}

// APIToken is an opaque login token.
type APIToken struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user"`
	CreatedAt time.Time `json:"created"`
}

const userColumns = `id, username, email, first_name, last_name, password_hash,
	is_active, is_staff, is_superuser, date_joined, last_login`

func scanUser(row store.Scanner) (*User, error) {
	var u User
	var last sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.DateJoined, &last); err != nil {
		return nil, err
	}
	u.LastLogin = store.TimePtr(last)
	return &u, nil
}

// Users persists accounts and API tokens.
type Users struct {
	store *store.Store
	cost  int
}

// NewUsers creates a user repository hashing with the given bcrypt cost.
func NewUsers(st *store.Store, cost int) *Users {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Users{store: st, cost: cost}
}

// HashPassword hashes a password using bcrypt
func (r *Users) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against its hash
func (r *Users) VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Create hashes password and inserts u.
func (r *Users) Create(ctx context.Context, u User, password string) (*User, error) {
	hash, err := r.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.ID = store.NewID()
	u.PasswordHash = hash
	u.IsActive = true
	u.DateJoined = r.store.Now()
	_, err = r.store.Q(ctx).ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
		u.IsActive, u.IsStaff, u.IsSuperuser, u.DateJoined, nil)
	if store.IsUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &u, nil
}

// Get loads a user by id.
func (r *Users) Get(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.store.Q(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "user")
	}
	return u, nil
}

// GetByUsername loads a user by username.
func (r *Users) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.store.Q(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, store.NotFound(err, "user")
	}
	return u, nil
}

// UsernameExists reports whether username is taken.
func (r *Users) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// TouchLastLogin records a successful login.
func (r *Users) TouchLastLogin(ctx context.Context, id string) error {
	if _, err := r.store.Q(ctx).ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, r.store.Now(), id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func newTokenKey() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GetOrCreateToken returns the user's API token, creating one if needed.
func (r *Users) GetOrCreateToken(ctx context.Context, userID string) (*APIToken, error) {
	var tok APIToken
	err := r.store.Q(ctx).QueryRowContext(ctx,
		`SELECT token_key, user_id, created_at FROM api_tokens WHERE user_id = $1 ORDER BY created_at LIMIT 1`, userID).
		Scan(&tok.Key, &tok.UserID, &tok.CreatedAt)
	if err == nil {
		return &tok, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	key, err := newTokenKey()
	if err != nil {
		return nil, err
	}
	tok = APIToken{Key: key, UserID: userID, CreatedAt: r.store.Now()}
	if _, err := r.store.Q(ctx).ExecContext(ctx,
		`INSERT INTO api_tokens (token_key, user_id, created_at) VALUES ($1, $2, $3)`,
		tok.Key, tok.UserID, tok.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return &tok, nil
}

// TokenUser returns the user owning key.
func (r *Users) TokenUser(ctx context.Context, key string, ttl time.Duration) (*User, error) {
	var userID string
	var created time.Time
	err := r.store.Q(ctx).QueryRowContext(ctx,
		`SELECT user_id, created_at FROM api_tokens WHERE token_key = $1`, key).Scan(&userID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if ttl > 0 && r.store.Now().After(created.Add(ttl)) {
		return nil, ErrTokenExpired
	}
	return r.Get(ctx, userID)
}

// DeleteTokens removes every API token of userID.
func (r *Users) DeleteTokens(ctx context.Context, userID string) error {
	if _, err := r.store.Q(ctx).ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}
