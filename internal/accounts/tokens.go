package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// Token types carried in the "type" claim.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPair is a signed access/refresh pair.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Claims is the validated content of a token.
type Claims struct {
	UserID    string
	Type      string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens issues and validates HS256 token pairs and keeps the refresh
// token blacklist.
type Tokens struct {
	store  *store.Store
	secret []byte
	issuer string
	access time.Duration
	fresh  time.Duration
}

// NewTokens creates a token service from cfg.
func NewTokens(st *store.Store, cfg *Config) *Tokens {
	return &Tokens{
		store:  st,
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		access: cfg.AccessTTL,
		fresh:  cfg.RefreshTTL,
	}
}

// Issue signs a new pair for userID.
func (t *Tokens) Issue(userID string) (*TokenPair, error) {
	now := t.store.Now()
	access, err := t.sign(userID, tokenTypeAccess, now, t.access)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := t.sign(userID, tokenTypeRefresh, now, t.fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (t *Tokens) sign(userID, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"type":    tokenType,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
		"jti":     uuid.NewString(),
		"sub":     userID,
	}
	if t.issuer != "" {
		claims["iss"] = t.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates tokenString and checks it is of the wanted type.
func (t *Tokens) Parse(tokenString, wantType string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigning, token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.store.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	tokenType, _ := claims["type"].(string)
	if tokenType != wantType {
		return nil, ErrTokenInvalid
	}
	userID, _ := claims["user_id"].(string)
	jti, _ := claims["jti"].(string)
	if userID == "" || jti == "" {
		return nil, ErrTokenInvalid
	}

	out := &Claims{UserID: userID, Type: tokenType, JTI: jti}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// ParseRefresh validates a refresh token and checks the blacklist.
func (t *Tokens) ParseRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := t.Parse(tokenString, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	var n int
	if err := t.store.Q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = $1`, claims.JTI).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if n > 0 {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke blacklists a refresh token.
func (t *Tokens) Revoke(ctx context.Context, claims *Claims) error {
	_, err := t.store.Q(ctx).ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, user_id, expires_at, revoked_at) VALUES ($1, $2, $3, $4)`,
		claims.JTI, claims.UserID, claims.ExpiresAt, t.store.Now())
	if store.IsUniqueViolation(err) {
		return ErrTokenRevoked
	}
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// Rotate exchanges a refresh token for a new pair and revokes the old one.
func (t *Tokens) Rotate(ctx context.Context, refresh string) (*TokenPair, *Claims, error) {
	var pair *TokenPair
	var claims *Claims
	err := t.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if claims, err = t.ParseRefresh(ctx, refresh); err != nil {
			return err
		}
		if err = t.checkActive(ctx, claims.UserID); err != nil {
			return err
		}
		if err = t.Revoke(ctx, claims); err != nil {
			return err
		}
		pair, err = t.Issue(claims.UserID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return pair, claims, nil
}

// checkActive rejects refresh tokens of deleted or deactivated users.
func (t *Tokens) checkActive(ctx context.Context, userID string) error {
	var active bool
	err := t.store.Q(ctx).QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("failed to load token user: %w", err)
	}
	if !active {
		return ErrInactiveUser
	}
	return nil
}

// PurgeExpired drops blacklist rows whose tokens can no longer be presented.
func (t *Tokens) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := t.store.Q(ctx).ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, t.store.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
