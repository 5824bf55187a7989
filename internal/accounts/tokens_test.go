package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

func TestTokens_IssueAndParse(t *testing.T) {
	st := storetest.New(t)
	tokens := NewTokens(st, testConfig())

	pair, err := tokens.Issue("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access, pair.Refresh)

	claims, err := tokens.Parse(pair.Access, tokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.NotEmpty(t, claims.JTI)

	_, err = tokens.Parse(pair.Refresh, tokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = tokens.Parse(pair.Access, tokenTypeRefresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = tokens.Parse("not-a-jwt", tokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokens_RejectsOtherSecretsAndAlgorithms(t *testing.T) {
	st := storetest.New(t)
	tokens := NewTokens(st, testConfig())

	other := testConfig()
	other.JWTSecret = "someone-else"
	forged, err := NewTokens(st, other).Issue("user-1")
	require.NoError(t, err)
	_, err = tokens.Parse(forged.Access, tokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": "user-1", "type": tokenTypeAccess, "jti": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(unsigned, tokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokens_Expiry(t *testing.T) {
	st := storetest.New(t)
	tokens := NewTokens(st, testConfig())

	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return issued })
	pair, err := tokens.Issue("user-1")
	require.NoError(t, err)

	st.SetClock(func() time.Time { return issued.Add(2 * time.Minute) })
	_, err = tokens.Parse(pair.Access, tokenTypeAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = tokens.Parse(pair.Refresh, tokenTypeRefresh)
	assert.NoError(t, err)
}

func TestTokens_RotateBlacklistsOldRefresh(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	userID := storetest.CreateUser(t, st, "rotator")
	tokens := NewTokens(st, testConfig())

	pair, err := tokens.Issue(userID)
	require.NoError(t, err)

	next, claims, err := tokens.Rotate(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.NotEqual(t, pair.Refresh, next.Refresh)

	_, _, err = tokens.Rotate(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = tokens.ParseRefresh(ctx, next.Refresh)
	assert.NoError(t, err)
}

func TestTokens_PurgeExpired(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	tokens := NewTokens(st, testConfig())

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return now })
	require.NoError(t, tokens.Revoke(ctx, &Claims{UserID: "u", JTI: "old", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, tokens.Revoke(ctx, &Claims{UserID: "u", JTI: "live", ExpiresAt: now.Add(time.Hour)}))
	assert.ErrorIs(t, tokens.Revoke(ctx, &Claims{UserID: "u", JTI: "live", ExpiresAt: now.Add(time.Hour)}), ErrTokenRevoked)

	n, err := tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTokens_RotateRequiresActiveUser(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	userID := storetest.CreateUser(t, st, "leaver")
	tokens := NewTokens(st, testConfig())

	pair, err := tokens.Issue(userID)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE users SET is_active = FALSE WHERE id = $1`, userID)
	require.NoError(t, err)

	_, _, err = tokens.Rotate(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInactiveUser)

	ghost, err := tokens.Issue("no-such-user")
	require.NoError(t, err)
	_, _, err = tokens.Rotate(ctx, ghost.Refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = st.DB().Exec(`UPDATE users SET is_active = TRUE WHERE id = $1`, userID)
	require.NoError(t, err)
	_, _, err = tokens.Rotate(ctx, pair.Refresh)
	assert.NoError(t, err)
}
