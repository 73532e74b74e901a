package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	c, err := NewCodec([]byte("test-jwt-secret"), []byte("test-refresh-secret"), 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsBadSecrets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		access, refresh []byte
	}{
		{name: "empty access", access: nil, refresh: []byte("r")},
		{name: "empty refresh", access: []byte("a"), refresh: nil},
		{name: "same secret", access: []byte("same"), refresh: []byte("same")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewCodec(tt.access, tt.refresh, time.Minute, time.Hour)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrBadSecrets)
		})
	}
}

func TestCodec_AccessRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	userID := uuid.NewString()

	for _, role := range []string{"user", "admin", "super_admin"} {
		token, exp, err := c.IssueAccessToken(userID, role)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

		claims, err := c.VerifyAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.Subject)
		assert.Equal(t, role, claims.Role)
		assert.Equal(t, TypeAccess, claims.Type)
		require.NotNil(t, claims.IssuedAt)
		assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
	}
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	userID := uuid.NewString()

	token, jti, exp, err := c.IssueRefreshToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := c.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, TypeRefresh, claims.Type)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)

	_, jti2, _, err := c.IssueRefreshToken(userID)
	require.NoError(t, err)
	assert.NotEqual(t, jti, jti2)
}

func TestCodec_TypeConfusionRejected(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	access, _, err := c.IssueAccessToken("u1", "user")
	require.NoError(t, err)
	refresh, _, _, err := c.IssueRefreshToken("u1")
	require.NoError(t, err)

	_, err = c.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_TypeClaimCheckedEvenWithSharedKey(t *testing.T) {
	t.Parallel()

	// NewCodec refuses this configuration; build it by hand to prove the
	// type claim is enforced independently of the key split.
	c := &Codec{
		AccessSecret:  []byte("shared"),
		RefreshSecret: []byte("shared"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}
	refresh, _, _, err := c.IssueRefreshToken("u1")
	require.NoError(t, err)

	_, err = c.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	access, _, err := c.IssueAccessToken("u1", "admin")
	require.NoError(t, err)
	_, err = c.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_ExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	past := newTestCodec(t)
	past.Now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	access, _, err := past.IssueAccessToken("u1", "user")
	require.NoError(t, err)
	refresh, _, _, err := past.IssueRefreshToken("u1")
	require.NoError(t, err)

	c := newTestCodec(t)
	_, err = c.VerifyAccessToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.VerifyRefreshToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_RejectsForeignSignatureAndAlg(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)

	other, err := NewCodec([]byte("other-access"), []byte("other-refresh"), time.Minute, time.Hour)
	require.NoError(t, err)
	forged, _, err := other.IssueAccessToken("u1", "super_admin")
	require.NoError(t, err)
	_, err = c.VerifyAccessToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		Role: "admin",
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.VerifyAccessToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, garbage := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err = c.VerifyAccessToken(garbage)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}
