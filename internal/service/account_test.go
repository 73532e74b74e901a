package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/campus_events/internal/models"
)

func registerWithRole(t *testing.T, env *testEnv, email, role string) *AuthResult {
	t.Helper()

	ctx := context.Background()
	res, err := env.Auth.Register(ctx, email, "Secret123!")
	require.NoError(t, err)
	if role != models.RoleUser {
		require.NoError(t, env.Repo.UpdateRole(ctx, res.User.ID, role))
		res.User.Role = role
	}
	return res
}

func TestBan_RevokesSessionsAndBlocksLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := registerWithRole(t, env, "admin@example.com", models.RoleAdmin)
	target := registerWithRole(t, env, "bob@example.com", models.RoleUser)

	require.NoError(t, env.Accounts.Ban(ctx, admin.User, target.User.ID, "spam", nil))

	_, err := env.Auth.Refresh(ctx, target.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.Auth.Login(ctx, "bob@example.com", "Secret123!")
	assert.ErrorIs(t, err, ErrForbidden)

	// Access tokens issued before the ban stay verifiable until they expire.
	_, err = env.Auth.Tokens.VerifyAccessToken(target.AccessToken)
	assert.NoError(t, err)

	require.NoError(t, env.Accounts.Unban(ctx, target.User.ID))
	_, err = env.Auth.Login(ctx, "bob@example.com", "Secret123!")
	assert.NoError(t, err)
}

func TestBan_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	super := registerWithRole(t, env, "root@example.com", models.RoleSuperAdmin)
	admin := registerWithRole(t, env, "admin@example.com", models.RoleAdmin)
	other := registerWithRole(t, env, "admin2@example.com", models.RoleAdmin)

	assert.ErrorIs(t, env.Accounts.Ban(ctx, admin.User, admin.User.ID, "", nil), ErrForbidden)
	assert.ErrorIs(t, env.Accounts.Ban(ctx, admin.User, super.User.ID, "", nil), ErrForbidden)
	assert.ErrorIs(t, env.Accounts.Ban(ctx, admin.User, other.User.ID, "", nil), ErrForbidden)
	assert.ErrorIs(t, env.Accounts.Ban(ctx, admin.User, uuid.New(), "", nil), ErrNotFound)

	past := time.Now().Add(-time.Hour)
	assert.ErrorIs(t, env.Accounts.Ban(ctx, super.User, other.User.ID, "", &past), ErrValidation)

	assert.NoError(t, env.Accounts.Ban(ctx, super.User, other.User.ID, "rogue admin", nil))
	assert.ErrorIs(t, env.Accounts.Unban(ctx, uuid.New()), ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := registerWithRole(t, env, "alice@example.com", models.RoleUser)

	err := env.Accounts.ChangePassword(ctx, alice.User.ID, "wrong-pass", "NewSecret456!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.Accounts.ChangePassword(ctx, alice.User.ID, "Secret123!", "short")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.Accounts.ChangePassword(ctx, alice.User.ID, "Secret123!", "NewSecret456!"))

	_, err = env.Auth.Refresh(ctx, alice.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.Auth.Login(ctx, "alice@example.com", "Secret123!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.Auth.Login(ctx, "alice@example.com", "NewSecret456!")
	assert.NoError(t, err)
}

func TestChangePassword_FederatedOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.Auth.FederatedSignIn(ctx, "google", "code")
	require.NoError(t, err)

	err = env.Accounts.ChangePassword(ctx, res.User.ID, "", "NewSecret456!")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestChangeRole_KeepsSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	super := registerWithRole(t, env, "root@example.com", models.RoleSuperAdmin)
	bob := registerWithRole(t, env, "bob@example.com", models.RoleUser)

	assert.ErrorIs(t, env.Accounts.ChangeRole(ctx, super.User, bob.User.ID, "overlord"), ErrValidation)
	assert.ErrorIs(t, env.Accounts.ChangeRole(ctx, super.User, super.User.ID, models.RoleUser), ErrForbidden)
	assert.ErrorIs(t, env.Accounts.ChangeRole(ctx, super.User, uuid.New(), models.RoleAdmin), ErrNotFound)

	require.NoError(t, env.Accounts.ChangeRole(ctx, super.User, bob.User.ID, models.RoleAdmin))

	rotated, err := env.Auth.Refresh(ctx, bob.RefreshToken)
	require.NoError(t, err)
	claims, err := env.Auth.Tokens.VerifyAccessToken(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}
