package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/campus_events/internal/db"
	"github.com/Skotchmaster/campus_events/internal/models"
)

// newPostgresRepo runs against a real database; the sqlite suite covers the
// same paths without one.
func newPostgresRepo(t *testing.T) *GormRepo {
	t.Helper()

	dsn := os.Getenv("AUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTH_TEST_DATABASE_URL is required for tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	gdb, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() {
		gdb.Exec("TRUNCATE TABLE refresh_tokens, users RESTART IDENTITY CASCADE")
		_ = db.Close(gdb)
	})
	return New(gdb)
}

func TestPostgres_LedgerLifecycle(t *testing.T) {
	r := newPostgresRepo(t)
	ctx := context.Background()

	u := &models.User{Email: "u_" + uuid.NewString() + "@example.com", Username: "u_" + uuid.NewString()[:8]}
	require.NoError(t, r.CreateUserIfNotExists(ctx, u))

	jti := uuid.NewString()
	require.NoError(t, r.RecordRefresh(ctx, jti, u.ID, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, r.RecordRefresh(ctx, jti, u.ID, time.Now().Add(time.Hour)), ErrDuplicateJTI)

	flipped, err := r.RevokeByJTI(ctx, jti)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = r.RevokeByJTI(ctx, jti)
	require.NoError(t, err)
	assert.False(t, flipped)
}
