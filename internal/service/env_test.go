package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/campus_events/internal/db"
	"github.com/Skotchmaster/campus_events/internal/events"
	"github.com/Skotchmaster/campus_events/internal/metrics"
	"github.com/Skotchmaster/campus_events/internal/oauth"
	"github.com/Skotchmaster/campus_events/internal/repo"
	"github.com/Skotchmaster/campus_events/internal/tokens"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeProvider struct {
	name    string
	profile *oauth.Profile
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Exchange(context.Context, string) (*oauth.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

type testEnv struct {
	Auth     *AuthService
	Accounts *AccountService
	Repo     *repo.GormRepo
	Events   *recordingPublisher
	Google   *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	codec, err := tokens.NewCodec([]byte("access-secret"), []byte("refresh-secret"), 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	r := repo.New(gdb)
	pub := &recordingPublisher{}
	google := &fakeProvider{
		name:    "google",
		profile: &oauth.Profile{Email: "carol@example.com", Name: "Carol", AvatarURL: "https://img.example.com/carol.png"},
	}

	auth := &AuthService{
		Repo:       r,
		Tokens:     codec,
		Providers:  oauth.NewRegistry(google),
		Events:     pub,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		BcryptCost: bcrypt.MinCost,
	}
	return &testEnv{
		Auth:     auth,
		Accounts: &AccountService{Repo: r, Sessions: auth, BcryptCost: bcrypt.MinCost},
		Repo:     r,
		Events:   pub,
		Google:   google,
	}
}
