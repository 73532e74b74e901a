package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Skotchmaster/campus_events/internal/config"
	"github.com/Skotchmaster/campus_events/internal/db"
	"github.com/Skotchmaster/campus_events/internal/events"
	"github.com/Skotchmaster/campus_events/internal/httpserver"
	"github.com/Skotchmaster/campus_events/internal/jobs"
	"github.com/Skotchmaster/campus_events/internal/logging"
	"github.com/Skotchmaster/campus_events/internal/metrics"
	mw "github.com/Skotchmaster/campus_events/internal/middleware"
	"github.com/Skotchmaster/campus_events/internal/oauth"
	"github.com/Skotchmaster/campus_events/internal/repo"
	"github.com/Skotchmaster/campus_events/internal/service"
	"github.com/Skotchmaster/campus_events/internal/tokens"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.LogLevel, cfg.Env).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	codec, err := tokens.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	providers, err := newProviders(cfg)
	if err != nil {
		log.Fatalf("oauth providers: %v", err)
	}

	gormRepo := repo.New(gdb)
	authSvc := &service.AuthService{
		Repo:       gormRepo,
		Tokens:     codec,
		Providers:  providers,
		Events:     publisher,
		Metrics:    m,
		BcryptCost: cfg.BcryptCost,
	}
	accounts := &service.AccountService{
		Repo:       gormRepo,
		Sessions:   authSvc,
		BcryptCost: cfg.BcryptCost,
	}

	pruner := &jobs.Pruner{Ledger: gormRepo, Metrics: m, Log: logger.With("job", "ledger_prune")}
	if err := pruner.Start(cfg.LedgerPruneSchedule); err != nil {
		log.Fatalf("ledger prune schedule %q: %v", cfg.LedgerPruneSchedule, err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(mw.RequestLogger(logger))
	e.Use(m.Middleware())

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc:           authSvc,
			Accounts:      accounts,
			SecureCookies: cfg.Production(),
		},
		AdminHandler:  &httpserver.AdminHTTP{Accounts: accounts},
		Authenticator: &mw.Authenticator{Tokens: codec, Accounts: gormRepo},
		Ready:         func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		Gatherer:      reg,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		logger.Info("server_starting", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
	pruner.Stop(shutdownCtx)
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_failed", "error", err)
	}
	logger.Info("server_stopped")
}

func newPublisher(cfg config.Config, logger *slog.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("events_disabled", "reason", "KAFKA_BROKERS is empty")
		return events.Nop{}, func() {}
	}
	kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Fatalf("kafka publisher: %v", err)
	}
	return kp, func() {
		if err := kp.Close(); err != nil {
			logger.Error("kafka_close_failed", "error", err)
		}
	}
}

func newProviders(cfg config.Config) (oauth.Registry, error) {
	var list []oauth.Provider

	if cfg.Google.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		google, err := oauth.NewGoogleProvider(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		list = append(list, google)
	}
	if cfg.GitHub.Enabled() {
		github, err := oauth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.RedirectURL)
		if err != nil {
			return nil, fmt.Errorf("github: %w", err)
		}
		list = append(list, github)
	}
	return oauth.NewRegistry(list...), nil
}
