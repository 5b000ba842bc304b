package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/auditron-ci/internal/application"
	appadvisor "github.com/bryanwahyu/auditron-ci/internal/application/advisor"
	apppipelines "github.com/bryanwahyu/auditron-ci/internal/application/pipelines"
	"github.com/bryanwahyu/auditron-ci/internal/config"
	domadvisor "github.com/bryanwahyu/auditron-ci/internal/domain/advisor"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
	openaiClient "github.com/bryanwahyu/auditron-ci/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/auditron-ci/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/auditron-ci/internal/infra/db/postgres"
	localexec "github.com/bryanwahyu/auditron-ci/internal/infra/executor/local"
	"github.com/bryanwahyu/auditron-ci/internal/infra/gate"
	"github.com/bryanwahyu/auditron-ci/internal/infra/httpserver"
	manifestres "github.com/bryanwahyu/auditron-ci/internal/infra/manifests"
	"github.com/bryanwahyu/auditron-ci/internal/infra/notify"
	minioStore "github.com/bryanwahyu/auditron-ci/internal/infra/storage"
	"github.com/bryanwahyu/auditron-ci/internal/infra/vcs"
	"github.com/bryanwahyu/auditron-ci/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "auditron-api").Logger()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx := context.Background()

	db, repo, errRepo, adviceRepo, err := connectDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database connect failed")
	}
	defer db.Close()

	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("object store init failed")
	}

	prep := &localexec.VenvProvisioner{
		Dir:            cfg.Pipeline.VenvDir,
		InstallCommand: cfg.Pipeline.InstallCommand,
		TestCommand:    cfg.Pipeline.TestCommand,
		Log:            log,
	}
	runner := localexec.NewRunner()
	runner.VenvDir = cfg.Pipeline.VenvDir

	// webhook events from the analysis server are fanned into the gate
	// checker through this buffered channel
	gateEvents := make(chan gate.WebhookEvent, 16)
	checker := gate.NewChecker(gateEvents,
		cfg.Sonar.HostURL, cfg.Sonar.Token, cfg.Pipeline.ProjectKey, cfg.GateTimeout())
	checker.Log = log

	var mailer domain.Notifier
	if cfg.Mail.Host != "" {
		mailer = notify.NewMailer(cfg.Mail.Host, cfg.Mail.Port,
			cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	}

	svc := &apppipelines.Service{
		Repo:      repo,
		Errors:    errRepo,
		Resolver:  manifestres.NewResolver(),
		Runner:    runner,
		Artifacts: store,
		Notifier:  mailer,
		Gate:      checker,
		Fetcher:   vcs.NewGitFetcher(),
		Prep:      prep,
		Clock:     application.SystemClock{},
		Cfg:       cfg.Pipeline,
		SonarHost: cfg.Sonar.HostURL,
		Log:       log,
	}

	var advisorSvc *appadvisor.Service
	if cfg.OpenAI.APIKey != "" {
		advisorSvc = appadvisor.NewService(
			openaiClient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
			adviceRepo,
			application.SystemClock{},
		)
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.MetricsMiddleware)
	if keys := apiKeys(); len(keys) > 0 {
		mux.Use(middleware.APIKeyAuth(keys))
		mux.Use(middleware.RateLimitMiddleware(30, 1))
	}
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Get("/healthz", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}))
	mux.Mount("/", httpserver.NewRouter(svc, advisorSvc, gateEvents, log))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
}

// connectDatabase opens the configured driver and builds the matching
// repository set. Both drivers speak the same schema.
func connectDatabase(ctx context.Context, cfg *config.Config) (*sql.DB,
	domain.Repository, domain.ErrorRepository, domadvisor.Repository, error) {

	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return db,
			postgresp.NewPipelineRepository(db),
			postgresp.NewRunErrorRepository(db),
			postgresp.NewAdviceRepository(db),
			nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return db,
			mysqlp.NewPipelineRepository(db),
			mysqlp.NewRunErrorRepository(db),
			mysqlp.NewAdviceRepository(db),
			nil
	}
}

// apiKeys reads tenant API keys from the environment as
// API_KEYS="tenant1:key1,tenant2:key2". Empty means auth is disabled.
func apiKeys() map[string]string {
	raw := os.Getenv("API_KEYS")
	if raw == "" {
		return nil
	}
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if t, k, ok := strings.Cut(strings.TrimSpace(pair), ":"); ok && t != "" && k != "" {
			keys[t] = k
		}
	}
	return keys
}
