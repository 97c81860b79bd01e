package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/fx"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/mirror/internal/github"
	"github.com/jdholdren/mirror/internal/logger"
	"github.com/jdholdren/mirror/internal/metrics"
	"github.com/jdholdren/mirror/internal/migrations"
	"github.com/jdholdren/mirror/internal/mirror"
	"github.com/jdholdren/mirror/internal/render"
	"github.com/jdholdren/mirror/internal/search"
	"github.com/jdholdren/mirror/internal/server"
	mirrorsqlite "github.com/jdholdren/mirror/internal/sqlite"
)

type config struct {
	Database     string `env:"DATABASE, required"`
	Port         int    `env:"PORT, default=3000"`
	CorsOrigin   string `env:"CORS_ORIGIN, default=*"`
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	GithubAPIURL string        `env:"GITHUB_API_URL, default=https://api.github.com/"`
	GithubOwner  string        `env:"GITHUB_OWNER, default=mr-adult"`
	GithubToken  string        `env:"GITHUB_TOKEN"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT, default=5s"`
	FetchRPS     float64       `env:"FETCH_RPS, default=10"`

	DocsRepo    string        `env:"DOCS_REPO, default=blog-posts"`
	ReadmePath  string        `env:"README_PATH, default=README.md"`
	RefreshTTL  time.Duration `env:"REFRESH_TTL, default=1h"`
	SyncWidth   int           `env:"SYNC_WIDTH, default=8"`
	SearchIndex string        `env:"SEARCH_INDEX"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stdout, cfg.LoggerFormat, slog.LevelInfo))

	// Connect to the sqlite db
	dbx, err := mirrorsqlite.Open(cfg.Database)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}
	repo := mirrorsqlite.New(dbx)

	gh, err := github.New(ctx, github.Config{
		BaseURL: cfg.GithubAPIURL,
		Owner:   cfg.GithubOwner,
		Token:   cfg.GithubToken,
		Timeout: cfg.FetchTimeout,
		RPS:     cfg.FetchRPS,
	})
	if err != nil {
		log.Fatalf("error creating github client: %s", err)
	}

	// The index is derived from the cache, so it is rebuilt on every start
	idx, err := search.Open(cfg.SearchIndex)
	if err != nil {
		log.Fatalf("error opening search index: %s", err)
	}
	defer idx.Close()
	docs, err := repo.Documents(ctx)
	if err != nil {
		log.Fatalf("error reading documents: %s", err)
	}
	if err := idx.Rebuild(ctx, docs); err != nil {
		log.Fatalf("error rebuilding search index: %s", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	renderer, err := render.New()
	if err != nil {
		log.Fatalf("error creating renderer: %s", err)
	}

	engine := mirror.NewEngine(repo, gh, mirror.NewGate(repo, cfg.RefreshTTL), mirror.EngineConfig{
		DocsRepo:   cfg.DocsRepo,
		ReadmePath: cfg.ReadmePath,
		Width:      cfg.SyncWidth,
		Indexer:    idx,
		Observer:   metrics.New(reg),
	})
	svc := mirror.NewService(repo, engine, idx)

	// Start the application
	fx.New(
		fx.Supply(
			server.Config{
				Port:       cfg.Port,
				CorsOrigin: cfg.CorsOrigin,
			},
			fx.Annotate(svc, fx.As(new(server.Mirror))),
			fx.Annotate(renderer, fx.As(new(server.Renderer))),
			fx.Annotate(reg, fx.As(new(prometheus.Gatherer))),
		),
		server.Module,
		fx.Invoke(func(lc fx.Lifecycle, _ *server.Server) {
			lc.Append(fx.StopHook(func() {
				// Let a background refresh finish writing before the db closes
				engine.Wait()
			}))
		}),
	).Run()
}
