package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"
	"go.uber.org/fx"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/mirror/internal/github"
	"github.com/jdholdren/mirror/internal/logger"
	"github.com/jdholdren/mirror/internal/migrations"
	"github.com/jdholdren/mirror/internal/mirror"
	mirrorsqlite "github.com/jdholdren/mirror/internal/sqlite"
	"github.com/jdholdren/mirror/internal/worker"
)

type config struct {
	Database         string        `env:"DATABASE, required"`
	TemporalHostPort string        `env:"TEMPORAL_HOST_PORT, required"`
	WarmInterval     time.Duration `env:"WARM_INTERVAL, default=15m"`
	WarmOnStart      bool          `env:"WARM_ON_START, default=false"`
	LoggerFormat     string        `env:"LOGGER_FORMAT, default=text"`

	GithubAPIURL string        `env:"GITHUB_API_URL, default=https://api.github.com/"`
	GithubOwner  string        `env:"GITHUB_OWNER, default=mr-adult"`
	GithubToken  string        `env:"GITHUB_TOKEN"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT, default=5s"`
	FetchRPS     float64       `env:"FETCH_RPS, default=10"`

	DocsRepo   string        `env:"DOCS_REPO, default=blog-posts"`
	ReadmePath string        `env:"README_PATH, default=README.md"`
	RefreshTTL time.Duration `env:"REFRESH_TTL, default=1h"`
	SyncWidth  int           `env:"SYNC_WIDTH, default=8"`
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

	// Documents written here reach the API's search index when it rebuilds
	// on start; the index file is owned by the API process.
	engine := mirror.NewEngine(repo, gh, mirror.NewGate(repo, cfg.RefreshTTL), mirror.EngineConfig{
		DocsRepo:   cfg.DocsRepo,
		ReadmePath: cfg.ReadmePath,
		Width:      cfg.SyncWidth,
	})

	// Retry until temporal is ready
	var temporalCli client.Client
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalHostPort,
			Namespace: worker.Namespace,
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		temporalCli = c

		return nil
	}); err != nil {
		log.Fatalln("Unable to create Temporal client:", err)
	}
	defer temporalCli.Close()

	if err := worker.EnsureNamespace(ctx, temporalCli.WorkflowService()); err != nil {
		log.Fatalf("error ensuring namespace: %s", err)
	}

	fx.New(
		fx.Supply(
			fx.Annotate(ctx, fx.As(new(context.Context))),
			fx.Annotate(temporalCli, fx.As(new(client.Client))),
			fx.Annotate(engine, fx.As(new(worker.Refresher))),
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, c client.Client, r worker.Refresher) error {
			w, err := worker.NewWorker(ctx, c, r, cfg.WarmInterval)
			if err != nil {
				return err
			}

			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					if err := w.Start(); err != nil {
						return err
					}
					if cfg.WarmOnStart {
						// Forced, so a deploy always starts from a fresh cache
						go func() {
							res, err := worker.TriggerWarm(ctx, c, true)
							if err != nil {
								slog.ErrorContext(ctx, "error warming on start", "error", err)
								return
							}
							slog.InfoContext(ctx, "warmed on start", "ran", res.Ran, "cycle_id", res.Report.CycleID)
						}()
					}
					return nil
				},
				OnStop: func(context.Context) error {
					w.Stop()
					return nil
				},
			})
			return nil
		}),
	).Run()
}
