package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/content"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgloader "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, catalog, err := buildLoaders(cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	maxAge := config.TTLDuration(cfg.Sessions.MaxAge, 2*time.Hour)
	var quizRepo app.QuizRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		store = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, maxAge))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	registry := app.NewRegistry(quizRepo, store, app.Options{
		Defaults:              cfg.Game,
		MaxAge:                maxAge,
		SweepInterval:         config.TTLDuration(cfg.Sessions.SweepInterval, 30*time.Minute),
		HostGrace:             config.TTLDuration(cfg.Sessions.HostGrace, 5*time.Minute),
		FinalLeaderboardDelay: config.TTLDuration(cfg.Sessions.FinalLeaderboardDelay, 5*time.Second),
	})
	defer registry.Close()

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(registry, transport.RouterConfig{
			PublicURL: cfg.Server.PublicURL,
			Catalog:   catalog,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildLoaders chains Postgres, the configured content file and the bundled
// samples. Earlier sources win for both lookups and the catalog.
func buildLoaders(cfg config.Config, pool *pgxpool.Pool) (memory.FallbackLoader, catalogs, error) {
	var loaders memory.FallbackLoader
	var listed catalogs
	if pool != nil {
		pg := pgloader.NewQuizLoader(pool)
		loaders = append(loaders, pg)
		listed = append(listed, pg)
	}
	if cfg.Content.File != "" {
		quizzes, err := content.LoadFile(cfg.Content.File)
		if err != nil {
			return nil, nil, err
		}
		static := memory.NewStaticQuizLoader(quizzes...)
		loaders = append(loaders, static)
		listed = append(listed, static)
	}
	samples, err := content.Samples()
	if err != nil {
		return nil, nil, err
	}
	static := memory.NewStaticQuizLoader(samples...)
	loaders = append(loaders, static)
	listed = append(listed, static)
	return loaders, listed, nil
}

// catalogs merges quiz listings, keeping the first summary seen per id.
type catalogs []transport.Catalog

func (c catalogs) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	seen := make(map[string]bool)
	var out []domain.QuizSummary
	for _, catalog := range c {
		quizzes, err := catalog.ListQuizzes(ctx)
		if err != nil {
			return nil, err
		}
		for _, q := range quizzes {
			if !seen[q.ID] {
				seen[q.ID] = true
				out = append(out, q)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
