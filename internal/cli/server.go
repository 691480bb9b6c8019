package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pginfra "quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	transport "quiz-attempt-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// attemptStore is the union of the app layer's store views, satisfied by both
// the memory and Postgres implementations.
type attemptStore interface {
	app.AttemptStore
	app.ResultStore
	app.LeaderboardStore
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
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
	}

	var loader memory.QuizLoader = memory.NewStaticCatalog(sampleCatalog())
	var store attemptStore = memory.NewAttemptStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pginfra.NewCatalogLoader(pool)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		store = pginfra.NewAttemptStore(db)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.Catalog
	if redisClient != nil {
		catalog = redisinfra.NewCatalogCache(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogCache(loader, catalogTTL)
	}

	boards := app.NewLeaderboardService(store, catalog)
	feed := app.NewLeaderboardFeed(boards)
	results := app.NewResultService(store, catalog)
	attempts := app.NewAttemptService(store, catalog, feed)

	handler := transport.NewHandler(attempts, results, boards, catalog)
	wsHandler := transport.NewLeaderboardWSHandler(feed)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting attempt service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleCatalog provides minimal demo content so the service can run without
// Postgres; production deployments point the loader at the catalog database.
func sampleCatalog() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:              1,
			ChapterID:       1,
			Title:           "Arithmetic Basics",
			Chapter:         "Numbers",
			Subject:         "Mathematics",
			QuizDate:        time.Now().UTC(),
			DurationMinutes: 15,
			Questions: []domain.Question{
				{
					ID:     1,
					QuizID: 1,
					Text:   "What is 2 + 2?",
					Marks:  1,
					Options: []domain.Option{
						{ID: 1, QuestionID: 1, Text: "3", IsCorrect: false},
						{ID: 2, QuestionID: 1, Text: "4", IsCorrect: true},
						{ID: 3, QuestionID: 1, Text: "5", IsCorrect: false},
					},
				},
				{
					ID:     2,
					QuizID: 1,
					Text:   "What is 3 * 3?",
					Marks:  2,
					Options: []domain.Option{
						{ID: 4, QuestionID: 2, Text: "6", IsCorrect: false},
						{ID: 5, QuestionID: 2, Text: "9", IsCorrect: true},
					},
				},
			},
		},
	}
}
