package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	catalog := infraredis.NewCatalogCache(redisClient, pgstore.NewCatalogLoader(pool), 5*time.Minute)

	store := pgstore.NewAttemptStore(db)
	boards := app.NewLeaderboardService(store, catalog)
	feed := app.NewLeaderboardFeed(boards)
	attempts := app.NewAttemptService(store, catalog, feed)
	results := app.NewResultService(store, catalog)

	attempt, created, err := attempts.Start(ctx, 1, 1)
	if err != nil || !created {
		t.Fatalf("start: created=%v err=%v", created, err)
	}

	// q1 and q3 correct, q2 wrong: 1 + 3 of {1, 2, 3}.
	for _, answer := range []struct{ question, option int64 }{
		{1, 11}, {2, 22}, {3, 32},
	} {
		if _, err := attempts.Answer(ctx, 1, 1, answer.question, &answer.option); err != nil {
			t.Fatalf("answer q%d: %v", answer.question, err)
		}
	}

	closed, err := attempts.Close(ctx, 1, 1)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ID != attempt.ID || closed.InProgress || closed.Score != 4 {
		t.Fatalf("unexpected closed attempt: %+v", closed)
	}

	result, err := results.FullResult(ctx, 1, 1)
	if err != nil {
		t.Fatalf("full result: %v", err)
	}
	if result.Score != 4 || result.MaxMarks != 6 || len(result.Questions) != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.Questions[0].IsCorrect || result.Questions[1].IsCorrect || !result.Questions[2].IsCorrect {
		t.Fatalf("unexpected correctness breakdown: %+v", result.Questions)
	}

	board, err := boards.Leaderboard(ctx, 1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if board.Participants != 1 || board.Entries[0].UserID != 1 || board.Entries[0].Score != 4 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	// The submitted quiz cannot be started again.
	if _, _, err := attempts.Start(ctx, 1, 1); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestConcurrentStartsCreateOneAttemptRow(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	catalog := memory.NewCatalogCache(pgstore.NewCatalogLoader(pool), 5*time.Minute)
	store := pgstore.NewAttemptStore(db)
	boards := app.NewLeaderboardService(store, catalog)
	attempts := app.NewAttemptService(store, catalog, app.NewLeaderboardFeed(boards))

	var createdCount atomic.Int64
	var group errgroup.Group
	for i := 0; i < 8; i++ {
		group.Go(func() error {
			_, created, err := attempts.Start(ctx, 7, 1)
			if err != nil {
				return err
			}
			if created {
				createdCount.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent start: %v", err)
	}
	if createdCount.Load() != 1 {
		t.Fatalf("expected exactly one creation, got %d", createdCount.Load())
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_attempts WHERE user_id = 7 AND quiz_id = 1`).Scan(&rows); err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one attempt row, got %d", rows)
	}
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	seed := []string{
		`INSERT INTO subjects (id, name, description) VALUES (1, 'Physics', 'Mechanics and waves')`,
		`INSERT INTO chapters (id, subject_id, name, description) VALUES (1, 1, 'Motion', 'Kinematics')`,
		`INSERT INTO quizzes (id, chapter_id, title, quiz_date, duration_minutes) VALUES (1, 1, 'Kinematics Basics', '2025-03-01T09:00:00Z', 30)`,
		`INSERT INTO questions (id, quiz_id, question, marks) VALUES
			(1, 1, 'Unit of velocity?', 1),
			(2, 1, 'Unit of acceleration?', 2),
			(3, 1, 'Scalar quantity?', 3)`,
		`INSERT INTO options (id, question_id, option_text, is_correct) VALUES
			(11, 1, 'm/s', TRUE), (12, 1, 'm/s^2', FALSE),
			(21, 2, 'm/s^2', TRUE), (22, 2, 'm/s', FALSE),
			(31, 3, 'Velocity', FALSE), (32, 3, 'Speed', TRUE)`,
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
