package app_test

import (
	"context"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/infra/memory"
)

func TestFeedDeliversSnapshotOnSubscribe(t *testing.T) {
	store := memory.NewAttemptStore()
	feed := app.NewLeaderboardFeed(app.NewLeaderboardService(store, testCatalog()))

	updates, cancel, err := feed.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	select {
	case board := <-updates:
		if board.QuizID != 1 || board.Participants != 0 {
			t.Fatalf("unexpected initial snapshot: %+v", board)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected initial snapshot")
	}
}

func TestFeedPublishesWhenAttemptCloses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()
	catalog := testCatalog()
	feed := app.NewLeaderboardFeed(app.NewLeaderboardService(store, catalog))
	service := app.NewAttemptService(store, catalog, feed)

	updates, cancel, err := feed.Subscribe(ctx, 1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates // initial snapshot

	if _, _, err := service.Start(ctx, 5, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Answer(ctx, 5, 1, 1, opt(11)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := service.Close(ctx, 5, 1); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case board := <-updates:
		if board.Participants != 1 || board.Entries[0].UserID != 5 || board.Entries[0].Score != 1 {
			t.Fatalf("unexpected published board: %+v", board)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected leaderboard update after close")
	}
}

func TestFeedCancelClosesChannel(t *testing.T) {
	store := memory.NewAttemptStore()
	feed := app.NewLeaderboardFeed(app.NewLeaderboardService(store, testCatalog()))

	updates, cancel, err := feed.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-updates
	cancel()

	if _, ok := <-updates; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	// Second cancel must be a no-op.
	cancel()
}
