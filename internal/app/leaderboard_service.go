package app

import (
	"context"
	"sort"
	"time"

	"quiz-attempt-service/internal/domain"
)

// LeaderboardStore is the slice of attempt state the leaderboard reads.
type LeaderboardStore interface {
	ListClosedAttemptsByQuiz(ctx context.Context, quizID int64) ([]domain.Attempt, error)
}

// LeaderboardService derives a ranked view of closed attempts per quiz.
type LeaderboardService struct {
	store   LeaderboardStore
	catalog Catalog
	now     func() time.Time
}

func NewLeaderboardService(store LeaderboardStore, catalog Catalog) *LeaderboardService {
	return NewLeaderboardServiceWithClock(store, catalog, time.Now)
}

// NewLeaderboardServiceWithClock is test-only for deterministic timestamps.
func NewLeaderboardServiceWithClock(store LeaderboardStore, catalog Catalog, now func() time.Time) *LeaderboardService {
	return &LeaderboardService{store: store, catalog: catalog, now: now}
}

// Leaderboard ranks each user's latest closed attempt at the quiz: score
// descending, earlier finishers first at equal score, 1-based ranks. A quiz
// with no closed attempts yields an empty leaderboard, not an error.
func (s *LeaderboardService) Leaderboard(ctx context.Context, quizID int64) (domain.Leaderboard, error) {
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	attempts, err := s.store.ListClosedAttemptsByQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	// A retaker is ranked on their most recent result, not their best.
	latest := make(map[int64]domain.Attempt)
	for _, attempt := range attempts {
		if attempt.EndTime == nil {
			continue
		}
		current, ok := latest[attempt.UserID]
		if !ok || attempt.EndTime.After(*current.EndTime) {
			latest[attempt.UserID] = attempt
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(latest))
	for _, attempt := range latest {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      attempt.UserID,
			AttemptID:   attempt.ID,
			Score:       attempt.Score,
			SubmittedAt: *attempt.EndTime,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].SubmittedAt.Equal(entries[j].SubmittedAt) {
			return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		QuizID:       quiz.ID,
		QuizTitle:    quiz.Title,
		Participants: len(entries),
		Entries:      entries,
		UpdatedAt:    s.now(),
	}, nil
}
