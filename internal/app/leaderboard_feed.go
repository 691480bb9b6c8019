package app

import (
	"context"
	"log"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// LeaderboardFeed fans leaderboard snapshots out to per-quiz subscribers.
// Publishing recomputes the board only when someone is listening.
type LeaderboardFeed struct {
	boards *LeaderboardService

	mu          sync.Mutex
	subscribers map[int64]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardFeed(boards *LeaderboardService) *LeaderboardFeed {
	return &LeaderboardFeed{
		boards:      boards,
		subscribers: make(map[int64]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe registers a listener for a quiz's leaderboard and delivers the
// current snapshot immediately. The caller must invoke the returned cancel
// function to avoid leaks.
func (f *LeaderboardFeed) Subscribe(ctx context.Context, quizID int64) (<-chan domain.Leaderboard, func(), error) {
	initial, err := f.boards.Leaderboard(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Leaderboard, 8)
	f.mu.Lock()
	if f.subscribers[quizID] == nil {
		f.subscribers[quizID] = make(map[chan domain.Leaderboard]struct{})
	}
	f.subscribers[quizID][ch] = struct{}{}
	f.mu.Unlock()

	ch <- initial

	cancel := func() {
		f.mu.Lock()
		if subs, ok := f.subscribers[quizID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.subscribers, quizID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// Publish recomputes the quiz's leaderboard and pushes it to subscribers.
// Slow listeners have their stale snapshot dropped rather than blocking the
// broadcast.
func (f *LeaderboardFeed) Publish(ctx context.Context, quizID int64) {
	f.mu.Lock()
	listening := len(f.subscribers[quizID]) > 0
	f.mu.Unlock()
	if !listening {
		return
	}

	board, err := f.boards.Leaderboard(ctx, quizID)
	if err != nil {
		log.Printf("leaderboard feed: refresh quiz %d: %v", quizID, err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[quizID] {
		select {
		case ch <- board:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
}
