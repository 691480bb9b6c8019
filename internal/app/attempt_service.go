package app

import (
	"context"
	"errors"
	"time"

	"quiz-attempt-service/internal/domain"
)

// AttemptStore abstracts the mutable attempt/response state (in-memory, Postgres).
// CreateAttempt must fail with domain.ErrAttemptConflict when the storage-level
// uniqueness constraint on (user, quiz) is violated; CloseAttempt must fail with
// domain.ErrNoActiveAttempt unless the row is still open when the update lands.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
	OpenAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error)
	CloseAttempt(ctx context.Context, attemptID int64, endTime time.Time, score float64) (domain.Attempt, error)
	UpsertResponse(ctx context.Context, attemptID, questionID, optionID int64) (domain.Response, error)
	DeleteResponse(ctx context.Context, attemptID, questionID int64) error
	ListResponses(ctx context.Context, attemptID int64) ([]domain.Response, error)
}

// Catalog loads quiz content (questions, options, correctness) from the
// read-only authoring data, possibly through a cache.
type Catalog interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// AttemptService owns the attempt state machine: Start, Answer, Close.
type AttemptService struct {
	store   AttemptStore
	catalog Catalog
	feed    *LeaderboardFeed // optional; closed attempts refresh the live feed
	now     func() time.Time
}

func NewAttemptService(store AttemptStore, catalog Catalog, feed *LeaderboardFeed) *AttemptService {
	return NewAttemptServiceWithClock(store, catalog, feed, time.Now)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(store AttemptStore, catalog Catalog, feed *LeaderboardFeed, now func() time.Time) *AttemptService {
	return &AttemptService{store: store, catalog: catalog, feed: feed, now: now}
}

// Start returns the user's open attempt for the quiz, creating one if needed.
// created reports whether a new attempt was persisted, so client retries and
// page reloads resume instead of spawning duplicates. A uniqueness conflict is
// a normal branch: re-read, and only when the conflicting row is closed does
// the call fail with domain.ErrAlreadySubmitted.
func (s *AttemptService) Start(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return domain.Attempt{}, false, err
	}

	if attempt, ok, err := s.store.OpenAttempt(ctx, userID, quizID); err != nil {
		return domain.Attempt{}, false, err
	} else if ok {
		return attempt, false, nil
	}

	attempt, err := s.store.CreateAttempt(ctx, domain.Attempt{
		UserID:     userID,
		QuizID:     quizID,
		StartTime:  s.now().UTC(),
		InProgress: true,
	})
	if err == nil {
		return attempt, true, nil
	}
	if !errors.Is(err, domain.ErrAttemptConflict) {
		return domain.Attempt{}, false, err
	}

	// Lost the race. If the winner's row is still open this is a resume; if it
	// is closed the quiz was already submitted.
	existing, ok, err := s.store.OpenAttempt(ctx, userID, quizID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	if ok {
		return existing, false, nil
	}
	return domain.Attempt{}, false, domain.ErrAlreadySubmitted
}

// Answer records, overwrites, or (with a nil option) clears the user's choice
// for a question in their open attempt. At most one response row ever exists
// per (attempt, question); repeated calls are idempotent in final state.
func (s *AttemptService) Answer(ctx context.Context, userID, quizID, questionID int64, optionID *int64) (*domain.Response, error) {
	attempt, ok, err := s.store.OpenAttempt(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoActiveAttempt
	}

	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	question, ok := findQuestion(quiz, questionID)
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}

	if optionID == nil {
		if err := s.store.DeleteResponse(ctx, attempt.ID, questionID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if !hasOption(question, *optionID) {
		return nil, domain.ErrOptionNotFound
	}

	response, err := s.store.UpsertResponse(ctx, attempt.ID, questionID, *optionID)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Close is the terminal transition: it stamps end_time, computes the score
// from the recorded responses, and flips the attempt out of progress. A second
// Close (or a Close with no open attempt) fails with domain.ErrNoActiveAttempt.
func (s *AttemptService) Close(ctx context.Context, userID, quizID int64) (domain.Attempt, error) {
	attempt, ok, err := s.store.OpenAttempt(ctx, userID, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !ok {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}

	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	responses, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return domain.Attempt{}, err
	}

	closed, err := s.store.CloseAttempt(ctx, attempt.ID, s.now().UTC(), scoreAttempt(quiz, responses))
	if err != nil {
		return domain.Attempt{}, err
	}

	if s.feed != nil {
		s.feed.Publish(ctx, quizID)
	}
	return closed, nil
}

// SavedResponses returns the user's recorded choices for their open attempt,
// keyed by question, so a reloaded client can restore its selections. An empty
// map (not an error) is returned when no attempt is open.
func (s *AttemptService) SavedResponses(ctx context.Context, userID, quizID int64) (map[int64]int64, error) {
	attempt, ok, err := s.store.OpenAttempt(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	saved := make(map[int64]int64)
	if !ok {
		return saved, nil
	}
	responses, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	for _, response := range responses {
		if response.OptionID != nil {
			saved[response.QuestionID] = *response.OptionID
		}
	}
	return saved, nil
}

// scoreAttempt sums marks over responses whose selected option is flagged
// correct. Unanswered questions and wrong selections contribute zero.
func scoreAttempt(quiz domain.Quiz, responses []domain.Response) float64 {
	marks := make(map[int64]float64, len(quiz.Questions))
	correct := make(map[int64]map[int64]bool, len(quiz.Questions))
	for _, question := range quiz.Questions {
		marks[question.ID] = question.Marks
		ids := make(map[int64]bool)
		for _, option := range question.Options {
			if option.IsCorrect {
				ids[option.ID] = true
			}
		}
		correct[question.ID] = ids
	}

	var score float64
	for _, response := range responses {
		if response.OptionID == nil {
			continue
		}
		if correct[response.QuestionID][*response.OptionID] {
			score += marks[response.QuestionID]
		}
	}
	return score
}

func findQuestion(quiz domain.Quiz, questionID int64) (domain.Question, bool) {
	for _, question := range quiz.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return domain.Question{}, false
}

func hasOption(question domain.Question, optionID int64) bool {
	for _, option := range question.Options {
		if option.ID == optionID {
			return true
		}
	}
	return false
}
