package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// AttemptStore keeps attempt/response state in process. It enforces the same
// invariants as the Postgres store: one attempt per (user, quiz) and one
// response per (attempt, question). Useful for tests and dependency-free runs.
type AttemptStore struct {
	mu             sync.Mutex
	nextAttemptID  int64
	nextResponseID int64
	attempts       map[int64]domain.Attempt
	responses      map[int64]domain.Response
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[int64]domain.Attempt),
		responses: make(map[int64]domain.Response),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.UserID == attempt.UserID && existing.QuizID == attempt.QuizID {
			return domain.Attempt{}, domain.ErrAttemptConflict
		}
	}
	s.nextAttemptID++
	attempt.ID = s.nextAttemptID
	s.attempts[attempt.ID] = attempt
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) OpenAttempt(_ context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.InProgress {
			return cloneAttempt(attempt), true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (s *AttemptStore) CloseAttempt(_ context.Context, attemptID int64, endTime time.Time, score float64) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || !attempt.InProgress {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	attempt.InProgress = false
	attempt.EndTime = &endTime
	attempt.Score = score
	s.attempts[attemptID] = attempt
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) UpsertResponse(_ context.Context, attemptID, questionID, optionID int64) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, response := range s.responses {
		if response.AttemptID == attemptID && response.QuestionID == questionID {
			response.OptionID = &optionID
			response.IsAttempted = true
			s.responses[id] = response
			return cloneResponse(response), nil
		}
	}
	s.nextResponseID++
	response := domain.Response{
		ID:          s.nextResponseID,
		AttemptID:   attemptID,
		QuestionID:  questionID,
		OptionID:    &optionID,
		IsAttempted: true,
	}
	s.responses[response.ID] = response
	return cloneResponse(response), nil
}

func (s *AttemptStore) DeleteResponse(_ context.Context, attemptID, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, response := range s.responses {
		if response.AttemptID == attemptID && response.QuestionID == questionID {
			delete(s.responses, id)
			return nil
		}
	}
	return nil
}

func (s *AttemptStore) ListResponses(_ context.Context, attemptID int64) ([]domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Response
	for _, response := range s.responses {
		if response.AttemptID == attemptID {
			out = append(out, cloneResponse(response))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *AttemptStore) LatestClosedAttempt(_ context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.Attempt
	found := false
	for _, attempt := range s.attempts {
		if attempt.UserID != userID || attempt.QuizID != quizID || attempt.InProgress || attempt.EndTime == nil {
			continue
		}
		if !found || attempt.EndTime.After(*latest.EndTime) {
			latest = attempt
			found = true
		}
	}
	if !found {
		return domain.Attempt{}, false, nil
	}
	return cloneAttempt(latest), true, nil
}

func (s *AttemptStore) ListClosedAttemptsByUser(_ context.Context, userID int64) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && !attempt.InProgress {
			out = append(out, cloneAttempt(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndTime.After(*out[j].EndTime)
	})
	return out, nil
}

func (s *AttemptStore) ListClosedAttemptsByQuiz(_ context.Context, quizID int64) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && !attempt.InProgress {
			out = append(out, cloneAttempt(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *AttemptStore) ListResponsesByAttempts(_ context.Context, attemptIDs []int64) (map[int64][]domain.Response, error) {
	wanted := make(map[int64]bool, len(attemptIDs))
	for _, id := range attemptIDs {
		wanted[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]domain.Response, len(attemptIDs))
	for _, response := range s.responses {
		if wanted[response.AttemptID] {
			out[response.AttemptID] = append(out[response.AttemptID], cloneResponse(response))
		}
	}
	for _, responses := range out {
		sort.Slice(responses, func(i, j int) bool { return responses[i].ID < responses[j].ID })
	}
	return out, nil
}

func cloneAttempt(attempt domain.Attempt) domain.Attempt {
	if attempt.EndTime != nil {
		end := *attempt.EndTime
		attempt.EndTime = &end
	}
	return attempt
}

func cloneResponse(response domain.Response) domain.Response {
	if response.OptionID != nil {
		option := *response.OptionID
		response.OptionID = &option
	}
	return response
}
