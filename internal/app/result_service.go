package app

import (
	"context"
	"sort"

	"quiz-attempt-service/internal/domain"
)

// ResultStore is the read side of the attempt state used for result views.
// ListClosedAttemptsByUser returns attempts ordered by end_time descending.
type ResultStore interface {
	LatestClosedAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error)
	ListResponses(ctx context.Context, attemptID int64) ([]domain.Response, error)
	ListClosedAttemptsByUser(ctx context.Context, userID int64) ([]domain.Attempt, error)
	ListResponsesByAttempts(ctx context.Context, attemptIDs []int64) (map[int64][]domain.Response, error)
}

// ResultService builds post-close views: the full per-question breakdown of a
// single attempt and the user's aggregate history. Read paths trust the score
// stored at close time and never recompute it.
type ResultService struct {
	store   ResultStore
	catalog Catalog
}

func NewResultService(store ResultStore, catalog Catalog) *ResultService {
	return &ResultService{store: store, catalog: catalog}
}

// FullResult reviews the user's most recently closed attempt at a quiz: every
// catalog question joined against the attempt's responses, with selection and
// correctness flags disclosed. It only serves closed attempts; an open attempt
// does not count.
func (s *ResultService) FullResult(ctx context.Context, userID, quizID int64) (domain.AttemptResult, error) {
	attempt, ok, err := s.store.LatestClosedAttempt(ctx, userID, quizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if !ok {
		return domain.AttemptResult{}, domain.ErrNoAttemptFound
	}

	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	responses, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}

	selected := selectedOptions(responses)
	questions := make([]domain.QuestionResult, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		chosen, attempted := selected[question.ID]
		qr := domain.QuestionResult{
			QuestionID:  question.ID,
			Text:        question.Text,
			Marks:       question.Marks,
			IsAttempted: attempted,
			Options:     make([]domain.OptionResult, 0, len(question.Options)),
		}
		for _, option := range question.Options {
			isSelected := attempted && option.ID == chosen
			if isSelected && option.IsCorrect {
				qr.IsCorrect = true
			}
			qr.Options = append(qr.Options, domain.OptionResult{
				OptionID:   option.ID,
				Text:       option.Text,
				IsSelected: isSelected,
				IsCorrect:  option.IsCorrect,
			})
		}
		questions = append(questions, qr)
	}

	attempted, correct := responseStats(quiz, responses)
	result := domain.AttemptResult{
		AttemptID: attempt.ID,
		QuizID:    quiz.ID,
		QuizTitle: quiz.Title,
		StartTime: attempt.StartTime,
		Score:     attempt.Score,
		MaxMarks:  quiz.MaxMarks(),
		Attempted: attempted,
		Correct:   correct,
		Questions: questions,
	}
	if attempt.EndTime != nil {
		result.EndTime = *attempt.EndTime
	}
	return result, nil
}

// History lists every closed attempt for the user, newest first, each joined
// with quiz/chapter/subject names and answer statistics. The store is hit a
// fixed number of times (attempts, then all their responses in one batch) and
// the catalog once per distinct quiz, so the query count does not grow with
// the number of attempts.
func (s *ResultService) History(ctx context.Context, userID int64) ([]domain.HistoryEntry, error) {
	attempts, err := s.store.ListClosedAttemptsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(attempts))
	if len(attempts) == 0 {
		return entries, nil
	}

	attemptIDs := make([]int64, 0, len(attempts))
	for _, attempt := range attempts {
		attemptIDs = append(attemptIDs, attempt.ID)
	}
	responsesByAttempt, err := s.store.ListResponsesByAttempts(ctx, attemptIDs)
	if err != nil {
		return nil, err
	}

	quizzes := make(map[int64]domain.Quiz)
	for _, attempt := range attempts {
		if _, ok := quizzes[attempt.QuizID]; ok {
			continue
		}
		quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			return nil, err
		}
		quizzes[attempt.QuizID] = quiz
	}

	for _, attempt := range attempts {
		quiz := quizzes[attempt.QuizID]
		attempted, correct := responseStats(quiz, responsesByAttempt[attempt.ID])
		entry := domain.HistoryEntry{
			AttemptID:      attempt.ID,
			QuizID:         quiz.ID,
			QuizTitle:      quiz.Title,
			Chapter:        quiz.Chapter,
			Subject:        quiz.Subject,
			Score:          attempt.Score,
			MaxMarks:       quiz.MaxMarks(),
			TotalQuestions: len(quiz.Questions),
			Attempted:      attempted,
			Correct:        correct,
			Wrong:          attempted - correct,
			Unattempted:    len(quiz.Questions) - attempted,
		}
		if attempt.EndTime != nil {
			entry.EndTime = *attempt.EndTime
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EndTime.After(entries[j].EndTime)
	})
	return entries, nil
}

// responseStats counts attempted and correct answers against the catalog's
// correctness flags.
func responseStats(quiz domain.Quiz, responses []domain.Response) (attempted, correct int) {
	correctOptions := make(map[int64]map[int64]bool, len(quiz.Questions))
	for _, question := range quiz.Questions {
		ids := make(map[int64]bool)
		for _, option := range question.Options {
			if option.IsCorrect {
				ids[option.ID] = true
			}
		}
		correctOptions[question.ID] = ids
	}
	for _, response := range responses {
		if response.OptionID == nil {
			continue
		}
		attempted++
		if correctOptions[response.QuestionID][*response.OptionID] {
			correct++
		}
	}
	return attempted, correct
}

func selectedOptions(responses []domain.Response) map[int64]int64 {
	selected := make(map[int64]int64, len(responses))
	for _, response := range responses {
		if response.OptionID != nil {
			selected[response.QuestionID] = *response.OptionID
		}
	}
	return selected
}
