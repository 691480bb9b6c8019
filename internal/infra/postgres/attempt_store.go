package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const pgUniqueViolation = "23505"

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID         int64      `bun:"id,pk,autoincrement"`
	UserID     int64      `bun:"user_id,notnull"`
	QuizID     int64      `bun:"quiz_id,notnull"`
	StartTime  time.Time  `bun:"start_time,notnull"`
	EndTime    *time.Time `bun:"end_time"`
	InProgress bool       `bun:"in_progress,notnull"`
	Score      float64    `bun:"score,notnull"`
	Remarks    string     `bun:"remarks,nullzero"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:quiz_responses,alias:qr"`

	ID          int64  `bun:"id,pk,autoincrement"`
	AttemptID   int64  `bun:"attempt_id,notnull"`
	QuestionID  int64  `bun:"question_id,notnull"`
	OptionID    *int64 `bun:"option_id"`
	IsAttempted bool   `bun:"is_attempted,notnull"`
}

// AttemptStore persists attempts and responses in Postgres through bun. The
// unique_user_quiz_attempt constraint is the authoritative arbiter for racing
// Start calls; violations surface as domain.ErrAttemptConflict so the service
// can re-read and branch.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	row := &attemptRow{
		UserID:     attempt.UserID,
		QuizID:     attempt.QuizID,
		StartTime:  attempt.StartTime,
		InProgress: attempt.InProgress,
		Score:      attempt.Score,
		Remarks:    attempt.Remarks,
	}
	if _, err := s.db.NewInsert().Model(row).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Attempt{}, domain.ErrAttemptConflict
		}
		return domain.Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) OpenAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("in_progress").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("select open attempt: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *AttemptStore) CloseAttempt(ctx context.Context, attemptID int64, endTime time.Time, score float64) (domain.Attempt, error) {
	row := new(attemptRow)
	res, err := s.db.NewUpdate().Model(row).
		Set("in_progress = FALSE").
		Set("end_time = ?", endTime).
		Set("score = ?", score).
		Where("id = ?", attemptID).
		Where("in_progress").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("close attempt: %w", err)
	}
	// Zero rows means the attempt was already closed (or never existed); the
	// guard on in_progress is what makes Close terminal under concurrency.
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("close attempt: %w", err)
	}
	if affected == 0 {
		return domain.Attempt{}, domain.ErrNoActiveAttempt
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) UpsertResponse(ctx context.Context, attemptID, questionID, optionID int64) (domain.Response, error) {
	row := &responseRow{
		AttemptID:   attemptID,
		QuestionID:  questionID,
		OptionID:    &optionID,
		IsAttempted: true,
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("option_id = EXCLUDED.option_id").
		Set("is_attempted = EXCLUDED.is_attempted").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Response{}, fmt.Errorf("upsert response: %w", err)
	}
	return row.responseToDomain(), nil
}

func (s *AttemptStore) DeleteResponse(ctx context.Context, attemptID, questionID int64) error {
	_, err := s.db.NewDelete().Model((*responseRow)(nil)).
		Where("attempt_id = ?", attemptID).
		Where("question_id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListResponses(ctx context.Context, attemptID int64) ([]domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]domain.Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.responseToDomain())
	}
	return out, nil
}

func (s *AttemptStore) LatestClosedAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("NOT in_progress").
		Order("end_time DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("select latest closed attempt: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *AttemptStore) ListClosedAttemptsByUser(ctx context.Context, userID int64) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("NOT in_progress").
		Order("end_time DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed attempts by user: %w", err)
	}
	return attemptsToDomain(rows), nil
}

func (s *AttemptStore) ListClosedAttemptsByQuiz(ctx context.Context, quizID int64) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("NOT in_progress").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed attempts by quiz: %w", err)
	}
	return attemptsToDomain(rows), nil
}

func (s *AttemptStore) ListResponsesByAttempts(ctx context.Context, attemptIDs []int64) (map[int64][]domain.Response, error) {
	out := make(map[int64][]domain.Response, len(attemptIDs))
	if len(attemptIDs) == 0 {
		return out, nil
	}
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Where("attempt_id IN (?)", bun.In(attemptIDs)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses by attempts: %w", err)
	}
	for _, row := range rows {
		out[row.AttemptID] = append(out[row.AttemptID], row.responseToDomain())
	}
	return out, nil
}

func (r *attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:         r.ID,
		UserID:     r.UserID,
		QuizID:     r.QuizID,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		InProgress: r.InProgress,
		Score:      r.Score,
		Remarks:    r.Remarks,
	}
}

func (r responseRow) responseToDomain() domain.Response {
	return domain.Response{
		ID:          r.ID,
		AttemptID:   r.AttemptID,
		QuestionID:  r.QuestionID,
		OptionID:    r.OptionID,
		IsAttempted: r.IsAttempted,
	}
}

func attemptsToDomain(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation
}
