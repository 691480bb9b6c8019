package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads quiz/question/option definitions from Postgres. The
// catalog is owned by the authoring side; this loader never writes.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

// LoadQuiz assembles the full quiz: metadata with chapter/subject names, every
// question, and every option including correctness flags. Three queries total.
func (l *CatalogLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.pool.QueryRow(ctx, `
		SELECT q.id, q.chapter_id, q.title, q.quiz_date, q.duration_minutes,
		       COALESCE(q.remarks, ''), c.name, s.name
		FROM quizzes q
		JOIN chapters c ON c.id = q.chapter_id
		JOIN subjects s ON s.id = c.subject_id
		WHERE q.id = $1`, quizID).
		Scan(&quiz.ID, &quiz.ChapterID, &quiz.Title, &quiz.QuizDate,
			&quiz.DurationMinutes, &quiz.Remarks, &quiz.Chapter, &quiz.Subject)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	questions, index, err := l.loadQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := l.loadOptions(ctx, quizID, questions, index); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

func (l *CatalogLoader) loadQuestions(ctx context.Context, quizID int64) ([]domain.Question, map[int64]int, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, quiz_id, question, marks
		FROM questions WHERE quiz_id = $1 ORDER BY id`, quizID)
	if err != nil {
		return nil, nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	index := make(map[int64]int)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Marks); err != nil {
			return nil, nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, index, nil
}

func (l *CatalogLoader) loadOptions(ctx context.Context, quizID int64, questions []domain.Question, index map[int64]int) error {
	rows, err := l.pool.Query(ctx, `
		SELECT o.id, o.question_id, o.option_text, o.is_correct
		FROM options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.quiz_id = $1 ORDER BY o.id`, quizID)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect); err != nil {
			return fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	return nil
}
