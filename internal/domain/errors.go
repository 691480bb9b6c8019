package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz is missing from the catalog.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID that does not belong to the quiz.
	ErrQuestionNotFound = errors.New("question not found in quiz")
	// ErrOptionNotFound indicates an option ID that does not belong to the question.
	ErrOptionNotFound = errors.New("option not found for question")
	// ErrNoActiveAttempt is returned when an operation needs an open attempt and none exists.
	ErrNoActiveAttempt = errors.New("no active quiz attempt found")
	// ErrNoAttemptFound is returned when a result is requested before any attempt was closed.
	ErrNoAttemptFound = errors.New("no completed quiz attempt found")
	// ErrAlreadySubmitted is returned when a start collides with an already-closed attempt.
	ErrAlreadySubmitted = errors.New("quiz already submitted")
	// ErrAttemptConflict signals a storage-level uniqueness violation on attempt
	// insert. Callers re-read to decide between resuming and ErrAlreadySubmitted.
	ErrAttemptConflict = errors.New("attempt already exists for user and quiz")
)
