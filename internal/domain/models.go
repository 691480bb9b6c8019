package domain

import "time"

// Option represents one possible answer to a question. Correctness is part of
// the catalog data; views served to an active taker must strip it.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Question belongs to a quiz and carries a positive marks weight.
type Question struct {
	ID      int64    `json:"id"`
	QuizID  int64    `json:"quizId"`
	Text    string   `json:"text"`
	Marks   float64  `json:"marks"`
	Options []Option `json:"options"`
}

// Quiz is the catalog view the attempt engine consumes: quiz metadata plus the
// chapter/subject names it hangs under and the full question set.
type Quiz struct {
	ID              int64      `json:"id"`
	ChapterID       int64      `json:"chapterId"`
	Title           string     `json:"title"`
	Chapter         string     `json:"chapter"`
	Subject         string     `json:"subject"`
	QuizDate        time.Time  `json:"quizDate"`
	DurationMinutes int        `json:"durationMinutes"`
	Remarks         string     `json:"remarks,omitempty"`
	Questions       []Question `json:"questions"`
}

// MaxMarks is the highest score achievable on the quiz.
func (q Quiz) MaxMarks() float64 {
	var total float64
	for _, question := range q.Questions {
		total += question.Marks
	}
	return total
}

// Attempt is one user's engagement with one quiz. Open attempts accept
// responses; closed attempts are immutable and carry the final score.
type Attempt struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"userId"`
	QuizID     int64      `json:"quizId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	InProgress bool       `json:"inProgress"`
	Score      float64    `json:"score"`
	Remarks    string     `json:"remarks,omitempty"`
}

// Response records a user's current choice for one question within an attempt.
// At most one Response exists per (attempt, question).
type Response struct {
	ID          int64  `json:"id"`
	AttemptID   int64  `json:"attemptId"`
	QuestionID  int64  `json:"questionId"`
	OptionID    *int64 `json:"optionId,omitempty"`
	IsAttempted bool   `json:"isAttempted"`
}

// OptionResult is an option as seen in a post-close review.
type OptionResult struct {
	OptionID   int64  `json:"optionId"`
	Text       string `json:"text"`
	IsSelected bool   `json:"isSelected"`
	IsCorrect  bool   `json:"isCorrect"`
}

// QuestionResult is the per-question breakdown of a closed attempt.
type QuestionResult struct {
	QuestionID  int64          `json:"questionId"`
	Text        string         `json:"text"`
	Marks       float64        `json:"marks"`
	IsAttempted bool           `json:"isAttempted"`
	IsCorrect   bool           `json:"isCorrect"`
	Options     []OptionResult `json:"options"`
}

// AttemptResult is the full review of a user's latest closed attempt at a quiz.
type AttemptResult struct {
	AttemptID int64            `json:"attemptId"`
	QuizID    int64            `json:"quizId"`
	QuizTitle string           `json:"quizTitle"`
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
	Score     float64          `json:"score"`
	MaxMarks  float64          `json:"maxMarks"`
	Attempted int              `json:"attempted"`
	Correct   int              `json:"correct"`
	Questions []QuestionResult `json:"questions"`
}

// HistoryEntry summarizes one closed attempt for a user's history listing.
type HistoryEntry struct {
	AttemptID      int64     `json:"attemptId"`
	QuizID         int64     `json:"quizId"`
	QuizTitle      string    `json:"quizTitle"`
	Chapter        string    `json:"chapter"`
	Subject        string    `json:"subject"`
	EndTime        time.Time `json:"endTime"`
	Score          float64   `json:"score"`
	MaxMarks       float64   `json:"maxMarks"`
	TotalQuestions int       `json:"totalQuestions"`
	Attempted      int       `json:"attempted"`
	Correct        int       `json:"correct"`
	Wrong          int       `json:"wrong"`
	Unattempted    int       `json:"unattempted"`
}

// LeaderboardEntry ranks one user's latest closed attempt.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      int64     `json:"userId"`
	AttemptID   int64     `json:"attemptId"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Leaderboard is the ranked view of a quiz's closed attempts.
type Leaderboard struct {
	QuizID       int64              `json:"quizId"`
	QuizTitle    string             `json:"quizTitle"`
	Participants int                `json:"participants"`
	Entries      []LeaderboardEntry `json:"entries"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}
