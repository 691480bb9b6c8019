package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	// Start creates the attempt.
	var started struct {
		AttemptID int64 `json:"attemptId"`
		IsNew     bool  `json:"isNew"`
	}
	res := doJSON(t, server, "POST", "/api/quizzes/1/attempt", 1, nil, &started)
	if res != http.StatusCreated || !started.IsNew || started.AttemptID == 0 {
		t.Fatalf("unexpected start: status=%d body=%+v", res, started)
	}

	// A retry resumes it.
	var resumed struct {
		AttemptID int64 `json:"attemptId"`
		IsNew     bool  `json:"isNew"`
	}
	res = doJSON(t, server, "POST", "/api/quizzes/1/attempt", 1, nil, &resumed)
	if res != http.StatusOK || resumed.IsNew || resumed.AttemptID != started.AttemptID {
		t.Fatalf("unexpected resume: status=%d body=%+v", res, resumed)
	}

	// Answer: q1 and q3 correct, q2 wrong.
	for _, answer := range []struct{ question, option int64 }{
		{1, 11}, {2, 22}, {3, 32},
	} {
		body := map[string]any{"questionId": answer.question, "optionId": answer.option}
		if res := doJSON(t, server, "PUT", "/api/quizzes/1/answer", 1, body, nil); res != http.StatusOK {
			t.Fatalf("answer q%d: status %d", answer.question, res)
		}
	}

	// The quiz view restores saved selections and hides correctness.
	var view struct {
		Questions []struct {
			ID      int64 `json:"id"`
			Options []map[string]any
		} `json:"questions"`
		SavedResponses map[string]int64 `json:"savedResponses"`
	}
	if res := doJSON(t, server, "GET", "/api/quizzes/1", 1, nil, &view); res != http.StatusOK {
		t.Fatalf("quiz view: status %d", res)
	}
	if len(view.Questions) != 3 || view.SavedResponses["1"] != 11 {
		t.Fatalf("unexpected quiz view: %+v", view)
	}
	for _, q := range view.Questions {
		for _, o := range q.Options {
			if _, leaked := o["isCorrect"]; leaked {
				t.Fatalf("taker view leaks correctness: %+v", o)
			}
		}
	}

	// Close scores the attempt: 1 + 3 of {1,2,3}.
	var closed struct {
		OK    bool     `json:"ok"`
		Score *float64 `json:"score"`
	}
	if res := doJSON(t, server, "POST", "/api/quizzes/1/close", 1, nil, &closed); res != http.StatusOK {
		t.Fatalf("close: status %d", res)
	}
	if !closed.OK || closed.Score == nil || *closed.Score != 4 {
		t.Fatalf("unexpected close body: %+v", closed)
	}

	// Result discloses the breakdown.
	var result domain.AttemptResult
	if res := doJSON(t, server, "GET", "/api/quizzes/1/result", 1, nil, &result); res != http.StatusOK {
		t.Fatalf("result: status %d", res)
	}
	if result.Score != 4 || result.MaxMarks != 6 || len(result.Questions) != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// History has the single closed attempt.
	var history []domain.HistoryEntry
	if res := doJSON(t, server, "GET", "/api/history", 1, nil, &history); res != http.StatusOK {
		t.Fatalf("history: status %d", res)
	}
	if len(history) != 1 || history[0].Correct != 2 || history[0].Wrong != 1 {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Leaderboard ranks the user.
	var board domain.Leaderboard
	if res := doJSON(t, server, "GET", "/api/quizzes/1/leaderboard", 1, nil, &board); res != http.StatusOK {
		t.Fatalf("leaderboard: status %d", res)
	}
	if board.Participants != 1 || board.Entries[0].Score != 4 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	// Restarting a submitted quiz conflicts.
	var msg struct {
		Msg string `json:"msg"`
	}
	if res := doJSON(t, server, "POST", "/api/quizzes/1/attempt", 1, nil, &msg); res != http.StatusConflict {
		t.Fatalf("expected 409 on restart, got %d", res)
	}
	if msg.Msg != "Quiz already submitted. Cannot create new attempt." {
		t.Fatalf("unexpected conflict message: %q", msg.Msg)
	}
}

func TestAnswerWithoutAttemptIsRejected(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	body := map[string]any{"questionId": 1, "optionId": 11}
	if res := doJSON(t, server, "PUT", "/api/quizzes/1/answer", 2, body, nil); res != http.StatusBadRequest {
		t.Fatalf("expected 400 without an open attempt, got %d", res)
	}
}

func TestIdentityHeaderRequired(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL+"/api/quizzes/1/attempt", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", res.StatusCode)
	}
}

func TestUnknownQuizIs404(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	if res := doJSON(t, server, "POST", "/api/quizzes/999/attempt", 1, nil, nil); res != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown quiz, got %d", res)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewAttemptStore()
	catalog := memory.NewCatalogCache(memory.NewStaticCatalog(map[int64]domain.Quiz{1: fixtureQuiz()}), time.Minute)

	boards := app.NewLeaderboardService(store, catalog)
	feed := app.NewLeaderboardFeed(boards)
	results := app.NewResultService(store, catalog)
	attempts := app.NewAttemptService(store, catalog, feed)

	mux := http.NewServeMux()
	NewHandler(attempts, results, boards, catalog).Register(mux)
	mux.HandleFunc("/ws/leaderboard", NewLeaderboardWSHandler(feed).ServeWS)

	return httptest.NewServer(mux)
}

func fixtureQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              1,
		ChapterID:       1,
		Title:           "Kinematics Basics",
		Chapter:         "Motion",
		Subject:         "Physics",
		QuizDate:        time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Questions: []domain.Question{
			{
				ID: 1, QuizID: 1, Text: "Unit of velocity?", Marks: 1,
				Options: []domain.Option{
					{ID: 11, QuestionID: 1, Text: "m/s", IsCorrect: true},
					{ID: 12, QuestionID: 1, Text: "m/s^2", IsCorrect: false},
				},
			},
			{
				ID: 2, QuizID: 1, Text: "Unit of acceleration?", Marks: 2,
				Options: []domain.Option{
					{ID: 21, QuestionID: 2, Text: "m/s^2", IsCorrect: true},
					{ID: 22, QuestionID: 2, Text: "m/s", IsCorrect: false},
				},
			},
			{
				ID: 3, QuizID: 1, Text: "Scalar quantity?", Marks: 3,
				Options: []domain.Option{
					{ID: 31, QuestionID: 3, Text: "Velocity", IsCorrect: false},
					{ID: 32, QuestionID: 3, Text: "Speed", IsCorrect: true},
				},
			},
		},
	}
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, userID int64, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil {
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, string(raw))
		}
	}
	return res.StatusCode
}


