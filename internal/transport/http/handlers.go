package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Handler exposes the attempt lifecycle, result, and leaderboard operations
// over JSON. Identity is taken from the X-User-ID header; the gateway in front
// of this service authenticates and injects it.
type Handler struct {
	attempts *app.AttemptService
	results  *app.ResultService
	boards   *app.LeaderboardService
	catalog  app.Catalog
}

func NewHandler(attempts *app.AttemptService, results *app.ResultService, boards *app.LeaderboardService, catalog app.Catalog) *Handler {
	return &Handler{attempts: attempts, results: results, boards: boards, catalog: catalog}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes/{quizID}/attempt", h.startAttempt)
	mux.HandleFunc("PUT /api/quizzes/{quizID}/answer", h.answer)
	mux.HandleFunc("POST /api/quizzes/{quizID}/close", h.closeAttempt)
	mux.HandleFunc("GET /api/quizzes/{quizID}/result", h.result)
	mux.HandleFunc("GET /api/quizzes/{quizID}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /api/quizzes/{quizID}", h.quiz)
	mux.HandleFunc("GET /api/history", h.history)
}

type startResponse struct {
	AttemptID int64 `json:"attemptId"`
	IsNew     bool  `json:"isNew"`
}

type answerRequest struct {
	QuestionID int64  `json:"questionId"`
	OptionID   *int64 `json:"optionId"`
}

type okResponse struct {
	OK    bool     `json:"ok"`
	Score *float64 `json:"score,omitempty"`
}

type msgResponse struct {
	Msg string `json:"msg"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.identify(w, r)
	if !ok {
		return
	}
	attempt, created, err := h.attempts.Start(r.Context(), userID, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, startResponse{AttemptID: attempt.ID, IsNew: created})
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, msgResponse{Msg: "invalid answer payload"})
		return
	}
	if req.QuestionID == 0 {
		writeJSON(w, http.StatusBadRequest, msgResponse{Msg: "questionId is required"})
		return
	}
	if _, err := h.attempts.Answer(r.Context(), userID, quizID, req.QuestionID, req.OptionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) closeAttempt(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.identify(w, r)
	if !ok {
		return
	}
	attempt, err := h.attempts.Close(r.Context(), userID, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Score: &attempt.Score})
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.identify(w, r)
	if !ok {
		return
	}
	result, err := h.results.FullResult(r.Context(), userID, quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(w, r)
	if !ok {
		return
	}
	entries, err := h.results.History(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizFrom(w, r)
	if !ok {
		return
	}
	board, err := h.boards.Leaderboard(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// takerOption is an option as served to an active taker: no correctness flag.
type takerOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type takerQuestion struct {
	ID      int64         `json:"id"`
	Text    string        `json:"text"`
	Marks   float64       `json:"marks"`
	Options []takerOption `json:"options"`
}

type takerQuiz struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Chapter         string          `json:"chapter"`
	Subject         string          `json:"subject"`
	DurationMinutes int             `json:"durationMinutes"`
	Questions       []takerQuestion `json:"questions"`
	// SavedResponses restores a reloaded client's selections for its open
	// attempt: question id -> option id.
	SavedResponses map[int64]int64 `json:"savedResponses"`
}

func (h *Handler) quiz(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.identify(w, r)
	if !ok {
		return
	}
	quiz, err := h.catalog.GetQuiz(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	saved, err := h.attempts.SavedResponses(r.Context(), userID, quizID)
	if err != nil {
		writeError(w, err)
		return
	}

	view := takerQuiz{
		ID:              quiz.ID,
		Title:           quiz.Title,
		Chapter:         quiz.Chapter,
		Subject:         quiz.Subject,
		DurationMinutes: quiz.DurationMinutes,
		Questions:       make([]takerQuestion, 0, len(quiz.Questions)),
		SavedResponses:  saved,
	}
	for _, question := range quiz.Questions {
		tq := takerQuestion{
			ID:      question.ID,
			Text:    question.Text,
			Marks:   question.Marks,
			Options: make([]takerOption, 0, len(question.Options)),
		}
		for _, option := range question.Options {
			tq.Options = append(tq.Options, takerOption{ID: option.ID, Text: option.Text})
		}
		view.Questions = append(view.Questions, tq)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) (userID, quizID int64, ok bool) {
	userID, ok = userFrom(w, r)
	if !ok {
		return 0, 0, false
	}
	quizID, ok = quizFrom(w, r)
	if !ok {
		return 0, 0, false
	}
	return userID, quizID, true
}

func userFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeJSON(w, http.StatusUnauthorized, msgResponse{Msg: "missing X-User-ID header"})
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusUnauthorized, msgResponse{Msg: "invalid X-User-ID header"})
		return 0, false
	}
	return userID, true
}

func quizFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	quizID, err := strconv.ParseInt(r.PathValue("quizID"), 10, 64)
	if err != nil || quizID <= 0 {
		writeJSON(w, http.StatusBadRequest, msgResponse{Msg: "invalid quiz id"})
		return 0, false
	}
	return quizID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps domain errors to caller-facing codes. Storage and other
// unexpected failures are logged and surfaced as a generic 500 without
// internal detail.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadySubmitted):
		writeJSON(w, http.StatusConflict, msgResponse{Msg: "Quiz already submitted. Cannot create new attempt."})
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrNoAttemptFound):
		writeJSON(w, http.StatusNotFound, msgResponse{Msg: err.Error()})
	case errors.Is(err, domain.ErrNoActiveAttempt):
		writeJSON(w, http.StatusBadRequest, msgResponse{Msg: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, msgResponse{Msg: "internal error"})
	}
}
