package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jaam8/polls/internal/models"
	"go.uber.org/zap"
)

const (
	ChoiceField        = "choice"
	NoChoiceMessage    = "You didn't select a choice."
	questionIDParam    = "questionID"
	somethingWentWrong = "something went wrong"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("polls").Funcs(template.FuncMap{
	"detailPath":  DetailPath,
	"resultsPath": ResultsPath,
	"votePath":    VotePath,
}).ParseFS(templateFS, "templates/*.html"))

type PollService interface {
	LatestQuestions(ctx context.Context) ([]models.Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*models.Question, error)
	Vote(ctx context.Context, sub models.Submission) (*models.VoteResult, error)
}

type PollHandler struct {
	s PollService
	l *zap.Logger
}

func New(s PollService, l *zap.Logger) *PollHandler {
	return &PollHandler{
		s: s,
		l: l,
	}
}

// DetailPath and ResultsPath build the read-only views a vote redirects to.
func DetailPath(questionID int64) string {
	return fmt.Sprintf("/polls/%d/", questionID)
}

func ResultsPath(questionID int64) string {
	return fmt.Sprintf("/polls/%d/results/", questionID)
}

func VotePath(questionID int64) string {
	return fmt.Sprintf("/polls/%d/vote/", questionID)
}

type detailPage struct {
	Question     *models.Question
	ErrorMessage string
}

func (h *PollHandler) Index(w http.ResponseWriter, r *http.Request) {
	questions, err := h.s.LatestQuestions(r.Context())
	if err != nil {
		h.l.Error("failed to list questions", zap.Error(err))
		http.Error(w, somethingWentWrong, http.StatusInternalServerError)
		return
	}
	h.render(w, http.StatusOK, "index.html", questions)
}

func (h *PollHandler) Detail(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, "detail.html", detailPage{Question: q})
}

func (h *PollHandler) Results(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, "results.html", q)
}

// Vote handles POST /polls/{questionID}/vote/. A counted vote is always
// answered with a redirect to the results page and never with a rendered
// page, so reloading what the browser shows next cannot post the form again.
func (h *PollHandler) Vote(w http.ResponseWriter, r *http.Request) {
	questionID, ok := parseID(chi.URLParam(r, questionIDParam))
	if !ok {
		h.notFound(w, r)
		return
	}
	sub := models.Submission{
		QuestionID: questionID,
		ChoiceID:   choiceFromForm(r),
	}
	h.l.Debug("data for voting",
		zap.Int64("question_id", questionID),
		zap.Any("choice_id", sub.ChoiceID))

	res, err := h.s.Vote(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrQuestionNotFound):
			h.l.Warn("question not found", zap.Int64("question_id", questionID))
			h.notFound(w, r)
		case errors.Is(err, models.ErrNoChoiceSelected):
			h.l.Warn("no choice selected", zap.Int64("question_id", questionID))
			h.render(w, http.StatusOK, "detail.html", detailPage{
				Question:     res.Question,
				ErrorMessage: NoChoiceMessage,
			})
		default:
			h.l.Error("failed to vote", zap.Int64("question_id", questionID), zap.Error(err))
			http.Error(w, somethingWentWrong, http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, ResultsPath(res.Question.ID), http.StatusSeeOther)
}

func (h *PollHandler) loadQuestion(w http.ResponseWriter, r *http.Request) (*models.Question, bool) {
	questionID, ok := parseID(chi.URLParam(r, questionIDParam))
	if !ok {
		h.notFound(w, r)
		return nil, false
	}
	q, err := h.s.GetQuestion(r.Context(), questionID)
	if err != nil {
		if errors.Is(err, models.ErrQuestionNotFound) {
			h.notFound(w, r)
			return nil, false
		}
		h.l.Error("failed to get question", zap.Int64("question_id", questionID), zap.Error(err))
		http.Error(w, somethingWentWrong, http.StatusInternalServerError)
		return nil, false
	}
	return q, true
}

func (h *PollHandler) notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "404 page not found", http.StatusNotFound)
}

func (h *PollHandler) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.l.Error("failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, somethingWentWrong, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// choiceFromForm returns nil when the field is missing or not a number.
func choiceFromForm(r *http.Request) *int64 {
	if err := r.ParseForm(); err != nil {
		return nil
	}
	values, ok := r.PostForm[ChoiceField]
	if !ok || len(values) == 0 {
		return nil
	}
	id, ok := parseID(values[0])
	if !ok {
		return nil
	}
	return &id
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
