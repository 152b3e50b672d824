package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *PollHandler, l *zap.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging(l))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/", h.Index)
	r.Route("/polls", func(r chi.Router) {
		r.Get("/", h.Index)
		r.Get("/{questionID}/", h.Detail)
		r.Get("/{questionID}/results/", h.Results)
		r.Post("/{questionID}/vote/", h.Vote)
	})
	return r
}
