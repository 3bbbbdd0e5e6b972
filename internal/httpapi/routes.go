package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(mux *chi.Mux, h *Handlers) {
	mux.Get("/healthz", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Post("/streaming-chat", h.StreamingChat)

	mux.Route("/api", func(r chi.Router) {
		r.Post("/conversations", h.NewConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Post("/conversations/{id}/reset", h.ResetConversation)
		r.Post("/conversations/{id}/context", h.PrepareContext)
		r.Post("/conversations/{id}/answer", h.Answer)
		r.Post("/conversations/{id}/chat", h.Chat)

		r.Post("/feedback", h.Feedback)
		r.Get("/feedback/{message_id}", h.GetFeedback)
		r.Get("/sample-questions", h.SampleQuestions)
	})
}

// NewRouter wires the routes behind the request middleware.
func NewRouter(h *Handlers) http.Handler {
	mux := chi.NewRouter()
	RegisterRoutes(mux, h)

	var handler http.Handler = mux
	handler = Recoverer()(handler)
	handler = AccessLog()(handler)
	handler = RequestID()(handler)
	return handler
}
