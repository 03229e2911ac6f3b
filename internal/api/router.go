package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/querent-ai/querent-go/pkg/mid"
)

// Router builds the full REST surface, wrapped with the teacher's mid
// middleware chain (recover outermost, then logging, then CORS), the same
// Chain ordering cmd/api/main.go uses.
func (s *Server) Router(corsOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/v1/health/liveness", s.handleLiveness)
	r.Get("/api/v1/health/readiness", s.handleReadiness)
	r.Post("/api/v1/health/api-key", s.handleSetAPIKey)
	r.Get("/api/v1/health/api-key", s.handleGetAPIKey)

	r.Get("/api/v1/node/version", s.handleNodeVersion)
	r.Get("/api/v1/node/config", s.handleNodeConfig)

	r.Route("/api/v1/pipelines", func(r chi.Router) {
		r.Post("/", s.handlePipelineStart)
		r.Get("/", s.handlePipelineList)
		r.Post("/{id}/stop", s.handlePipelineStop)
		r.Post("/{id}/restart", s.handlePipelineRestart)
		r.Get("/{id}/observe", s.handlePipelineObserve)
		r.Get("/{id}", s.handlePipelineDescribe)
		r.Get("/{id}/ingest-tokens", s.handlePipelineIngestTokens)
	})

	r.Route("/api/v1/discovery", func(r chi.Router) {
		r.Post("/sessions", s.handleDiscoverySessionStart)
		r.Get("/sessions", s.handleDiscoverySessionList)
		r.Post("/sessions/{id}/stop", s.handleDiscoverySessionStop)
		r.Post("/sessions/{id}/search", s.handleDiscoverySearch)
		r.Get("/sessions/{id}/search", s.handleDiscoverySearch)
	})

	r.Route("/api/v1/insight", func(r chi.Router) {
		r.Get("/plugins", s.handleInsightInstalled)
		r.Post("/sessions", s.handleInsightSessionStart)
		r.Get("/sessions", s.handleInsightSessionList)
		r.Post("/sessions/{id}/stop", s.handleInsightSessionStop)
		r.Post("/sessions/{id}/prompt", s.handleInsightPrompt)
	})

	return mid.Chain(r,
		mid.Recover(s.Logger),
		mid.Logger(s.Logger),
		mid.CORS(corsOrigin),
	)
}
