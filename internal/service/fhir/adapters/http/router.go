package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router binds the REST surface. The bundle engine replays sub-requests
// through this same mux, so every operation reachable in a bundle is exactly
// the operation reachable standalone.
func Router(s *Server) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metadata", s.handleMetadata)
	r.Post("/", s.handleSubmit)

	r.Route("/{resourceType}", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleSearch)
		r.Put("/", s.handleConditionalUpdate)
		r.Delete("/", s.handleConditionalDelete)
		r.Get("/{id}", s.handleRead)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		// Empty body lets the dispatcher synthesize a proper outcome for
		// routed-nowhere sub-requests; standalone clients get a bare 404.
		w.WriteHeader(http.StatusNotFound)
	})

	return r
}
