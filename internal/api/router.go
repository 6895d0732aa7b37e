package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/graphnotes/internal/noteservice"
)

// Options configures NewRouter.
type Options struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	Logger *slog.Logger
	// DefaultDepth is the subgraph depth used when the request names none.
	DefaultDepth int
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *noteservice.Service, opts Options) chi.Router {
	h := NewHandler(svc, opts.Logger)
	if opts.DefaultDepth > 0 {
		h.defaultDepth = opts.DefaultDepth
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(h.logger))
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/move", h.MoveNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/grep", h.Grep)

	// Graph.
	r.Route("/graph", func(r chi.Router) {
		r.Get("/", h.Graph)
		r.Get("/stats", h.Stats)
		r.Get("/unresolved", h.Unresolved)
		r.Post("/rebuild", h.Rebuild)

		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Get("/", h.Node)
			r.Get("/neighbors", h.Neighbors)
			r.Get("/incoming", h.Incoming)
			r.Get("/outgoing", h.Outgoing)
			r.Get("/subgraph", h.Subgraph)
			r.Put("/position", h.SetPosition)
		})

		r.Post("/edges", h.CreateLink)
		r.Delete("/edges/{id}", h.DeleteLink)
		r.Patch("/edges/{id}/appearance", h.UpdateLinkAppearance)
	})

	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
