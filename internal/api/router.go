package api

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the JSON API under /api, the live event stream at /ws
// and the widget page at /.
func NewRouter(h *Handler, live http.Handler, static fs.FS) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", h.RegisterRoutes)
	if live != nil {
		r.Handle("/ws", live)
	}
	if static != nil {
		r.Handle("/*", http.FileServer(http.FS(static)))
	}
	return r
}
