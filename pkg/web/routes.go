package web

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

// InitRouter builds the protocol API router
func InitRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.HandleHealthz())
	r.Get("/readyz", srv.HandleReadyz())

	r.Route("/repos", func(r chi.Router) {
		r.Use(srv.Authenticate)

		r.Post("/", srv.HandleCreateRepo())

		r.Route("/{repoID}", func(r chi.Router) {
			r.Get("/", srv.HandleGetRepo())
			r.Put("/base-artifact", srv.HandleSetBaseArtifact())
			r.Get("/branches", srv.HandleListBranches())
			r.Post("/branches", srv.HandleCreateBranch())

			r.Get("/commits/{commitHash}", srv.HandleGetCommit())

			r.Route("/branches/{branchID}/commits", func(r chi.Router) {
				r.Get("/", srv.HandleListCommits())
				r.Get("/latest", srv.HandleLatestCommit())

				r.Route("/create", func(r chi.Router) {
					r.Post("/initiate", srv.HandleInitiate())
					r.Post("/check-proof", srv.HandleCheckProof())
					r.Post("/upload-proofs", srv.HandleUploadProofs())
					r.Post("/upload-params", srv.HandleUploadParameters())
					r.Post("/finalize", srv.HandleFinalize())
				})
			})
		})
	})

	return r
}
