package routes

import (
	"net/http"

	"github.com/fieldscope/vistoria/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// static preview for disk-stored uploads
	if app.GCSBucket == "" {
		root.Mount(app.UploadBaseURL, http.StripPrefix(app.UploadBaseURL,
			http.FileServer(http.Dir(app.UploadDir))))
	}

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(app.TokenAuth), jwtauth.Authenticator(app.TokenAuth), ActorCtx)

		r.Post("/checklists/responder", SaveChecklistResponse(app))
		r.Get("/checklists/rascunho", GetChecklistDraft(app))
		r.Post("/checklists/respostas/{id}/assinatura-gerente", AddManagerSignature(app))
		r.Get("/checklists/respostas/{id}/pdf", GetChecklistReport(app))
	})

	return api
}
