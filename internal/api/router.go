package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/foundernet/engine/internal/api/handlers"
	mw "github.com/foundernet/engine/internal/api/middleware"
)

type Dependencies struct {
	Verifier        mw.Verifier
	AuthHandler     *handlers.AuthHandler
	FoundersHandler *handlers.FoundersHandler
	HealthHandler   *handlers.HealthHandler
	// AvatarDir is served read-only under /storage/avatars/.
	AvatarDir string
	RateRPS   float64
	RateBurst int
}

func NewRouter(dep Dependencies) http.Handler {
	if dep.RateRPS <= 0 {
		dep.RateRPS, dep.RateBurst = 10, 20
	}

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(dep.RateRPS, dep.RateBurst))
	r.Use(chimid.Compress(5))

	r.Get("/healthz", dep.HealthHandler.Liveness)
	r.Get("/readyz", dep.HealthHandler.Readiness)

	if dep.AvatarDir != "" {
		r.Handle("/storage/avatars/*", http.StripPrefix("/storage/avatars/", http.FileServer(http.Dir(dep.AvatarDir))))
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/signup", dep.AuthHandler.SignUp)
			ar.Post("/login", dep.AuthHandler.Login)
			ar.With(mw.Auth(dep.Verifier)).Get("/me", dep.AuthHandler.Me)
		})

		// Founder routes let anonymous callers through so the policy layer
		// answers them with an explicit denial.
		api.Route("/founders", func(fr chi.Router) {
			fr.Use(mw.OptionalAuth(dep.Verifier))

			fr.Get("/", dep.FoundersHandler.List)
			fr.Route("/me", func(me chi.Router) {
				me.Get("/", dep.FoundersHandler.GetMe)
				me.Put("/", dep.FoundersHandler.Provision)
				me.Patch("/", dep.FoundersHandler.UpdateMe)
				me.Delete("/", dep.FoundersHandler.DeleteMe)
				me.Post("/onboarding/complete", dep.FoundersHandler.CompleteOnboarding)
				me.Post("/avatar", dep.FoundersHandler.UploadAvatar)
			})
			fr.Get("/{id}", dep.FoundersHandler.Get)
		})
	})

	return r
}
