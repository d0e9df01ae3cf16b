package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"

	"stepleague/internal/api/handler"
	"stepleague/internal/app/service"
	"stepleague/internal/common/security"
	"stepleague/internal/platform/storage"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth         *service.AuthService
	League       *service.LeagueService
	Leaderboard  *service.LeaderboardService
	Submission   *service.SubmissionService
	Verification *service.VerificationService
	Upload       *service.UploadService
	Jobs         *service.VerificationJobService
}

// NewRouter mounts the v1 API. local is nil when proofs are not served from disk.
func NewRouter(tokens *security.TokenService, s Services, local *storage.LocalStore) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Looks for "Authorization: Bearer T" and stores the result for middleware.Authenticator.
	r.Use(jwtauth.Verifier(tokens.JWTAuth()))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/auth", handler.NewAuthHandler(s.Auth).RegisterRoutes)
		v1.Route("/leagues", handler.NewLeagueHandler(s.League, s.Leaderboard).RegisterRoutes)
		v1.Route("/submissions", handler.NewSubmissionHandler(s.Submission, s.Verification).RegisterRoutes)
		v1.Route("/uploads", handler.NewUploadHandler(s.Upload, local).RegisterRoutes)
		v1.Route("/admin", handler.NewAdminHandler(s.Jobs).RegisterRoutes)
	})

	return r
}
