package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.FederationKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.With(s.authenticate, s.requireAdmin).Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.rateLimit("register")).Post("/register", s.handleRegister)
		r.With(s.rateLimit("login")).Post("/login", s.handleLogin)
		r.With(s.rateLimit("federated")).Post("/federated", s.handleFederated)
		r.Post("/logout", s.handleLogout)
		r.With(s.rateLimit("forgot-password")).Post("/forgot-password", s.handleForgotPassword)
		r.With(s.rateLimit("reset-password")).Post("/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/session", s.handleSession)
			r.With(s.rateLimit("verification-code")).Post("/verification-code", s.handleVerificationCode)
			r.With(s.rateLimit("verify-email")).Post("/verify-email", s.handleVerifyEmail)
		})
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/me", s.handleMe)
		r.Patch("/profile", s.handleUpdateProfile)
		r.Patch("/password", s.handleChangePassword)
		r.Post("/password-method", s.handleLinkPassword)
		r.Delete("/", s.handleDeleteIdentity)
		r.Post("/avatar", s.handleAvatarUpload)
		r.Get("/avatar", s.handleAvatarDownload)
	})

	r.Route("/api/vault", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/", s.handleCreateRecord)
		r.Get("/", s.handleListRecords)
		r.Get("/{id}", s.handleGetRecord)
		r.Patch("/{id}", s.handleEditRecord)
		r.Delete("/{id}", s.handleDeleteRecord)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.authenticate, s.requireAdmin)
		r.Get("/identities", s.handleListIdentities)
	})

	return r
}
