package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phone-otp-api/internal/application/dashboard"
	"github.com/phone-otp-api/internal/application/session"
	"github.com/phone-otp-api/internal/application/verification"
	"github.com/phone-otp-api/internal/config"
	"github.com/phone-otp-api/internal/domain"
	jwtinfra "github.com/phone-otp-api/internal/infrastructure/jwt"
	"github.com/phone-otp-api/internal/transport/http/handler"
	appmiddleware "github.com/phone-otp-api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router. SMSSender,
// Exporter and JWTProvider are optional and must be left as nil interfaces
// when not configured.
type Deps struct {
	Store       VerificationStore
	SMSSender   verification.SMSSender
	Exporter    dashboard.Exporter
	JWTProvider *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	verificationSvc := verification.NewService(deps.Store, deps.SMSSender, verification.Options{
		OTPWindow:                cfg.OTPWindow,
		OTPLength:                cfg.OTPLength,
		PreventReissueIfVerified: cfg.PreventReissueIfVerified,
		ExposeDevOTP:             cfg.ExposeDevOTP,
	})

	healthH := handler.NewHealthHandler()
	verificationH := handler.NewVerificationHandler(verificationSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/verifications", verificationH.Issue)
		r.Post("/verifications/confirm", verificationH.Confirm)

		// ── Operator routes ──────────────────────────────────────────────────
		if deps.JWTProvider == nil || !cfg.HasOperatorLogin() {
			return
		}
		sessionSvc := session.NewService(session.Operator{
			Username:     cfg.OperatorUsername,
			PasswordHash: cfg.OperatorPasswordHash,
		}, deps.JWTProvider)
		dashboardSvc := dashboard.NewService(deps.Store, deps.Exporter)
		sessionH := handler.NewSessionHandler(sessionSvc)
		dashboardH := handler.NewDashboardHandler(dashboardSvc)

		r.Post("/sessions/login", sessionH.Login)
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

			r.Get("/verifications", dashboardH.List)
			r.Get("/verifications/stats", dashboardH.Stats)
			r.Post("/verifications/export", dashboardH.Export)
		})
	})

	return r
}
