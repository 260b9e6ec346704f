package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/user-accounts/internal/api/handlers"
	"github.com/baharkarakas/user-accounts/internal/api/httpx"
	"github.com/baharkarakas/user-accounts/internal/auth"
	"github.com/baharkarakas/user-accounts/internal/config"
	"github.com/baharkarakas/user-accounts/internal/metrics"
	"github.com/baharkarakas/user-accounts/internal/middleware"
	"github.com/baharkarakas/user-accounts/internal/services"
)

const msgInvalidMethod = "Invalid Method"

type RouterDeps struct {
	Cfg     config.Config
	UserSvc *services.UserService
	Tokens  *auth.TokenManager
}

func NewRouter(d RouterDeps) http.Handler {
	cfg := d.Cfg
	users := handlers.NewUserHandler(d.UserSvc, cfg.MaxUploadBytes)
	authH := handlers.NewAuthHandler(d.Tokens, d.UserSvc)
	authMW := middleware.NewAuthMiddleware(d.Tokens)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, middleware.Logger, middleware.Recover, middleware.HTTPMetrics)
	r.Use(middleware.Throttle(cfg.MaxInFlight))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))
	r.MethodNotAllowed(invalidMethod)

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	// stored avatars, served under the same prefix responses use
	if prefix := "/" + strings.Trim(cfg.AvatarPath, "/") + "/"; prefix != "//" {
		r.Get(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.UploadDir))).ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMW.Authenticate)
		r.MethodNotAllowed(invalidMethod)

		r.Post("/users", users.List)
		r.Post("/register", users.Register)
		r.Post("/edit", users.Edit)
		r.Post("/update", users.Update)
		r.Post("/verify-password", users.VerifyPassword)

		r.Post("/login", authH.Login)
		r.Post("/token/refresh", authH.Refresh)
	})

	return r
}

func invalidMethod(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteEnvelope(w, http.StatusBadRequest, msgInvalidMethod)
}
