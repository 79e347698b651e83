package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/legalsandbox/research-backend/internal/http/handler"
	"github.com/legalsandbox/research-backend/internal/http/middleware"
	"github.com/legalsandbox/research-backend/internal/http/response"
	"github.com/legalsandbox/research-backend/internal/security"
	"github.com/legalsandbox/research-backend/internal/store"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	DocumentHandler  *handler.DocumentHandler
	ChatHandler      *handler.ChatHandler
	ExportHandler    *handler.ExportHandler
	TokenManager     *security.TokenManager
	SessionStore     *store.SessionStore
	Logger           *slog.Logger
	CORSOrigins      []string
	MaxUploadBytes   int64
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	RateLimiter      middleware.Limiter
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	limiter := dep.RateLimiter
	if limiter == nil {
		limiter = middleware.NewLocalLimiter()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.NewRateLimiter(limiter, dep.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").Middleware())

	authLimiter := middleware.NewRateLimiter(limiter, dep.AuthRateLimitRPM, time.Minute, middleware.FailOpen, "auth").Middleware()
	authRequired := middleware.AuthMiddleware(dep.TokenManager, dep.SessionStore)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{
			"service": "Legal AI Research Sandbox",
			"status":  "running",
		})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter, middleware.BodyLimit(1<<20)).Post("/login", dep.AuthHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(authRequired)
				r.Get("/session", dep.AuthHandler.SessionInfo)
				r.Post("/logout", dep.AuthHandler.Logout)
			})
		})

		r.Route("/documents", func(r chi.Router) {
			r.Use(authRequired)
			r.With(middleware.BodyLimit(dep.MaxUploadBytes + 1<<20)).Post("/upload", dep.DocumentHandler.Upload)
			r.Get("/list", dep.DocumentHandler.List)
			r.Delete("/{document_id}", dep.DocumentHandler.Delete)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Use(authRequired)
			r.With(middleware.BodyLimit(1 << 20)).Post("/send", dep.ChatHandler.Send)
			r.Get("/history", dep.ChatHandler.History)
			r.Delete("/history/{conversation_id}", dep.ChatHandler.DeleteConversation)
		})

		r.With(authRequired).Get("/export/all", dep.ExportHandler.ExportAll)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
