package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ulule/limiter/v3"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	devotphandler "github.com/zackweld/crAPI/internal/devotp/handler"
	healthhandler "github.com/zackweld/crAPI/internal/health/handler"
	phonechangehandler "github.com/zackweld/crAPI/internal/phonechange/handler"
	"github.com/zackweld/crAPI/internal/server/httpx"
	"github.com/zackweld/crAPI/internal/server/middleware"
)

// HTTPDeps holds the dependencies of the REST router.
type HTTPDeps struct {
	// Tokens validates bearer tokens on every /identity route. Required.
	Tokens      middleware.TokenValidator
	PhoneChange *phonechangehandler.Handler
	// DevOTP is mounted only in dev OTP mode.
	DevOTP *devotphandler.Handler
	Health *healthhandler.Checker
	// Limiter rate-limits the phone-change routes. Nil disables rate limiting.
	Limiter        *limiter.Limiter
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	AllowedOrigins []string
}

// NewRouter returns the REST handler:
//
//	GET  /health
//	POST /identity/api/v2/user/change-phone-number
//	POST /identity/api/v2/user/verify-phone-otp
//	GET  /identity/api/v2/dev/phone-otp            (dev OTP mode only)
func NewRouter(deps HTTPDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Telemetry(deps.TracerProvider, deps.MeterProvider))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Message(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Message(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	checker := deps.Health
	if checker == nil {
		checker = healthhandler.NewChecker(nil, nil)
	}
	r.Get("/health", healthhandler.HTTP(checker))

	r.Route("/identity/api/v2", func(api chi.Router) {
		api.Use(middleware.Authenticate(deps.Tokens))
		if deps.Limiter != nil {
			api.Use(middleware.RateLimit(deps.Limiter, logger))
		}
		if deps.PhoneChange != nil {
			api.Post("/user/change-phone-number", deps.PhoneChange.ChangePhoneNumber)
			api.Post("/user/verify-phone-otp", deps.PhoneChange.VerifyPhoneOTP)
		}
		if deps.DevOTP != nil {
			api.Get("/dev/phone-otp", deps.DevOTP.GetPhoneOTP)
		}
	})
	return r
}
