package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	auth "github.com/mind-engage/mariner-lms/internal/auth/middleware"
	"github.com/mind-engage/mariner-lms/internal/logger"
	"github.com/mind-engage/mariner-lms/internal/rbac"
)

// ReadyCheck reports whether one dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Deps struct {
	Auth        *auth.AuthService
	Submissions SubmissionService
	Lessons     LessonService
	Log         *logger.Logger
	CORSOrigins []string
	Ready       map[string]ReadyCheck
	Timeout     time.Duration

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

func NewRouter(d Deps) chi.Router {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	traceOpts := []otelhttp.Option{otelhttp.WithSpanNameFormatter(spanName)}
	if d.TracerProvider != nil {
		traceOpts = append(traceOpts, otelhttp.WithTracerProvider(d.TracerProvider))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, otelhttp.NewMiddleware("gradingd", traceOpts...), RequestLog(log), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "traceparent"},
		ExposedHeaders:   []string{"Content-Length", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyHandler(d.Ready, log))

	// Protected API (JWT → subject and role in context → RBAC)
	r.Route("/api", func(api chi.Router) {
		api.Use(auth.JWTMiddleware(d.Auth))

		api.With(rbac.Require(rbac.PermSubmissionSubmit)).
			Post("/submissions/{submissionID}/submit", SubmitHandler(d.Submissions, log))
		api.With(rbac.Require(rbac.PermSubmissionSave)).
			Put("/submissions/{submissionID}/answers", SaveAnswersHandler(d.Submissions, log))

		api.With(rbac.Require(rbac.PermProgressWrite)).
			Post("/progress/lessons", LessonCompletionHandler(d.Lessons, log))
		api.With(rbac.Require(rbac.PermProgressViewOwn)).
			Get("/courses/{courseID}/completed-lessons", CompletedLessonsHandler(d.Lessons, log))
	})
	return r
}

func readyHandler(checks map[string]ReadyCheck, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			log.Warn("readiness check failed", "failed", failed)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RequestLog writes one structured line per request.
func RequestLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func spanName(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
