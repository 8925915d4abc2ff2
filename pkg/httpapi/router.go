package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/httpapi/handlers"
	"github.com/fs9fs/fs9/pkg/httpapi/middleware"
	"github.com/fs9fs/fs9/pkg/metrics"
)

// NewRouter builds the chi router exposing every endpoint in spec.md
// §6.1, layered with the middleware stack described in §4.10, matching
// the teacher's pkg/api/router.go's "RequestID, RealIP, custom request
// logger, Recoverer, Timeout" ordering, with FS9's auth/rate-limit/body
// stack layered in front of the route groups that need it.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(deps.requestTimeout()))
	r.Use(middleware.Concurrency(deps.maxConcurrentRequests()))

	health := handlers.NewHealthHandler(deps.InstanceID)
	r.Get("/health", health.Health)
	if deps.registry() != nil {
		r.Handle("/metrics", deps.metricsHandler())
	}

	fs := handlers.NewFSHandler(deps.Namespaces)
	stream := handlers.NewStreamHandler(deps.Namespaces)
	mounts := handlers.NewMountHandler(deps.Namespaces, deps.Providers, deps.Mountstore)
	plugins := handlers.NewPluginHandler(deps.Plugins)
	authAdmin := handlers.NewAuthAdminHandler(deps.Revocations, deps.VerificationCache, deps.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Meta, deps.VerificationCache, deps.Revocations, deps.Metrics, deps.AuthEnabled))
		r.Use(middleware.RateLimit(deps.RateLimiters, deps.Metrics))

		r.Group(func(r chi.Router) {
			r.Use(middleware.BodyLimit(deps.bodyLimit()))

			r.Get("/stat", fs.Stat)
			r.Post("/wstat", fs.Wstat)
			r.Get("/statfs", fs.Statfs)
			r.Post("/open", fs.Open)
			r.Post("/read", fs.Read)
			r.Post("/close", fs.Close)
			r.Get("/readdir", fs.Readdir)
			r.Delete("/remove", fs.Remove)
			r.Get("/capabilities", fs.Capabilities)

			r.Get("/mounts", mounts.List)
			r.Get("/plugin/list", plugins.List)

			r.Get("/download", stream.Download)
		})

		// Write-path endpoints get the larger write body ceiling instead of
		// the default, per spec.md §4.10.
		r.Group(func(r chi.Router) {
			r.Use(middleware.BodyLimit(deps.writeLimit()))

			r.Post("/write", fs.Write)
			r.Put("/upload", stream.Upload)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("operator"))
			r.Post("/mount", mounts.Mount)
			r.Delete("/mount", mounts.Unmount)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/plugin/load", plugins.Load)
			r.Post("/plugin/unload", plugins.Unload)
			r.Post("/auth/revoke", authAdmin.Revoke)
		})
	})

	return r
}

// requestLogger mirrors the teacher's pkg/api/router.go requestLogger,
// additionally recording the completed request into pkg/metrics.
func requestLogger(m metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chimiddleware.GetReqID(r.Context())

			logger.DebugCtx(r.Context(), "http request started",
				logger.RequestID(requestID), logger.Method(r.Method), logger.Path(r.URL.Path),
				logger.ClientIP(r.RemoteAddr))

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			tenant := ""
			if rc := requestTenant(r); rc != "" {
				tenant = rc
			}

			logger.InfoCtx(r.Context(), "http request completed",
				logger.RequestID(requestID), logger.Method(r.Method), logger.Path(r.URL.Path),
				logger.Status(ww.Status()), logger.DurationMs(float64(duration.Milliseconds())))

			metrics.RecordHTTPRequest(m, r.Method, r.URL.Path, ww.Status(), tenant, duration)
		})
	}
}
