/*
server.go - Sandbox router and middleware configuration

PURPOSE:
  Configures the chi router for the sandbox record API: a local,
  in-memory stand-in for the remote service that speaks the same wire
  contract as the real one. ledgerctl can be pointed at it for
  development, and the client tests run against it.

ROUTER: chi

MIDDLEWARE STACK:
  1. RequestID:  Reuses the caller's X-Request-ID or mints one
  2. Logger:     Structured request logging (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser front end

ROUTES:
  GET    /api/patients           List
  POST   /api/patients           Create (JSON) or ingest (multipart)
  PUT    /api/patients/{id}      Partial update
  DELETE /api/patients/{id}      Delete
  DELETE /api/clear              Clear
  POST   /api/invoice/{format}   Invoice document
  GET    /healthz                Liveness

SECURITY NOTE:
  No authentication. The sandbox is meant for localhost only.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/sandbox/main.go: Server startup
*/
package api

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// DefaultAllowedOrigins is used when no CORS origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter creates the sandbox router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(opts.Logger))
	r.Use(Recoverer(opts.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.ListPatients)
			r.Post("/", h.CreateOrIngest)
			r.Put("/{id}", h.UpdatePatient)
			r.Delete("/{id}", h.DeletePatient)
		})
		r.Delete("/clear", h.ClearPatients)
		r.Post("/invoice/{format}", h.GenerateInvoice)
	})

	return r
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RequestLogger logs one structured line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			rid := middleware.GetReqID(r.Context())
			if rid != "" {
				ww.Header().Set(RequestIDHeader, rid)
			}

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := logger.Info()
			if status >= 500 {
				evt = logger.Error()
			}
			evt.
				Str("request_id", rid).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("remote_ip", r.RemoteAddr).
				Msg("request")
		})
	}
}

// Recoverer turns a handler panic into a 500 and logs the stack.
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)
					logger.Error().
						Str("request_id", middleware.GetReqID(r.Context())).
						Str("panic", fmt.Sprintf("%v", rec)).
						Str("stack", string(stack[:n])).
						Msg("panic recovered")
					writeError(w, http.StatusInternalServerError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
