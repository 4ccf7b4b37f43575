/*
server.go - HTTP router, middleware configuration and server lifecycle

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from proxy headers
  3. Logger:     Structured request logging (slog)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Timeout:    Request deadline
  6. CORS:       Cross-origin requests for frontend
  /api/scan additionally has a per-employee rate limit, so a whole shift
  scanning through one shop NAT address is not throttled as one client.

ROUTE GROUPS:
  /api/scan             QR scans
  /api/tenants/*        Tenant-scoped configuration, attendance and reports
  /api/leave/*          Leave approval
  /api/scenarios/*      Demo scenarios
  /health, /metrics     Operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/warp/staff-engine/config"
)

// RouterOptions are the tunables of NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// ScanRateLimit is scans per minute per employee.
	ScanRateLimit  int
	RequestTimeout time.Duration
}

// DefaultRouterOptions mirror the config defaults.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		ScanRateLimit:  30,
		RequestTimeout: 60 * time.Second,
	}
}

// maxScanBody caps how much of a scan body the rate limiter buffers.
const maxScanBody = 64 << 10

// scanRateKey keys the scan limit on tenant and employee from the body.
// Bodies it cannot read fall back to the client IP; the handler reports
// the actual decoding error.
func scanRateKey(r *http.Request) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxScanBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return httprate.KeyByIP(r)
	}

	var req ScanRequest
	if json.Unmarshal(data, &req) != nil || req.TenantID == "" || req.EmployeeID == "" {
		return httprate.KeyByIP(r)
	}
	return "scan:" + req.TenantID + ":" + req.EmployeeID, nil
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(httprate.Limit(opts.ScanRateLimit, time.Minute,
			httprate.WithKeyFuncs(scanRateKey),
		)).Post("/scan", h.Scan)

		r.Post("/tenants", h.CreateTenant)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/qr", h.GetQR)
			r.Get("/schedule", h.GetSchedule)
			r.Put("/schedule", h.PutSchedule)

			r.Get("/employees", h.ListEmployees)
			r.Post("/employees", h.CreateEmployee)
			r.Get("/employees/{employeeID}/points", h.GetPoints)

			r.Get("/attendance", h.ListAttendance)
			r.Post("/attendance/manual", h.RecordManualAttendance)
			r.Post("/leave", h.SubmitLeave)

			r.Get("/payroll", h.GetPayroll)
			r.Put("/payroll/{month}/adjustments/{employeeID}", h.PutAdjustment)
			r.Post("/payroll/{month}/finalize", h.FinalizePayroll)
			r.Get("/muster", h.GetMuster)
		})

		r.Post("/leave/{id}/status", h.SetLeaveStatus)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Start(ctx context.Context, cfg config.Config, router http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
