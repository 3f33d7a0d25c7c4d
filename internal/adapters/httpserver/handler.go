package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rodavanza/lease-service/internal/app"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lease_service",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests partitioned by method, path and status code.",
	}, []string{"method", "path", "status_code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lease_service",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// NotificationProcessor reconciles one gateway notification.
type NotificationProcessor interface {
	Process(ctx context.Context, n app.Notification) error
}

// webhookRequest is the gateway's notification body. data.id arrives as a
// JSON number for payments and as a string for subscription events.
type webhookRequest struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	*f = flexibleID(s)
	return nil
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

type Handler struct {
	proc    NotificationProcessor
	timeout time.Duration
	log     *slog.Logger
}

func NewHandler(proc NotificationProcessor, timeout time.Duration, log *slog.Logger) *Handler {
	return &Handler{proc: proc, timeout: timeout, log: log}
}

// handleWebhook always acknowledges with 200: the HTTP status never signals
// failure to the gateway, otherwise a transiently failing dependency turns
// into a redelivery storm. Failures surface through logs and metrics instead.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.WarnContext(r.Context(), "unparseable webhook body acknowledged", "err", err)
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Error: "invalid payload"})
		return
	}

	n := app.Notification{
		Type:   body.Type,
		Action: body.Action,
		ID:     string(body.Data.ID),
	}
	if n.ID == "" {
		h.log.WarnContext(r.Context(), "webhook without data.id acknowledged", "type", n.Type)
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Error: "missing data.id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.proc.Process(ctx, n); err != nil {
		h.log.ErrorContext(r.Context(), "notification processing failed, acknowledged anyway",
			"type", n.Type,
			"action", n.Action,
			"payment_id", n.ID,
			"err", err)
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

// handleWebhookPing answers gateway endpoint-validation GETs.
func (h *Handler) handleWebhookPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Server wraps *http.Server with graceful shutdown
type Server struct {
	inner   *http.Server
	log     *slog.Logger
	timeout time.Duration
}

// ServerConfig groups all HTTP server tuning parameters
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// ReadinessCheck is a function that confirms a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

func NewServer(cfg ServerConfig, h *Handler, checks []ReadinessCheck, log *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(prometheusMiddleware())

	// k8s observability
	r.Get("/healthz/live", livenessHandler())
	r.Get("/healthz/ready", readinessHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/payment-gateway", h.handleWebhookPing)
		r.Post("/payment-gateway", h.handleWebhook)
	})

	return &Server{
		inner: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log:     log,
		timeout: cfg.ShutdownTimeout,
	}
}

func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.inner.Addr)
	if err := s.inner.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	s.log.Info("HTTP server shutting down gracefully")
	return s.inner.Shutdown(shutCtx)
}

// health probes
// k8s three probe types

func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// confirms the HTTP server is running
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func readinessHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				body, _ := json.Marshal(map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				_, _ = w.Write(body)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
					"bytes", ww.BytesWritten())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// records RED metrics per route
func prometheusMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				route := chi.RouteContext(r.Context()).RoutePattern()
				if route == "" {
					route = "unknown"
				}

				statusCode := fmt.Sprintf("%d", ww.Status())
				httpRequestsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
				httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}
