// Package api is the HTTP control surface of the studio.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/studio"
)

// Options configures the router.
type Options struct {
	MaxUploadBytes int64
	// Stream and Offer serve live audition when set.
	Stream http.Handler
	Offer  http.Handler
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	studio    *studio.Studio
	logger    *zap.Logger
	maxUpload int64
}

// NewRouter returns the full HTTP handler.
func NewRouter(s *studio.Studio, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	h := &Handlers{studio: s, logger: logger, maxUpload: opts.MaxUploadBytes}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Job-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/events", h.Events)
		r.Get("/settings", h.Settings)
		r.Put("/volume", h.SetVolume)

		r.Route("/tone", func(r chi.Router) {
			r.Put("/", h.SelectTone)
			r.Patch("/params", h.UpdateTone)
		})
		r.Route("/presets", func(r chi.Router) {
			r.Get("/", h.Presets)
			r.Post("/{presetId}", h.ApplyPreset)
		})
		r.Route("/frequencies", func(r chi.Router) {
			r.Post("/play", h.PlayFrequencies)
			r.Post("/stop", h.StopFrequencies)
		})
		r.Route("/music", func(r chi.Router) {
			r.Post("/", h.UploadMusic)
			r.Delete("/", h.ClearMusic)
			r.Post("/play", h.PlayMusic)
			r.Post("/stop", h.StopMusic)
		})
		r.Post("/stop", h.StopAll)

		r.Route("/export", func(r chi.Router) {
			r.Put("/options", h.SetExportOptions)
			r.Post("/", h.Export)
		})
	})

	if opts.Stream != nil {
		r.Handle("/stream", opts.Stream)
	}
	if opts.Offer != nil {
		r.Handle("/offer", opts.Offer)
	}
	return r
}

// requestLogger logs one line per request. Long-lived streams are logged
// when they end.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("requestId", chimw.GetReqID(r.Context())))
		})
	}
}
