package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relaydesk/wabridge/internal/control"
	httpmiddleware "github.com/relaydesk/wabridge/internal/http/middleware"
	"github.com/relaydesk/wabridge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	ControlHandler *control.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// The control surface is a single action-dispatched route.
	r.Get("/", cfg.ControlHandler.ServeHTTP)
	r.Get("/*", cfg.ControlHandler.ServeHTTP)

	return r
}
