package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dcamposv/pulsehub/internal/config"
)

// NewRouter arma el router público del servicio.
func NewRouter(cfg *config.Config, h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(WithRecover)
	r.Use(WithLogging)
	r.Use(WithSecurityHeaders)
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(WithCORS(cfg.Server.CORSAllowedOrigins))
	}

	r.Get("/connect/{provider}", h.Connect)
	r.Get("/callback/{provider}", h.Callback)
	r.Get("/disconnect/{provider}", h.Disconnect)
	r.Get("/data/{provider}", h.Data)

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
