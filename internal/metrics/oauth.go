package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OAuth lifecycle and query Prometheus metrics. Defined in a standalone
// package to avoid import cycles between lifecycle, query and HTTP packages.

var (
	AuthorizationExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_authorization_exchange_total",
		Help: "Intercambios de authorization code por proveedor y resultado",
	}, []string{"provider", "outcome"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_token_refresh_total",
		Help: "Refrescos de access token por proveedor y resultado",
	}, []string{"provider", "outcome"})

	QueryVariants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_query_variant_total",
		Help: "Variantes de consulta ejecutadas por proveedor, operación y resultado",
	}, []string{"provider", "operation", "variant", "outcome"})
)

// Valores del label outcome.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeReauth  = "reauth_required"
	OutcomeSkipped = "skipped"
)

// Register registers the OAuth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{AuthorizationExchanges, TokenRefreshes, QueryVariants} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
