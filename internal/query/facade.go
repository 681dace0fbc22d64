// Package query es la fachada de consulta resiliente: ejecuta planes de
// consulta con variantes ordenadas contra los proveedores, degradando por
// variante en lugar de fallar la petición completa.
package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dcamposv/pulsehub/internal/credential"
	"github.com/dcamposv/pulsehub/internal/metrics"
	"github.com/dcamposv/pulsehub/internal/observability/logger"
	"github.com/dcamposv/pulsehub/internal/provider"
)

// ErrUpstreamUnauthorized: el proveedor siguió devolviendo 401 después del
// único refresh forzado permitido por consulta. No se reintenta más.
var ErrUpstreamUnauthorized = errors.New("proveedor rechazó el token tras refrescarlo")

// ErrProviderDisabled: el proveedor no tiene cliente de API configurado en
// este proceso, aunque pueda existir una credencial persistida de un
// despliegue anterior.
var ErrProviderDisabled = errors.New("proveedor deshabilitado para consultas")

// TokenSource entrega access tokens usables. Lo implementa el lifecycle
// controller.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, owner string, prov credential.Provider) (string, error)
	ForceRefresh(ctx context.Context, owner string, prov credential.Provider) (string, error)
}

// Payload es la respuesta agregada de una consulta. Cada sección lleva su
// propio resultado o su propio error; un fallo de sección nunca tumba las
// demás.
type Payload struct {
	Provider  string                    `json:"provider"`
	FetchedAt time.Time                 `json:"fetched_at"`
	Sections  map[string]*SectionResult `json:"sections"`
}

// SectionResult es el resultado de un plan: o Data con la variante que lo
// produjo, o Error si todas las variantes fallaron.
type SectionResult struct {
	Variant string        `json:"variant,omitempty"`
	Data    any           `json:"data,omitempty"`
	Error   *SectionError `json:"error,omitempty"`
}

// SectionError es un UpstreamQueryError serializable: el fallo de la última
// variante intentada.
type SectionError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Facade resuelve el token y ejecuta los planes del proveedor en orden.
type Facade struct {
	tokens  TokenSource
	google  GoogleAPI
	spotify SpotifyAPI
	log     *zap.Logger
}

func New(tokens TokenSource, g GoogleAPI, s SpotifyAPI) *Facade {
	return &Facade{tokens: tokens, google: g, spotify: s, log: logger.Named("query")}
}

// Fetch ejecuta la consulta completa para el par (owner, provider).
// Devuelve error sólo ante fallos de autenticación o de infraestructura;
// los errores de upstream por sección van embebidos en el Payload.
func (f *Facade) Fetch(ctx context.Context, owner string, prov credential.Provider) (*Payload, error) {
	// antes de tocar tokens o red: una credencial rezagada de un proveedor
	// hoy deshabilitado no debe llegar a los planes
	var plans []plan
	switch prov {
	case credential.Google:
		if f.google == nil {
			return nil, ErrProviderDisabled
		}
		plans = f.googlePlans()
	case credential.Spotify:
		if f.spotify == nil {
			return nil, ErrProviderDisabled
		}
		plans = f.spotifyPlans()
	default:
		return nil, errors.New("proveedor sin planes de consulta: " + string(prov))
	}

	accessToken, err := f.tokens.GetValidAccessToken(ctx, owner, prov)
	if err != nil {
		return nil, err
	}

	run := &runner{
		facade:   f,
		owner:    owner,
		provider: prov,
		token:    accessToken,
	}

	payload := &Payload{
		Provider:  string(prov),
		FetchedAt: time.Now().UTC(),
		Sections:  make(map[string]*SectionResult, len(plans)),
	}
	for _, p := range plans {
		res, err := run.execute(ctx, p)
		if err != nil {
			return nil, err
		}
		payload.Sections[p.operation] = res
	}
	return payload, nil
}

// runner arrastra el access token a través de los planes de una consulta y
// limita el refresh forzado a uno por Fetch.
type runner struct {
	facade    *Facade
	owner     string
	provider  credential.Provider
	token     string
	refreshed bool
	// resultados intermedios que planes posteriores consultan
	channelID string
}

// execute corre las variantes del plan en orden estricto y devuelve la
// primera que prospere. Nunca devuelve error por fallos de upstream no
// relacionados con autenticación; esos quedan en SectionResult.Error.
func (r *runner) execute(ctx context.Context, p plan) (*SectionResult, error) {
	var last error
	allAbsent := p.absent != nil
	for _, v := range p.variants {
		if v.skip != nil && v.skip(r) {
			metrics.QueryVariants.WithLabelValues(string(r.provider), p.operation, v.name, metrics.OutcomeSkipped).Inc()
			continue
		}
		data, err := r.runVariant(ctx, p.operation, v)
		if err == nil {
			metrics.QueryVariants.WithLabelValues(string(r.provider), p.operation, v.name, metrics.OutcomeOK).Inc()
			if v.record != nil {
				v.record(r, data)
			}
			return &SectionResult{Variant: v.name, Data: data}, nil
		}
		var fatal *fatalError
		if errors.As(err, &fatal) {
			return nil, fatal.err
		}
		if errors.Is(err, ErrUpstreamUnauthorized) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		metrics.QueryVariants.WithLabelValues(string(r.provider), p.operation, v.name, metrics.OutcomeError).Inc()
		if p.absent != nil && errors.Is(err, p.absent) {
			r.facade.log.Debug("query variant empty",
				logger.Provider(string(r.provider)), logger.Op(p.operation),
				logger.Variant(v.name))
		} else {
			allAbsent = false
			r.facade.log.Warn("query variant failed",
				logger.Provider(string(r.provider)), logger.Op(p.operation),
				logger.Variant(v.name), logger.Err(err))
		}
		last = err
	}
	if last != nil && allAbsent {
		// todas las variantes vinieron vacías: la ausencia es un resultado
		// válido, no un fallo de la sección
		return &SectionResult{}, nil
	}
	return &SectionResult{Error: sectionError(last)}, nil
}

// runVariant ejecuta una variante con dos reglas de resiliencia: un fallo
// transitorio de red se reintenta una única vez sin backoff, y un 401 fuerza
// un único refresh por consulta seguido de una única repetición.
func (r *runner) runVariant(ctx context.Context, operation string, v variant) (any, error) {
	data, err := v.run(ctx, r, r.token)
	if err != nil && provider.IsTransient(err) {
		data, err = v.run(ctx, r, r.token)
	}
	if err != nil && provider.IsUnauthorized(err) {
		if r.refreshed {
			return nil, ErrUpstreamUnauthorized
		}
		r.refreshed = true
		tok, rerr := r.facade.tokens.ForceRefresh(ctx, r.owner, r.provider)
		if rerr != nil {
			// sin token no hay nada más que consultar
			return nil, &fatalError{err: rerr}
		}
		r.token = tok
		data, err = v.run(ctx, r, r.token)
		if err != nil && provider.IsUnauthorized(err) {
			return nil, ErrUpstreamUnauthorized
		}
	}
	return data, err
}

// fatalError marca un fallo que aborta la consulta completa en lugar de
// degradar la sección en curso.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func sectionError(err error) *SectionError {
	if err == nil {
		return &SectionError{Message: "sin variantes aplicables"}
	}
	se := &SectionError{Message: err.Error()}
	var perr *provider.Error
	if errors.As(err, &perr) {
		se.StatusCode = perr.StatusCode
	}
	return se
}
