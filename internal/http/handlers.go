package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dcamposv/pulsehub/internal/authstate"
	"github.com/dcamposv/pulsehub/internal/cache"
	"github.com/dcamposv/pulsehub/internal/config"
	"github.com/dcamposv/pulsehub/internal/credential"
	"github.com/dcamposv/pulsehub/internal/lifecycle"
	"github.com/dcamposv/pulsehub/internal/observability/logger"
	"github.com/dcamposv/pulsehub/internal/query"
)

// Handlers agrupa los endpoints del ciclo de conexión y consulta.
type Handlers struct {
	cfg    *config.Config
	ctrl   *lifecycle.Controller
	facade *query.Facade
	creds  credential.Store
	kv     cache.Cache
	log    *zap.Logger
}

func NewHandlers(cfg *config.Config, ctrl *lifecycle.Controller, facade *query.Facade, creds credential.Store, kv cache.Cache) *Handlers {
	return &Handlers{cfg: cfg, ctrl: ctrl, facade: facade, creds: creds, kv: kv, log: logger.Named("handlers")}
}

func pathProvider(w http.ResponseWriter, r *http.Request) (credential.Provider, bool) {
	prov, ok := credential.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_provider", "proveedor no soportado", codeUnknownProvider)
		return "", false
	}
	return prov, true
}

// Connect inicia el flujo de autorización y redirige al consentimiento del
// proveedor.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	prov, ok := pathProvider(w, r)
	if !ok {
		return
	}
	owner := ownerID(w, r)

	u, err := h.ctrl.StartAuthorization(r.Context(), owner, prov)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnknownProvider) {
			WriteError(w, http.StatusNotFound, "unknown_provider", "proveedor no habilitado", codeUnknownProvider)
			return
		}
		h.log.Error("start authorization", logger.Provider(string(prov)), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "server_error", "no se pudo iniciar la autorización", codeInternal)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// Callback procesa el retorno del proveedor. Todos los desenlaces terminan
// en un redirect del navegador; los detalles quedan en el querystring del
// destino y en los logs, nunca en el body.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	prov, ok := pathProvider(w, r)
	if !ok {
		return
	}
	owner := ownerID(w, r)
	q := r.URL.Query()

	// el usuario negó el consentimiento o el proveedor reportó error
	if reason := q.Get("error"); reason != "" {
		h.redirectFailure(w, r, prov, reason)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		h.redirectFailure(w, r, prov, "missing_parameters")
		return
	}

	_, err := h.ctrl.CompleteAuthorization(r.Context(), owner, prov, state, code)
	if err != nil {
		switch {
		case errors.Is(err, authstate.ErrInvalidState):
			// desconocido, expirado o repetido: misma respuesta para los tres
			h.redirectFailure(w, r, prov, "invalid_state")
		default:
			var xerr *lifecycle.ExchangeError
			if errors.As(err, &xerr) {
				h.log.Warn("code exchange failed", logger.Provider(string(prov)), logger.Err(err))
				h.redirectFailure(w, r, prov, "exchange_failed")
				return
			}
			h.log.Error("callback", logger.Provider(string(prov)), logger.Err(err))
			h.redirectFailure(w, r, prov, "server_error")
		}
		return
	}

	dest := h.cfg.Server.SuccessRedirect + "?" + url.Values{"provider": {string(prov)}}.Encode()
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handlers) redirectFailure(w http.ResponseWriter, r *http.Request, prov credential.Provider, reason string) {
	dest := h.cfg.Server.FailureRedirect + "?" + url.Values{
		"provider": {string(prov)},
		"reason":   {reason},
	}.Encode()
	http.Redirect(w, r, dest, http.StatusFound)
}

// Disconnect revoca y elimina la conexión. Idempotente: desconectar dos
// veces responde igual.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	prov, ok := pathProvider(w, r)
	if !ok {
		return
	}
	owner := ownerID(w, r)

	if err := h.ctrl.Disconnect(r.Context(), owner, prov); err != nil {
		h.log.Error("disconnect", logger.Provider(string(prov)), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "server_error", "no se pudo desconectar", codeInternal)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"provider": prov, "disconnected": true})
}

// Data ejecuta la consulta resiliente contra el proveedor conectado.
func (h *Handlers) Data(w http.ResponseWriter, r *http.Request) {
	prov, ok := pathProvider(w, r)
	if !ok {
		return
	}
	owner := ownerID(w, r)

	payload, err := h.facade.Fetch(r.Context(), owner, prov)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrReauthorizationRequired):
			WriteError(w, http.StatusUnauthorized, "reauthorization_required",
				"no hay conexión vigente, iniciá el flujo en /connect/"+string(prov), codeReauthRequired)
		case errors.Is(err, query.ErrProviderDisabled):
			WriteError(w, http.StatusNotFound, "unknown_provider",
				"proveedor no habilitado en esta instancia", codeUnknownProvider)
		case errors.Is(err, query.ErrUpstreamUnauthorized):
			WriteError(w, http.StatusUnauthorized, "upstream_unauthorized",
				"el proveedor rechazó el token incluso después de refrescarlo", codeUpstreamRejected)
		default:
			logger.From(r.Context()).Error("data query", logger.Provider(string(prov)), logger.Err(err))
			WriteError(w, http.StatusBadGateway, "upstream_error", "la consulta al proveedor falló", codeInternal)
		}
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, payload)
}

// Healthz reporta la salud del proceso y sus dependencias.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok", "cache": "ok"}
	status := http.StatusOK
	if err := h.creds.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.kv.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	WriteJSON(w, status, body)
}
