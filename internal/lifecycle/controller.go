// Package lifecycle owns provider credentials end to end: it starts and
// completes authorization flows, keeps access tokens fresh and tears
// connections down. Everything above it (handlers, query façade) asks this
// package for a usable access token and never touches the token endpoints
// directly.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dcamposv/pulsehub/internal/authstate"
	"github.com/dcamposv/pulsehub/internal/credential"
	"github.com/dcamposv/pulsehub/internal/metrics"
	"github.com/dcamposv/pulsehub/internal/observability/logger"
	"github.com/dcamposv/pulsehub/internal/provider"
	"github.com/dcamposv/pulsehub/internal/security/pkce"
)

// expiryLeeway is subtracted from the stored expiry when deciding whether a
// token is still usable, so we never hand out a token about to die mid-call.
const expiryLeeway = 60 * time.Second

// refreshTimeout bounds the detached refresh so an abandoned caller cannot
// leave the singleflight entry hanging.
const refreshTimeout = 15 * time.Second

// ErrReauthorizationRequired means no usable credential exists for the
// (owner, provider) pair: never connected, disconnected, or the refresh
// token was rejected as irrecoverable. The only way out is a new flow.
var ErrReauthorizationRequired = errors.New("reautorización requerida")

// ErrUnknownProvider se devuelve cuando el provider no está configurado.
var ErrUnknownProvider = errors.New("proveedor no configurado")

// ExchangeError es un fallo del intercambio code->token posterior a la
// validación de state; el state ya fue consumido y no puede reutilizarse.
type ExchangeError struct {
	Provider string
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("intercambio de código con %s falló: %v", e.Provider, e.Err)
}
func (e *ExchangeError) Unwrap() error { return e.Err }

// Controller coordina authstate, credenciales y clientes de proveedor.
type Controller struct {
	states  *authstate.Store
	creds   credential.Store
	clients map[credential.Provider]provider.Client

	sf  singleflight.Group
	now func() time.Time
	log *zap.Logger
}

func New(states *authstate.Store, creds credential.Store, clients map[credential.Provider]provider.Client) *Controller {
	return &Controller{
		states:  states,
		creds:   creds,
		clients: clients,
		now:     time.Now,
		log:     logger.Named("lifecycle"),
	}
}

func (c *Controller) client(prov credential.Provider) (provider.Client, error) {
	cl, ok := c.clients[prov]
	if ok {
		return cl, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, prov)
}

// StartAuthorization genera el state (y el par PKCE si el proveedor lo
// requiere), lo registra con TTL y devuelve la URL de consentimiento.
func (c *Controller) StartAuthorization(ctx context.Context, owner string, prov credential.Provider) (string, error) {
	cl, err := c.client(prov)
	if err != nil {
		return "", err
	}
	state, err := pkce.NewState()
	if err != nil {
		return "", err
	}

	req := provider.AuthorizeRequest{State: state}
	verifier := ""
	if cl.UsesPKCE() {
		ch, err := pkce.New()
		if err != nil {
			return "", err
		}
		verifier = ch.Verifier
		req.CodeChallenge = ch.Challenge
		req.CodeChallengeMethod = ch.Method
	}
	if err := c.states.Begin(ctx, state, owner, verifier); err != nil {
		return "", err
	}
	u, err := cl.AuthorizeURL(ctx, req)
	if err != nil {
		return "", err
	}
	c.log.Info("authorization started", logger.Owner(owner), logger.Provider(string(prov)))
	return u, nil
}

// CompleteAuthorization valida y consume el state ANTES de tocar la red y,
// si el intercambio prospera, persiste la credencial. La escritura es
// incondicional: si dos callbacks concurren para el mismo par, gana el
// último y el merge conserva el refresh token previo si el nuevo viene
// vacío.
func (c *Controller) CompleteAuthorization(ctx context.Context, owner string, prov credential.Provider, state, code string) (*credential.Credential, error) {
	cl, err := c.client(prov)
	if err != nil {
		return nil, err
	}
	verifier, err := c.states.Consume(ctx, state, owner)
	if err != nil {
		return nil, err
	}

	tok, ident, err := cl.Exchange(ctx, code, verifier)
	if err != nil {
		metrics.AuthorizationExchanges.WithLabelValues(string(prov), metrics.OutcomeError).Inc()
		return nil, &ExchangeError{Provider: string(prov), Err: err}
	}

	now := c.now().UTC()
	cred := &credential.Credential{
		Owner:        owner,
		Provider:     prov,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(tok.ExpiresIn) * time.Second),
		Scopes:       grantedScopes(tok, cl),
	}
	if ident != nil {
		cred.Email = ident.Email
	}
	if err := c.creds.Put(ctx, cred); err != nil {
		return nil, err
	}
	metrics.AuthorizationExchanges.WithLabelValues(string(prov), metrics.OutcomeOK).Inc()
	c.log.Info("authorization completed",
		logger.Owner(owner), logger.Provider(string(prov)),
		zap.Bool("has_refresh_token", tok.RefreshToken != ""))
	return cred, nil
}

func grantedScopes(tok *provider.Token, cl provider.Client) []string {
	if tok.Scope != "" {
		return strings.Fields(tok.Scope)
	}
	return cl.Scopes()
}

// GetValidAccessToken devuelve un access token con al menos expiryLeeway de
// vida restante, refrescando si hace falta. Refrescos concurrentes para el
// mismo par colapsan en una sola llamada al proveedor.
func (c *Controller) GetValidAccessToken(ctx context.Context, owner string, prov credential.Provider) (string, error) {
	cred, err := c.creds.Get(ctx, owner, prov)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return "", ErrReauthorizationRequired
		}
		return "", err
	}
	if cred.Fresh(c.now(), expiryLeeway) {
		return cred.AccessToken, nil
	}
	return c.refresh(ctx, owner, prov)
}

// ForceRefresh descarta el access token vigente y obtiene uno nuevo. Lo usa
// el façade cuando el proveedor devuelve 401 pese a un expiry aún válido.
func (c *Controller) ForceRefresh(ctx context.Context, owner string, prov credential.Provider) (string, error) {
	return c.refresh(ctx, owner, prov)
}

func (c *Controller) refresh(ctx context.Context, owner string, prov credential.Provider) (string, error) {
	key := owner + "|" + string(prov)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		// contexto desacoplado: si el caller cancela a mitad del
		// refresh, el resultado igual se persiste y sirve al resto.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.doRefresh(dctx, owner, prov)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// doRefresh es la sección crítica compartida por singleflight.
func (c *Controller) doRefresh(ctx context.Context, owner string, prov credential.Provider) (string, error) {
	cl, err := c.client(prov)
	if err != nil {
		return "", err
	}
	cred, err := c.creds.Get(ctx, owner, prov)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return "", ErrReauthorizationRequired
		}
		return "", err
	}
	if cred.RefreshToken == "" {
		// sin refresh token no hay nada que intentar
		if err := c.creds.Delete(ctx, owner, prov); err != nil {
			c.log.Warn("delete tras credencial sin refresh token", logger.Err(err))
		}
		metrics.TokenRefreshes.WithLabelValues(string(prov), metrics.OutcomeReauth).Inc()
		return "", ErrReauthorizationRequired
	}

	tok, err := cl.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if provider.IsInvalidGrant(err) {
			if derr := c.creds.Delete(ctx, owner, prov); derr != nil {
				c.log.Warn("delete tras invalid_grant", logger.Err(derr))
			}
			metrics.TokenRefreshes.WithLabelValues(string(prov), metrics.OutcomeReauth).Inc()
			c.log.Info("refresh token rejected, credential dropped",
				logger.Owner(owner), logger.Provider(string(prov)))
			return "", ErrReauthorizationRequired
		}
		metrics.TokenRefreshes.WithLabelValues(string(prov), metrics.OutcomeError).Inc()
		return "", err
	}

	now := c.now().UTC()
	next := *cred
	next.AccessToken = tok.AccessToken
	next.RefreshToken = tok.RefreshToken // vacío => el merge del store conserva el previo
	next.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)

	if err := c.creds.Update(ctx, &next, cred.Version); err != nil {
		if errors.Is(err, credential.ErrVersionConflict) {
			// otro proceso refrescó primero; su token sirve igual
			if cur, gerr := c.creds.Get(ctx, owner, prov); gerr == nil {
				metrics.TokenRefreshes.WithLabelValues(string(prov), metrics.OutcomeSkipped).Inc()
				return cur.AccessToken, nil
			}
		}
		return "", err
	}
	metrics.TokenRefreshes.WithLabelValues(string(prov), metrics.OutcomeOK).Inc()
	c.log.Debug("access token refreshed", logger.Owner(owner), logger.Provider(string(prov)))
	return tok.AccessToken, nil
}

// Disconnect revoca el token en el proveedor (best effort) y elimina la
// credencial local. Es idempotente: sin credencial no hay error.
func (c *Controller) Disconnect(ctx context.Context, owner string, prov credential.Provider) error {
	cl, err := c.client(prov)
	if err != nil {
		return err
	}
	cred, err := c.creds.Get(ctx, owner, prov)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil
		}
		return err
	}
	if rerr := cl.Revoke(ctx, cred.AccessToken); rerr != nil {
		c.log.Warn("revocación falló, se elimina igual la credencial local",
			logger.Provider(string(prov)), logger.Err(rerr))
	}
	if err := c.creds.Delete(ctx, owner, prov); err != nil {
		return err
	}
	c.log.Info("credential disconnected", logger.Owner(owner), logger.Provider(string(prov)))
	return nil
}
