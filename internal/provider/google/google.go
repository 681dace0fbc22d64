// Package google implements the Google provider client: OAuth2
// authorization-code flow (confidential client) plus the YouTube Data and
// Analytics resource endpoints.
package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dcamposv/pulsehub/internal/provider"
)

const Name = "google"

const (
	discoveryURL = "https://accounts.google.com/.well-known/openid-configuration"
	revokeURL    = "https://oauth2.googleapis.com/revoke"

	channelsURL  = "https://www.googleapis.com/youtube/v3/channels"
	analyticsURL = "https://youtubeanalytics.googleapis.com/v2/reports"
)

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}
type jwks struct {
	Keys []jwk `json:"keys"`
}

// Client llama a los endpoints de Google. Stateless salvo los caches de
// discovery y JWKS.
type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string

	http *http.Client

	mu    sync.RWMutex
	disc  *discoveryDoc
	discU time.Time

	jwks     *jwks
	jwksAt   time.Time
	jwksETag string

	// overrides de test
	discoveryURL string
	channelsURL  string
	analyticsURL string
	revokeURL    string
}

func New(clientID, clientSecret, redirectURL string, scopes []string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		scopes:       scopes,
		http:         &http.Client{Timeout: provider.DefaultTimeout},
		discoveryURL: discoveryURL,
		channelsURL:  channelsURL,
		analyticsURL: analyticsURL,
		revokeURL:    revokeURL,
	}
}

func (g *Client) Name() string     { return Name }
func (g *Client) UsesPKCE() bool   { return false }
func (g *Client) Scopes() []string { return g.scopes }

func (g *Client) discovery(ctx context.Context) (*discoveryDoc, error) {
	g.mu.RLock()
	disc := g.disc
	stale := time.Since(g.discU) > 24*time.Hour
	g.mu.RUnlock()
	if disc != nil && !stale {
		return disc, nil
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, g.discoveryURL, nil)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.disc = &dd
	g.discU = time.Now()
	g.mu.Unlock()
	return &dd, nil
}

// AuthorizeURL construye la URL de consentimiento.
// access_type=offline + prompt=consent: sin ambos Google omite el
// refresh_token en reconexiones.
func (g *Client) AuthorizeURL(ctx context.Context, req provider.AuthorizeRequest) (string, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(disc.AuthEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", g.clientID)
	q.Set("redirect_uri", g.redirectURL)
	q.Set("scope", strings.Join(g.scopes, " "))
	q.Set("state", req.State)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (g *Client) tokenRequest(ctx context.Context, op string, form url.Values) (*tokenResponse, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, disc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return nil, &provider.Error{Provider: Name, Op: op, StatusCode: resp.StatusCode, Code: b.Error, Description: b.ErrorDescription}
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Exchange cambia el code por tokens y verifica el id_token para capturar
// la identidad (sub, email).
func (g *Client) Exchange(ctx context.Context, code, _ string) (*provider.Token, *provider.Identity, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("redirect_uri", g.redirectURL)

	tr, err := g.tokenRequest(ctx, "exchange", form)
	if err != nil {
		return nil, nil, err
	}
	tok := &provider.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		Scope:        tr.Scope,
	}
	ident := &provider.Identity{}
	if tr.IDToken != "" {
		claims, err := g.verifyIDToken(ctx, tr.IDToken)
		if err != nil {
			return nil, nil, err
		}
		ident.Subject = claims.Sub
		ident.Email = claims.Email
	}
	return tok, ident, nil
}

func (g *Client) Refresh(ctx context.Context, refreshToken string) (*provider.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)

	tr, err := g.tokenRequest(ctx, "refresh", form)
	if err != nil {
		return nil, err
	}
	return &provider.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		Scope:        tr.Scope,
	}, nil
}

// Revoke invalida el token en Google. Google responde 200 también para
// tokens ya revocados.
func (g *Client) Revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &provider.Error{Provider: Name, Op: "revoke", StatusCode: resp.StatusCode}
	}
	return nil
}

var _ provider.Client = (*Client)(nil)
