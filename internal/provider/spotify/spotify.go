// Package spotify implements the Spotify provider client as a public OAuth2
// client: authorization-code flow with PKCE, no client secret anywhere.
package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/dcamposv/pulsehub/internal/provider"
)

const Name = "spotify"

const (
	authorizeURL = "https://accounts.spotify.com/authorize"
	tokenURL     = "https://accounts.spotify.com/api/token"
	apiBaseURL   = "https://api.spotify.com"
)

type Client struct {
	clientID    string
	redirectURL string
	scopes      []string

	http *http.Client

	// overrides de test
	authorizeURL string
	tokenURL     string
	apiBaseURL   string
}

func New(clientID, redirectURL string, scopes []string) *Client {
	return &Client{
		clientID:     clientID,
		redirectURL:  redirectURL,
		scopes:       scopes,
		http:         &http.Client{Timeout: provider.DefaultTimeout},
		authorizeURL: authorizeURL,
		tokenURL:     tokenURL,
		apiBaseURL:   apiBaseURL,
	}
}

func (s *Client) Name() string     { return Name }
func (s *Client) UsesPKCE() bool   { return true }
func (s *Client) Scopes() []string { return s.scopes }

func (s *Client) AuthorizeURL(_ context.Context, req provider.AuthorizeRequest) (string, error) {
	u, err := url.Parse(s.authorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", s.clientID)
	q.Set("redirect_uri", s.redirectURL)
	q.Set("scope", strings.Join(s.scopes, " "))
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", req.CodeChallengeMethod)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

func (s *Client) tokenRequest(ctx context.Context, op string, form url.Values) (*provider.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.http.Do(req)
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
	return &provider.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		Scope:        tr.Scope,
	}, nil
}

// Exchange cambia el code por tokens enviando el code_verifier en lugar de
// un secret. Spotify no emite id_token, la identidad se captura después
// con Profile.
func (s *Client) Exchange(ctx context.Context, code, verifier string) (*provider.Token, *provider.Identity, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.redirectURL)
	form.Set("client_id", s.clientID)
	form.Set("code_verifier", verifier)

	tok, err := s.tokenRequest(ctx, "exchange", form)
	if err != nil {
		return nil, nil, err
	}
	return tok, nil, nil
}

// Refresh rota el access token. Spotify suele devolver también un nuevo
// refresh_token para clientes PKCE; cuando lo omite se conserva el previo.
func (s *Client) Refresh(ctx context.Context, refreshToken string) (*provider.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", s.clientID)
	return s.tokenRequest(ctx, "refresh", form)
}

// Revoke no hace nada: Spotify no expone endpoint de revocación, el usuario
// retira el acceso desde su cuenta.
func (s *Client) Revoke(_ context.Context, _ string) error { return nil }

var _ provider.Client = (*Client)(nil)
