package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dcamposv/pulsehub/internal/provider"
)

func newTestClient(tokenSrv, apiSrv *httptest.Server) *Client {
	c := New("client-123", "https://app.example.com/callback/spotify", []string{"user-read-email", "user-top-read"})
	if tokenSrv != nil {
		c.tokenURL = tokenSrv.URL
	}
	if apiSrv != nil {
		c.apiBaseURL = apiSrv.URL
	}
	return c
}

func TestAuthorizeURLCarriesChallenge(t *testing.T) {
	c := newTestClient(nil, nil)
	raw, err := c.AuthorizeURL(context.Background(), provider.AuthorizeRequest{
		State:               "st-1",
		CodeChallenge:       "chal",
		CodeChallengeMethod: "S256",
	})
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("code_challenge") != "chal" || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("challenge params missing: %q", raw)
	}
	if q.Get("state") != "st-1" {
		t.Fatalf("state missing")
	}
	if q.Get("client_secret") != "" {
		t.Fatalf("public client must not send a secret")
	}
}

func TestExchangeSendsVerifierNotSecret(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600, "refresh_token": "rt-1",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, nil)
	tok, ident, err := c.Exchange(context.Background(), "code-1", "verifier-1")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if ident != nil {
		t.Fatalf("spotify exchange should not produce an identity")
	}
	if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" || tok.ExpiresIn != 3600 {
		t.Fatalf("token mal parseado: %+v", tok)
	}
	if got.Get("code_verifier") != "verifier-1" {
		t.Fatalf("code_verifier ausente en el form: %v", got)
	}
	if got.Get("client_secret") != "" {
		t.Fatalf("client_secret no debe enviarse")
	}
	if got.Get("client_id") != "client-123" {
		t.Fatalf("client_id ausente")
	}
}

func TestRefreshErrorMapsToProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh token revoked"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, nil)
	_, err := c.Refresh(context.Background(), "rt-dead")
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *provider.Error, got %v", err)
	}
	if perr.Code != "invalid_grant" || perr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if !provider.IsInvalidGrant(err) {
		t.Fatalf("invalid_grant should classify as irrecoverable")
	}
}

func TestTopItemsRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/me/top/artists") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("time_range") != RangeLongTerm {
			t.Errorf("time_range = %q", r.URL.Query().Get("time_range"))
		}
		if r.Header.Get("Authorization") != "Bearer at-1" {
			t.Errorf("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"a1","name":"Artista","popularity":77,"genres":["indie"]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(nil, srv)
	items, err := c.TopItems(context.Background(), "at-1", "artists", RangeLongTerm)
	if err != nil {
		t.Fatalf("TopItems: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Artista" || items[0].Popularity != 77 {
		t.Fatalf("items mal parseados: %+v", items)
	}
}

func TestProfileUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
	}))
	defer srv.Close()

	c := newTestClient(nil, srv)
	_, err := c.Profile(context.Background(), "at-stale")
	if !provider.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized classification, got %v", err)
	}
}
