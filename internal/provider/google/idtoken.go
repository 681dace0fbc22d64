package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

type idClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	jwtv5.RegisteredClaims
}

// fetchJWKS descarga el set de claves con cache por ETag; Google rota las
// claves con poca frecuencia, refrescamos cada 12h o ante kid desconocido.
func (g *Client) fetchJWKS(ctx context.Context, force bool) (*jwks, error) {
	g.mu.RLock()
	cached := g.jwks
	fresh := time.Since(g.jwksAt) < 12*time.Hour
	etag := g.jwksETag
	g.mu.RUnlock()
	if cached != nil && fresh && !force {
		return cached, nil
	}

	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, disc.JWKSURI, nil)
	if etag != "" && !force {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		g.mu.Lock()
		g.jwksAt = time.Now()
		g.mu.Unlock()
		return cached, nil
	}
	var ks jwks
	if err := json.NewDecoder(resp.Body).Decode(&ks); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.jwks = &ks
	g.jwksAt = time.Now()
	g.jwksETag = resp.Header.Get("ETag")
	g.mu.Unlock()
	return &ks, nil
}

func (ks *jwks) rsaKey(kid string) (*rsaPub, bool) {
	for _, k := range ks.Keys {
		if k.Kid == kid && k.Kty == "RSA" {
			return &rsaPub{n: k.N, e: k.E}, true
		}
	}
	return nil, false
}

type rsaPub struct{ n, e string }

func (p *rsaPub) key() (any, error) {
	nb, err := base64.RawURLEncoding.DecodeString(p.n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(p.e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

func (g *Client) verifyIDToken(ctx context.Context, raw string) (*idClaims, error) {
	keyFn := func(tok *jwtv5.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("id_token sin kid")
		}
		ks, err := g.fetchJWKS(ctx, false)
		if err != nil {
			return nil, err
		}
		pub, ok := ks.rsaKey(kid)
		if !ok {
			// kid desconocido: rotación de claves, forzar refetch
			if ks, err = g.fetchJWKS(ctx, true); err != nil {
				return nil, err
			}
			if pub, ok = ks.rsaKey(kid); !ok {
				return nil, fmt.Errorf("kid %q no encontrado en JWKS", kid)
			}
		}
		return pub.key()
	}

	claims := &idClaims{}
	_, err := jwtv5.ParseWithClaims(raw, claims, keyFn,
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithAudience(g.clientID),
		jwtv5.WithIssuer("https://accounts.google.com"),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("id_token inválido: %w", err)
	}
	return claims, nil
}
