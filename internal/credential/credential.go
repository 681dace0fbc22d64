// Package credential defines the provider credential model and its
// persistence contract. Stores are dumb: merge/refresh policy lives here,
// network and locking policy live in the lifecycle controller.
package credential

import (
	"errors"
	"strings"
	"time"
)

// Provider enumerates the supported upstream platforms.
type Provider string

const (
	Google  Provider = "google"
	Spotify Provider = "spotify"
)

// ParseProvider validates a provider name from the wire.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case Google:
		return Google, true
	case Spotify:
		return Spotify, true
	}
	return "", false
}

// Credential is one provider's access grant for one owner.
// At most one exists per (owner, provider).
type Credential struct {
	Owner        string    `json:"owner"`
	Provider     Provider  `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`

	// Email is display metadata captured from the provider identity, when
	// the provider exposes one (Google id_token).
	Email string `json:"email,omitempty"`

	// Version increments on every write. Conditional updates compare it.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fresh reports whether the access token is still valid with at least
// leeway left before expiry.
func (c *Credential) Fresh(now time.Time, leeway time.Duration) bool {
	return c.ExpiresAt.After(now.Add(leeway))
}

var (
	// ErrNotFound indica que no hay credencial para (owner, provider).
	ErrNotFound = errors.New("credential: not found")

	// ErrVersionConflict indica que otro proceso escribió primero.
	// El caller debe re-leer y decidir con la credencial fresca.
	ErrVersionConflict = errors.New("credential: version conflict")
)
