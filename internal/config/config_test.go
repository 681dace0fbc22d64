package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeYAML(t, "app:\n  app_env: dev\n"))
	require.NoError(t, err)

	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "memory", c.Storage.Driver)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, 10*time.Minute, c.AuthState.TTL)
	require.NotEmpty(t, c.Providers.Spotify.Scopes)
	require.NotEmpty(t, c.Providers.Google.Scopes)
}

func TestEnabledProviderWithoutCredentialsFailsLoad(t *testing.T) {
	p := writeYAML(t, strings.Join([]string{
		"providers:",
		"  google:",
		"    enabled: true",
		"    client_id: cid",
		// sin client_secret
	}, "\n"))
	_, err := Load(p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "client_secret")

	p2 := writeYAML(t, strings.Join([]string{
		"providers:",
		"  spotify:",
		"    enabled: true",
	}, "\n"))
	_, err = Load(p2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "client_id")
}

func TestSpotifyNeedsNoSecret(t *testing.T) {
	p := writeYAML(t, strings.Join([]string{
		"providers:",
		"  spotify:",
		"    enabled: true",
		"    client_id: cid-spotify",
	}, "\n"))
	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/callback/spotify", c.Providers.Spotify.RedirectURL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://localhost/pulsehub")
	t.Setenv("SPOTIFY_SCOPES", "user-top-read, user-read-email")
	t.Setenv("AUTH_STATE_TTL", "5m")

	c, err := Load(writeYAML(t, "app:\n  app_env: dev\n"))
	require.NoError(t, err)

	require.Equal(t, ":9090", c.Server.Addr)
	require.Equal(t, "postgres", c.Storage.Driver)
	require.Equal(t, []string{"user-top-read", "user-read-email"}, c.Providers.Spotify.Scopes)
	require.Equal(t, 5*time.Minute, c.AuthState.TTL)
}

func TestInvalidDriverRejected(t *testing.T) {
	_, err := Load(writeYAML(t, "storage:\n  driver: cassandra\n"))
	require.Error(t, err)
}
