package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BaseURL            string   `yaml:"base_url"` // base pública para construir redirect_url
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		SuccessRedirect    string   `yaml:"success_redirect"` // destino tras un callback exitoso
		FailureRedirect    string   `yaml:"failure_redirect"` // destino tras un callback fallido
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres | redis
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	AuthState struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"auth_state"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`

	Providers struct {
		Google struct {
			Enabled      bool     `yaml:"enabled"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			RedirectURL  string   `yaml:"redirect_url"` // si vacío => <server.base_url>/callback/google
			Scopes       []string `yaml:"scopes"`
		} `yaml:"google"`
		Spotify struct {
			Enabled     bool     `yaml:"enabled"`
			ClientID    string   `yaml:"client_id"`
			RedirectURL string   `yaml:"redirect_url"` // si vacío => <server.base_url>/callback/spotify
			Scopes      []string `yaml:"scopes"`
		} `yaml:"spotify"`
	} `yaml:"providers"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Server.SuccessRedirect == "" {
		c.Server.SuccessRedirect = "/connected"
	}
	if c.Server.FailureRedirect == "" {
		c.Server.FailureRedirect = "/connect-error"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "15m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "pulsehub"
	}
	if c.AuthState.TTL == 0 {
		c.AuthState.TTL = 10 * time.Minute
	}
	if len(c.Providers.Google.Scopes) == 0 {
		c.Providers.Google.Scopes = []string{
			"openid", "email",
			"https://www.googleapis.com/auth/youtube.readonly",
			"https://www.googleapis.com/auth/yt-analytics.readonly",
		}
	}
	if len(c.Providers.Spotify.Scopes) == 0 {
		c.Providers.Spotify.Scopes = []string{"user-read-email", "user-read-private", "user-top-read"}
	}

	// validate string durations
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}
	if _, err := time.ParseDuration(c.Cache.Memory.DefaultTTL); err != nil {
		return nil, err
	}

	// Overrides por env
	c.applyEnvOverrides()

	// Redirect URLs derivadas del base_url si no vienen explícitas
	base := strings.TrimRight(c.Server.BaseURL, "/")
	if c.Providers.Google.Enabled && strings.TrimSpace(c.Providers.Google.RedirectURL) == "" {
		c.Providers.Google.RedirectURL = base + "/callback/google"
	}
	if c.Providers.Spotify.Enabled && strings.TrimSpace(c.Providers.Spotify.RedirectURL) == "" {
		c.Providers.Spotify.RedirectURL = base + "/callback/spotify"
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_URL"); ok {
		c.Server.BaseURL = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("SERVER_SUCCESS_REDIRECT"); ok {
		c.Server.SuccessRedirect = v
	}
	if v, ok := getEnvStr("SERVER_FAILURE_REDIRECT"); ok {
		c.Server.FailureRedirect = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// AUTH STATE
	if v, ok := getEnvDur("AUTH_STATE_TTL"); ok {
		c.AuthState.TTL = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}

	// GOOGLE
	if v, ok := getEnvBool("GOOGLE_ENABLED"); ok {
		c.Providers.Google.Enabled = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_ID"); ok {
		c.Providers.Google.ClientID = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_SECRET"); ok {
		c.Providers.Google.ClientSecret = v
	}
	if v, ok := getEnvStr("GOOGLE_REDIRECT_URL"); ok {
		c.Providers.Google.RedirectURL = v
	}
	if v, ok := getEnvCSV("GOOGLE_SCOPES"); ok && len(v) > 0 {
		c.Providers.Google.Scopes = v
	}

	// SPOTIFY
	if v, ok := getEnvBool("SPOTIFY_ENABLED"); ok {
		c.Providers.Spotify.Enabled = v
	}
	if v, ok := getEnvStr("SPOTIFY_CLIENT_ID"); ok {
		c.Providers.Spotify.ClientID = v
	}
	if v, ok := getEnvStr("SPOTIFY_REDIRECT_URL"); ok {
		c.Providers.Spotify.RedirectURL = v
	}
	if v, ok := getEnvCSV("SPOTIFY_SCOPES"); ok && len(v) > 0 {
		c.Providers.Spotify.Scopes = v
	}
}

// Validate corta el arranque ante configuraciones incompletas: un proveedor
// habilitado sin credenciales de aplicación no puede iniciar ningún flujo.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres", "redis":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.driver %q requiere storage.dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("config: storage.driver %q no soportado", c.Storage.Driver)
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: cache.kind redis requiere cache.redis.addr")
		}
	default:
		return fmt.Errorf("config: cache.kind %q no soportado", c.Cache.Kind)
	}

	if c.Providers.Google.Enabled {
		if strings.TrimSpace(c.Providers.Google.ClientID) == "" {
			return fmt.Errorf("config: providers.google habilitado sin client_id")
		}
		if strings.TrimSpace(c.Providers.Google.ClientSecret) == "" {
			return fmt.Errorf("config: providers.google habilitado sin client_secret")
		}
	}
	// Spotify es cliente público (PKCE): no lleva secret
	if c.Providers.Spotify.Enabled && strings.TrimSpace(c.Providers.Spotify.ClientID) == "" {
		return fmt.Errorf("config: providers.spotify habilitado sin client_id")
	}
	return nil
}
