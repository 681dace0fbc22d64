package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dcamposv/pulsehub/internal/authstate"
	"github.com/dcamposv/pulsehub/internal/cache"
	cachememory "github.com/dcamposv/pulsehub/internal/cache/memory"
	cacheredis "github.com/dcamposv/pulsehub/internal/cache/redis"
	"github.com/dcamposv/pulsehub/internal/config"
	"github.com/dcamposv/pulsehub/internal/credential"
	httpserver "github.com/dcamposv/pulsehub/internal/http"
	"github.com/dcamposv/pulsehub/internal/lifecycle"
	"github.com/dcamposv/pulsehub/internal/metrics"
	"github.com/dcamposv/pulsehub/internal/observability/logger"
	"github.com/dcamposv/pulsehub/internal/provider"
	"github.com/dcamposv/pulsehub/internal/provider/google"
	"github.com/dcamposv/pulsehub/internal/provider/spotify"
	"github.com/dcamposv/pulsehub/internal/query"
)

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH o configs/config.yaml)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
	)
	flag.Parse()

	if err := godotenv.Load(*flagEnvFile); err == nil {
		log.Printf("env cargado desde %s", *flagEnvFile)
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	}
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "pulsehub"})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("main")

	if err := metrics.Register(nil); err != nil {
		lg.Fatal("metrics", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── cache (authstate) ──
	var kv cache.Cache
	switch cfg.Cache.Kind {
	case "redis":
		ttl, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
		kv = cacheredis.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix, ttl)
	default:
		ttl, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
		kv = cachememory.New(cfg.Cache.Redis.Prefix, ttl)
	}
	defer func() { _ = kv.Close() }()

	// ── storage (credenciales) ──
	var creds credential.Store
	switch cfg.Storage.Driver {
	case "postgres":
		var lifetime time.Duration
		if cfg.Storage.Postgres.ConnMaxLifetime != "" {
			lifetime, _ = time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		}
		pg, err := credential.NewPGStore(ctx, cfg.Storage.DSN, credential.PGConfig{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			lg.Fatal("postgres", logger.Err(err))
		}
		if cfg.Flags.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				lg.Fatal("migrate", logger.Err(err))
			}
			lg.Info("migraciones aplicadas")
		}
		creds = pg
	case "redis":
		creds = credential.NewRedisStore(cfg.Storage.DSN, 0, cfg.Cache.Redis.Prefix)
	default:
		creds = credential.NewMemoryStore()
	}
	defer func() { _ = creds.Close() }()

	// ── proveedores ──
	clients := map[credential.Provider]provider.Client{}
	// interfaces sin tipar a propósito: un proveedor deshabilitado debe
	// llegar a la fachada como nil de verdad, no como puntero nulo tipado
	var googleAPI query.GoogleAPI
	var spotifyAPI query.SpotifyAPI
	if cfg.Providers.Google.Enabled {
		gc := google.New(
			cfg.Providers.Google.ClientID,
			cfg.Providers.Google.ClientSecret,
			cfg.Providers.Google.RedirectURL,
			cfg.Providers.Google.Scopes,
		)
		clients[credential.Google] = gc
		googleAPI = gc
	}
	if cfg.Providers.Spotify.Enabled {
		sc := spotify.New(
			cfg.Providers.Spotify.ClientID,
			cfg.Providers.Spotify.RedirectURL,
			cfg.Providers.Spotify.Scopes,
		)
		clients[credential.Spotify] = sc
		spotifyAPI = sc
	}
	if len(clients) == 0 {
		lg.Warn("ningún proveedor habilitado; sólo /healthz y /metrics responderán con contenido útil")
	}

	states := authstate.New(kv, cfg.AuthState.TTL)
	ctrl := lifecycle.New(states, creds, clients)
	facade := query.New(ctrl, googleAPI, spotifyAPI)

	handlers := httpserver.NewHandlers(cfg, ctrl, facade, creds, kv)
	srv := httpserver.NewServer(cfg.Server.Addr, httpserver.NewRouter(cfg, handlers))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		lg.Info("señal recibida, apagando")
	case err := <-errCh:
		lg.Fatal("server", logger.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", logger.Err(err))
	}
}
