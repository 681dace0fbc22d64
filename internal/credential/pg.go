package credential

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/dcamposv/pulsehub/migrations/postgres"
)

// PGStore persiste credenciales en Postgres.
// Schema: ver migrations/postgres. Una fila por (owner, provider).
type PGStore struct {
	pool *pgxpool.Pool
}

// PGConfig tuning opcional del pool.
type PGConfig struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

func NewPGStore(ctx context.Context, dsn string, cfg PGConfig) (*PGStore, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

// Pool expone el pool interno (health checks, migraciones).
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

const credColumns = `owner, provider, access_token, refresh_token, expires_at, scopes, email, version, created_at, updated_at`

func scanCredential(row pgx.Row) (*Credential, error) {
	var c Credential
	var provider string
	err := row.Scan(&c.Owner, &provider, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.Scopes, &c.Email, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Provider = Provider(provider)
	return &c, nil
}

func (s *PGStore) Get(ctx context.Context, owner string, provider Provider) (*Credential, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+credColumns+`
FROM provider_credential
WHERE owner=$1 AND provider=$2`, owner, string(provider))
	return scanCredential(row)
}

func (s *PGStore) Put(ctx context.Context, cred *Credential) error {
	// Merge del refresh token en SQL: un refresh_token vacío en el input
	// conserva el almacenado.
	_, err := s.pool.Exec(ctx, `
INSERT INTO provider_credential (owner, provider, access_token, refresh_token, expires_at, scopes, email, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,1,now(),now())
ON CONFLICT (owner, provider) DO UPDATE SET
  access_token  = EXCLUDED.access_token,
  refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN provider_credential.refresh_token ELSE EXCLUDED.refresh_token END,
  expires_at    = EXCLUDED.expires_at,
  scopes        = EXCLUDED.scopes,
  email         = CASE WHEN EXCLUDED.email = '' THEN provider_credential.email ELSE EXCLUDED.email END,
  version       = provider_credential.version + 1,
  updated_at    = now()`,
		cred.Owner, string(cred.Provider), cred.AccessToken, cred.RefreshToken,
		cred.ExpiresAt, cred.Scopes, cred.Email)
	return err
}

func (s *PGStore) Update(ctx context.Context, cred *Credential, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE provider_credential SET
  access_token  = $3,
  refresh_token = CASE WHEN $4 = '' THEN refresh_token ELSE $4 END,
  expires_at    = $5,
  scopes        = $6,
  version       = version + 1,
  updated_at    = now()
WHERE owner=$1 AND provider=$2 AND version=$7`,
		cred.Owner, string(cred.Provider), cred.AccessToken, cred.RefreshToken,
		cred.ExpiresAt, cred.Scopes, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguir fila ausente de versión vieja para el caller.
		var exists bool
		if err := s.pool.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM provider_credential WHERE owner=$1 AND provider=$2)`,
			cred.Owner, string(cred.Provider)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, owner string, provider Provider) error {
	_, err := s.pool.Exec(ctx, `
DELETE FROM provider_credential WHERE owner=$1 AND provider=$2`, owner, string(provider))
	return err
}

// Migrate aplica las migraciones embebidas en orden lexicográfico.
// Idempotente: el DDL usa IF NOT EXISTS.
func (s *PGStore) Migrate(ctx context.Context) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PGStore)(nil)
