// Package cache provee abstracciones para caching con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
package cache

import (
	"context"
	"time"
)

// Cache define las operaciones de cache usadas por el servicio.
type Cache interface {
	// Get obtiene un valor. El segundo retorno indica si la key existe.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set guarda un valor con TTL. Si ttl es 0 usa el default del backend.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Take obtiene y elimina atómicamente. Una segunda llamada con la misma
	// key siempre retorna false.
	Take(ctx context.Context, key string) ([]byte, bool)

	// Delete elimina una key. Borrar una key inexistente no es error.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión al backend.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}
