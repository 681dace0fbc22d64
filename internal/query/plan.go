package query

import "context"

// plan es una operación de consulta con sus variantes en orden de
// preferencia. Las variantes se intentan estrictamente en secuencia; la
// primera que prospera cierra el plan.
type plan struct {
	operation string
	variants  []variant
	// absent marca el sentinel de "sin datos": si todas las variantes caen
	// con él, la ausencia es un resultado válido y el plan cierra con éxito
	// y datos nulos en vez de error de sección.
	absent error
}

type variant struct {
	name string
	// run ejecuta la variante con el access token vigente; recibe el runner
	// para leer resultados de planes previos.
	run func(ctx context.Context, r *runner, accessToken string) (any, error)
	// skip descarta la variante sin ejecutarla (p.ej. analytics por canal
	// cuando no se resolvió ningún canal).
	skip func(r *runner) bool
	// record deja el resultado disponible para planes posteriores.
	record func(r *runner, data any)
}
