package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar usados en todo el servicio. Mantener los nombres de clave
// estables: dashboards y alertas filtran por ellos.

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Owner crea un campo para el dueño de la credencial.
func Owner(v string) zap.Field {
	return zap.String("owner", v)
}

// Provider crea un campo para el proveedor OAuth (google, spotify).
func Provider(v string) zap.Field {
	return zap.String("provider", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Variant crea un campo para la variante de query en ejecución.
func Variant(v string) zap.Field {
	return zap.String("variant", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}
