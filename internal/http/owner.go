package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ownerCookie identifica al dueño de las conexiones sin pedirle cuenta:
// un UUID anónimo de larga vida emitido en la primera visita.
const ownerCookie = "phub_owner"

const ownerCookieTTL = 365 * 24 * time.Hour

// ownerID devuelve el owner del request, emitiendo la cookie si no existe.
func ownerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ownerCookie); err == nil && c.Value != "" {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ownerCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ownerCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   isHTTPS(r),
	})
	return id
}
