package query

import (
	"context"
	"errors"

	"github.com/dcamposv/pulsehub/internal/provider/spotify"
)

// errNoHistory: el rango pedido no tiene datos todavía; se prueba un rango
// más corto.
var errNoHistory = errors.New("sin historial para el rango pedido")

// SpotifyAPI es la superficie de recursos de Spotify que consume la fachada.
type SpotifyAPI interface {
	Profile(ctx context.Context, accessToken string) (*spotify.Profile, error)
	TopItems(ctx context.Context, accessToken, itemType, timeRange string) ([]spotify.TopItem, error)
}

// spotifyPlans arma la consulta de Spotify: perfil y tops de artistas y
// tracks. Cuentas recientes no tienen historial long_term, de ahí la caída
// a short_term.
func (f *Facade) spotifyPlans() []plan {
	top := func(itemType string) plan {
		byRange := func(timeRange string) func(ctx context.Context, r *runner, at string) (any, error) {
			return func(ctx context.Context, _ *runner, at string) (any, error) {
				items, err := f.spotify.TopItems(ctx, at, itemType, timeRange)
				if err != nil {
					return nil, err
				}
				if len(items) == 0 {
					return nil, errNoHistory
				}
				return items, nil
			}
		}
		return plan{
			operation: "top_" + itemType,
			variants: []variant{
				{name: spotify.RangeLongTerm, run: byRange(spotify.RangeLongTerm)},
				{name: spotify.RangeShortTerm, run: byRange(spotify.RangeShortTerm)},
			},
		}
	}

	profile := plan{
		operation: "profile",
		variants: []variant{
			{
				name: "me",
				run: func(ctx context.Context, _ *runner, at string) (any, error) {
					return f.spotify.Profile(ctx, at)
				},
			},
		},
	}
	return []plan{profile, top("artists"), top("tracks")}
}
