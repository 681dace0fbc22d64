package query

import (
	"context"
	"errors"

	"github.com/dcamposv/pulsehub/internal/provider/google"
)

// GoogleAPI es la superficie de recursos de YouTube que consume la fachada.
type GoogleAPI interface {
	MyChannels(ctx context.Context, accessToken string, managed bool) ([]google.Channel, error)
	ChannelAnalytics(ctx context.Context, accessToken, channelID string) (*google.Analytics, error)
	AccountAnalytics(ctx context.Context, accessToken string) (*google.Analytics, error)
}

// errNoChannels hace caer la variante cuando la lista viene vacía, para que
// el plan pruebe la siguiente forma de resolver el canal.
var errNoChannels = errors.New("el listado no devolvió canales")

// googlePlans arma la consulta de Google: primero resolver el canal (propio,
// luego administrado), después analytics acotado al canal resuelto con caída
// a nivel de cuenta.
func (f *Facade) googlePlans() []plan {
	listChannels := func(managed bool) func(ctx context.Context, r *runner, at string) (any, error) {
		return func(ctx context.Context, _ *runner, at string) (any, error) {
			chs, err := f.google.MyChannels(ctx, at, managed)
			if err != nil {
				return nil, err
			}
			if len(chs) == 0 {
				return nil, errNoChannels
			}
			return chs, nil
		}
	}

	channels := plan{
		operation: "channels",
		variants: []variant{
			{name: "owned", run: listChannels(false), record: recordChannel},
			{name: "managed", run: listChannels(true), record: recordChannel},
		},
		// cuentas sin canal propio ni administrado existen: canal nulo, no
		// error de sección
		absent: errNoChannels,
	}

	analytics := plan{
		operation: "analytics",
		variants: []variant{
			{
				name: "channel",
				skip: func(r *runner) bool { return r.channelID == "" },
				run: func(ctx context.Context, r *runner, at string) (any, error) {
					return f.google.ChannelAnalytics(ctx, at, r.channelID)
				},
			},
			{
				name: "account",
				run: func(ctx context.Context, _ *runner, at string) (any, error) {
					return f.google.AccountAnalytics(ctx, at)
				},
			},
		},
	}
	return []plan{channels, analytics}
}

func recordChannel(r *runner, data any) {
	if chs, ok := data.([]google.Channel); ok && len(chs) > 0 {
		r.channelID = chs[0].ID
	}
}
