package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dcamposv/pulsehub/internal/authstate"
	"github.com/dcamposv/pulsehub/internal/cache/memory"
	"github.com/dcamposv/pulsehub/internal/credential"
	"github.com/dcamposv/pulsehub/internal/provider"
)

type stubClient struct {
	name string
	pkce bool

	exchangeFn func(ctx context.Context, code, verifier string) (*provider.Token, *provider.Identity, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*provider.Token, error)

	refreshCalls atomic.Int32
	revokeCalls  atomic.Int32
	revokeErr    error
}

func (s *stubClient) Name() string     { return s.name }
func (s *stubClient) UsesPKCE() bool   { return s.pkce }
func (s *stubClient) Scopes() []string { return []string{"scope-a"} }

func (s *stubClient) AuthorizeURL(_ context.Context, req provider.AuthorizeRequest) (string, error) {
	return "https://provider.example/authorize?state=" + req.State + "&code_challenge=" + req.CodeChallenge, nil
}

func (s *stubClient) Exchange(ctx context.Context, code, verifier string) (*provider.Token, *provider.Identity, error) {
	if s.exchangeFn != nil {
		return s.exchangeFn(ctx, code, verifier)
	}
	return &provider.Token{AccessToken: "at", ExpiresIn: 3600}, nil, nil
}

func (s *stubClient) Refresh(ctx context.Context, refreshToken string) (*provider.Token, error) {
	s.refreshCalls.Add(1)
	if s.refreshFn != nil {
		return s.refreshFn(ctx, refreshToken)
	}
	return &provider.Token{AccessToken: "at-new", ExpiresIn: 3600}, nil
}

func (s *stubClient) Revoke(_ context.Context, _ string) error {
	s.revokeCalls.Add(1)
	return s.revokeErr
}

func newController(t *testing.T, stub *stubClient) (*Controller, credential.Store) {
	t.Helper()
	creds := credential.NewMemoryStore()
	states := authstate.New(memory.New("t", time.Minute), time.Minute)
	ctrl := New(states, creds, map[credential.Provider]provider.Client{
		credential.Spotify: stub,
	})
	return ctrl, creds
}

func seed(t *testing.T, creds credential.Store, expiresAt time.Time) *credential.Credential {
	t.Helper()
	cred := &credential.Credential{
		Owner:        "owner-1",
		Provider:     credential.Spotify,
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		ExpiresAt:    expiresAt,
	}
	if err := creds.Put(context.Background(), cred); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return cred
}

func TestStartAuthorizationStoresVerifierForPKCE(t *testing.T) {
	stub := &stubClient{name: "spotify", pkce: true}
	ctrl, _ := newController(t, stub)

	u, err := ctrl.StartAuthorization(context.Background(), "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("StartAuthorization: %v", err)
	}
	if !strings.Contains(u, "code_challenge=") || strings.HasSuffix(u, "code_challenge=") {
		t.Fatalf("URL sin challenge: %q", u)
	}
}

func TestCompleteAuthorizationRejectsBadStateBeforeExchange(t *testing.T) {
	exchanged := false
	stub := &stubClient{name: "spotify", exchangeFn: func(context.Context, string, string) (*provider.Token, *provider.Identity, error) {
		exchanged = true
		return nil, nil, nil
	}}
	ctrl, _ := newController(t, stub)

	_, err := ctrl.CompleteAuthorization(context.Background(), "owner-1", credential.Spotify, "state-desconocido", "code")
	if !errors.Is(err, authstate.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if exchanged {
		t.Fatalf("exchange no debe ejecutarse con state inválido")
	}
}

func TestCompleteAuthorizationStateIsSingleUse(t *testing.T) {
	stub := &stubClient{name: "spotify", pkce: true}
	ctrl, _ := newController(t, stub)
	ctx := context.Background()

	u, err := ctrl.StartAuthorization(ctx, "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state := u[strings.Index(u, "state=")+len("state="):]
	state = strings.SplitN(state, "&", 2)[0]

	if _, err := ctrl.CompleteAuthorization(ctx, "owner-1", credential.Spotify, state, "code"); err != nil {
		t.Fatalf("primer callback: %v", err)
	}
	if _, err := ctrl.CompleteAuthorization(ctx, "owner-1", credential.Spotify, state, "code"); !errors.Is(err, authstate.ErrInvalidState) {
		t.Fatalf("replay debe fallar con ErrInvalidState, got %v", err)
	}
}

func TestCompleteAuthorizationRejectsForeignOwner(t *testing.T) {
	exchanged := false
	stub := &stubClient{name: "spotify", pkce: true, exchangeFn: func(context.Context, string, string) (*provider.Token, *provider.Identity, error) {
		exchanged = true
		return &provider.Token{AccessToken: "at", ExpiresIn: 3600}, nil, nil
	}}
	ctrl, creds := newController(t, stub)
	ctx := context.Background()

	u, err := ctrl.StartAuthorization(ctx, "owner-a", credential.Spotify)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state := u[strings.Index(u, "state=")+len("state="):]
	state = strings.SplitN(state, "&", 2)[0]

	// un state iniciado por una sesión no se completa desde otra
	_, err = ctrl.CompleteAuthorization(ctx, "owner-b", credential.Spotify, state, "code")
	if !errors.Is(err, authstate.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if exchanged {
		t.Fatalf("exchange no debe ejecutarse para un owner ajeno")
	}
	if _, err := creds.Get(ctx, "owner-b", credential.Spotify); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("no debe persistirse credencial para el otro owner: %v", err)
	}
}

func TestCompleteAuthorizationExpiryFromExpiresIn(t *testing.T) {
	stub := &stubClient{name: "spotify", pkce: true, exchangeFn: func(context.Context, string, string) (*provider.Token, *provider.Identity, error) {
		return &provider.Token{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}, nil, nil
	}}
	ctrl, _ := newController(t, stub)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl.now = func() time.Time { return fixed }
	ctx := context.Background()

	u, err := ctrl.StartAuthorization(ctx, "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state := u[strings.Index(u, "state=")+len("state="):]
	state = strings.SplitN(state, "&", 2)[0]

	cred, err := ctrl.CompleteAuthorization(ctx, "owner-1", credential.Spotify, state, "code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	want := fixed.Add(3600 * time.Second)
	if d := cred.ExpiresAt.Sub(want); d < -time.Second || d > time.Second {
		t.Fatalf("ExpiresAt = %v, want %v (±1s)", cred.ExpiresAt, want)
	}
}

func TestGetValidAccessTokenFreshSkipsProvider(t *testing.T) {
	stub := &stubClient{name: "spotify"}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(time.Hour))

	at, err := ctrl.GetValidAccessToken(context.Background(), "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if at != "at-old" {
		t.Fatalf("token = %q, want stored one", at)
	}
	if n := stub.refreshCalls.Load(); n != 0 {
		t.Fatalf("refresh llamado %d veces con token fresco", n)
	}
}

func TestGetValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	stub := &stubClient{name: "spotify"}
	ctrl, creds := newController(t, stub)
	// dentro de la ventana de leeway: aún no expirado pero ya no usable
	seed(t, creds, time.Now().Add(30*time.Second))

	at, err := ctrl.GetValidAccessToken(context.Background(), "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if at != "at-new" {
		t.Fatalf("token = %q, want refreshed", at)
	}
	if n := stub.refreshCalls.Load(); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
}

func TestConcurrentRefreshCollapsesToOneCall(t *testing.T) {
	release := make(chan struct{})
	stub := &stubClient{name: "spotify", refreshFn: func(context.Context, string) (*provider.Token, error) {
		<-release
		return &provider.Token{AccessToken: "at-new", ExpiresIn: 3600}, nil
	}}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(-time.Minute))

	const n = 16
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = ctrl.GetValidAccessToken(context.Background(), "owner-1", credential.Spotify)
		}(i)
	}
	time.Sleep(50 * time.Millisecond) // deja que todos entren al singleflight
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if tokens[i] != "at-new" {
			t.Fatalf("goroutine %d token = %q", i, tokens[i])
		}
	}
	if calls := stub.refreshCalls.Load(); calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", calls)
	}
}

func TestRefreshPreservesOmittedRefreshToken(t *testing.T) {
	stub := &stubClient{name: "spotify", refreshFn: func(context.Context, string) (*provider.Token, error) {
		// el proveedor omite refresh_token en la respuesta
		return &provider.Token{AccessToken: "at-new", ExpiresIn: 3600}, nil
	}}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(-time.Minute))

	if _, err := ctrl.GetValidAccessToken(context.Background(), "owner-1", credential.Spotify); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	cred, err := creds.Get(context.Background(), "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred.RefreshToken != "rt-1" {
		t.Fatalf("refresh token = %q, want preserved rt-1", cred.RefreshToken)
	}
	if cred.AccessToken != "at-new" {
		t.Fatalf("access token no actualizado")
	}
}

func TestInvalidGrantDeletesCredential(t *testing.T) {
	stub := &stubClient{name: "spotify", refreshFn: func(context.Context, string) (*provider.Token, error) {
		return nil, &provider.Error{Provider: "spotify", Op: "refresh", StatusCode: http.StatusBadRequest, Code: "invalid_grant"}
	}}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(-time.Minute))

	_, err := ctrl.GetValidAccessToken(context.Background(), "owner-1", credential.Spotify)
	if !errors.Is(err, ErrReauthorizationRequired) {
		t.Fatalf("expected ErrReauthorizationRequired, got %v", err)
	}
	if _, err := creds.Get(context.Background(), "owner-1", credential.Spotify); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("credencial debería haberse eliminado, got %v", err)
	}
	// sin credencial, la siguiente petición también exige reautorizar
	if _, err := ctrl.GetValidAccessToken(context.Background(), "owner-1", credential.Spotify); !errors.Is(err, ErrReauthorizationRequired) {
		t.Fatalf("segunda petición: %v", err)
	}
}

func TestRefreshPersistsDespiteCallerCancellation(t *testing.T) {
	stub := &stubClient{name: "spotify", refreshFn: func(ctx context.Context, _ string) (*provider.Token, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &provider.Token{AccessToken: "at-detached", ExpiresIn: 3600}, nil
	}}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // el caller ya se fue antes de empezar

	if _, err := ctrl.GetValidAccessToken(ctx, "owner-1", credential.Spotify); err != nil {
		t.Fatalf("refresh con caller cancelado: %v", err)
	}
	cred, err := creds.Get(context.Background(), "owner-1", credential.Spotify)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred.AccessToken != "at-detached" {
		t.Fatalf("resultado del refresh no persistido: %q", cred.AccessToken)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	stub := &stubClient{name: "spotify"}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(time.Hour))
	ctx := context.Background()

	if err := ctrl.Disconnect(ctx, "owner-1", credential.Spotify); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := creds.Get(ctx, "owner-1", credential.Spotify); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("credencial no eliminada: %v", err)
	}
	if err := ctrl.Disconnect(ctx, "owner-1", credential.Spotify); err != nil {
		t.Fatalf("segundo Disconnect debe ser no-op, got %v", err)
	}
}

func TestDisconnectDeletesEvenIfRevokeFails(t *testing.T) {
	stub := &stubClient{name: "spotify", revokeErr: errors.New("revocation endpoint down")}
	ctrl, creds := newController(t, stub)
	seed(t, creds, time.Now().Add(time.Hour))

	if err := ctrl.Disconnect(context.Background(), "owner-1", credential.Spotify); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := creds.Get(context.Background(), "owner-1", credential.Spotify); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("credencial debería eliminarse pese al fallo de revocación")
	}
	if stub.revokeCalls.Load() != 1 {
		t.Fatalf("revoke no fue invocado")
	}
}
