package credential

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPut_ThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cred := &Credential{
		Owner:        "owner-1",
		Provider:     Spotify,
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		Scopes:       []string{"user-top-read"},
	}
	if err := s.Put(ctx, cred); err != nil {
		t.Fatalf("Put err: %v", err)
	}

	got, err := s.Get(ctx, "owner-1", Spotify)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.AccessToken != "at-1" || got.RefreshToken != "rt-1" {
		t.Fatalf("unexpected credential: %+v", got)
	}
	if got.Version != 1 {
		t.Fatalf("version: got %d want 1", got.Version)
	}
}

func TestPut_MergesOmittedRefreshToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, &Credential{Owner: "o", Provider: Google, AccessToken: "at-1", RefreshToken: "rt-keep"}); err != nil {
		t.Fatalf("Put err: %v", err)
	}
	// Refresh response without refresh_token: previous one must survive.
	if err := s.Put(ctx, &Credential{Owner: "o", Provider: Google, AccessToken: "at-2"}); err != nil {
		t.Fatalf("Put err: %v", err)
	}

	got, err := s.Get(ctx, "o", Google)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.AccessToken != "at-2" {
		t.Fatalf("access token not replaced: %q", got.AccessToken)
	}
	if got.RefreshToken != "rt-keep" {
		t.Fatalf("refresh token lost: %q", got.RefreshToken)
	}
	if got.Version != 2 {
		t.Fatalf("version: got %d want 2", got.Version)
	}
}

func TestUpdate_VersionConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, &Credential{Owner: "o", Provider: Google, AccessToken: "at-1", RefreshToken: "rt"}); err != nil {
		t.Fatalf("Put err: %v", err)
	}
	// Writer A wins.
	if err := s.Update(ctx, &Credential{Owner: "o", Provider: Google, AccessToken: "at-A", RefreshToken: "rt"}, 1); err != nil {
		t.Fatalf("first Update err: %v", err)
	}
	// Writer B read version 1 and loses.
	err := s.Update(ctx, &Credential{Owner: "o", Provider: Google, AccessToken: "at-B", RefreshToken: "rt"}, 1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("got %v, want ErrVersionConflict", err)
	}

	got, _ := s.Get(ctx, "o", Google)
	if got.AccessToken != "at-A" {
		t.Fatalf("loser overwrote winner: %q", got.AccessToken)
	}
}

func TestUpdate_MissingRow(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), &Credential{Owner: "ghost", Provider: Spotify}, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDelete_AbsentRowIsNoop(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Delete(context.Background(), "nobody", Google); err != nil {
		t.Fatalf("Delete on absent row: %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Put(ctx, &Credential{Owner: "o", Provider: Spotify, AccessToken: "at"}); err != nil {
		t.Fatalf("Put err: %v", err)
	}
	a, _ := s.Get(ctx, "o", Spotify)
	a.AccessToken = "mutated"
	b, _ := s.Get(ctx, "o", Spotify)
	if b.AccessToken != "at" {
		t.Fatalf("store leaked internal pointer")
	}
}
