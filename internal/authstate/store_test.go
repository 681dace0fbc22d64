package authstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dcamposv/pulsehub/internal/cache/memory"
)

func newTestStore() *Store {
	return New(memory.New("test:", time.Minute), time.Minute)
}

func TestConsume_SingleUse(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.Begin(ctx, "st-1", "owner-1", "verif-1"); err != nil {
		t.Fatalf("Begin err: %v", err)
	}

	v, err := s.Consume(ctx, "st-1", "owner-1")
	if err != nil {
		t.Fatalf("first Consume err: %v", err)
	}
	if v != "verif-1" {
		t.Fatalf("verifier: got %q", v)
	}

	if _, err := s.Consume(ctx, "st-1", "owner-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Consume: got %v, want ErrInvalidState", err)
	}
}

func TestConsume_UnknownState(t *testing.T) {
	s := newTestStore()
	if _, err := s.Consume(context.Background(), "never-issued", "owner-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestConsume_WrongOwner(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.Begin(ctx, "st-2", "owner-a", "verif-2"); err != nil {
		t.Fatalf("Begin err: %v", err)
	}

	// Same indistinguishable error as unknown/expired states.
	if _, err := s.Consume(ctx, "st-2", "owner-b"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}

	// The mismatched attempt burns the state: fail closed, no second try.
	if _, err := s.Consume(ctx, "st-2", "owner-a"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("state should be consumed after mismatch, got %v", err)
	}
}

func TestConsume_Expired(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.Begin(ctx, "st-old", "owner-1", ""); err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	// Move the store clock past the TTL; the cache entry may still be there.
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := s.Consume(ctx, "st-old", "owner-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestConsume_EmptyVerifierForConfidentialFlow(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.Begin(ctx, "st-conf", "owner-1", ""); err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	v, err := s.Consume(ctx, "st-conf", "owner-1")
	if err != nil {
		t.Fatalf("Consume err: %v", err)
	}
	if v != "" {
		t.Fatalf("expected empty verifier, got %q", v)
	}
}
