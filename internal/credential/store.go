package credential

import "context"

// Store is the persistence contract for credentials. Implementations must be
// safe for concurrent use; the same (owner, provider) pair can be touched by
// overlapping requests.
//
// Both write operations merge an empty incoming RefreshToken with the stored
// one: providers legitimately omit refresh_token on refresh responses and the
// previous token stays valid.
type Store interface {
	// Get returns the credential or ErrNotFound.
	Get(ctx context.Context, owner string, provider Provider) (*Credential, error)

	// Put inserts or replaces unconditionally (last write wins). Used when
	// completing an authorization, where the new grant always supersedes.
	Put(ctx context.Context, cred *Credential) error

	// Update replaces only if the stored Version equals expectedVersion,
	// otherwise ErrVersionConflict (or ErrNotFound if the row vanished).
	// Used on refresh so a losing writer detects the race instead of
	// clobbering a fresher token.
	Update(ctx context.Context, cred *Credential, expectedVersion int64) error

	// Delete removes the credential. Deleting an absent row is a no-op.
	Delete(ctx context.Context, owner string, provider Provider) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// merge applies the refresh-token retention rule onto next, given prev
// (which may be nil) and stamps bookkeeping fields.
func merge(prev, next *Credential) {
	if prev != nil {
		if next.RefreshToken == "" {
			next.RefreshToken = prev.RefreshToken
		}
		if next.Email == "" {
			next.Email = prev.Email
		}
		next.CreatedAt = prev.CreatedAt
		next.Version = prev.Version + 1
	} else {
		next.Version = 1
	}
}
