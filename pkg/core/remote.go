package core

import "context"

// NoteChange is one entry of a remote delta. Removed marks a permanent
// server-side deletion, which is distinct from moving a note to the trash.
type NoteChange struct {
	Note    Note
	Removed bool
}

// Delta is the remote service's answer to "what changed since revision X".
// Revision is the new high-water mark to hand back on the next fetch.
type Delta struct {
	Changes  []NoteChange
	Labels   []Label
	Revision string

	// FullResync is set when the service declares the client's revision
	// token unusable and demands a fetch from scratch.
	FullResync bool
}

// Remote defines the contract for the note service client. Adhering to
// this interface keeps the engine independent of the actual transport
// (HTTP API, in-memory fake, a second directory).
type Remote interface {
	// FetchDelta returns every change recorded after sinceRevision. An
	// empty revision means "everything".
	FetchDelta(ctx context.Context, sinceRevision string) (Delta, error)

	// Push uploads a changed note the service already knows and returns
	// the revision assigned to the new state.
	Push(ctx context.Context, n Note) (revision string, err error)

	// Create uploads a brand-new note and returns its permanent identity.
	Create(ctx context.Context, n Note) (id, revision string, err error)

	// Trash moves a note to the service-side trash.
	Trash(ctx context.Context, n Note) error

	// CreateBackupCopy stores n as a fresh trashed note without touching
	// the original. The engine uses it to preserve the last synced state
	// before an external edit overwrites it.
	CreateBackupCopy(ctx context.Context, n Note) error
}

// TokenVault stores the service credential between runs.
type TokenVault interface {
	// LoadToken returns the stored credential, or ErrNoToken when none
	// has been saved.
	LoadToken() (string, error)

	// StoreToken persists the credential for later runs.
	StoreToken(token string) error

	// ClearToken removes the stored credential. Clearing an empty vault
	// is not an error.
	ClearToken() error
}
