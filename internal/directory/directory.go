package directory

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when no account exists for an id.
var ErrAccountNotFound = errors.New("account not found")

// Directory is the registry of all accounts known to the device, their
// per-account settings, and the single active-account pointer.
type Directory interface {
	// Create registers a new account.
	Create(ctx context.Context, account *Account) error

	// Get retrieves an account by id. Returns ErrAccountNotFound when
	// absent.
	Get(ctx context.Context, id string) (*Account, error)

	// List returns all registered accounts.
	List(ctx context.Context) ([]*Account, error)

	// Update replaces an account's stored state.
	Update(ctx context.Context, account *Account) error

	// Delete removes an account. The caller is responsible for tearing
	// down credential-store secrets first.
	Delete(ctx context.Context, id string) error

	// ActiveID returns the active account id, or "" when none is set.
	ActiveID(ctx context.Context) (string, error)

	// SetActive marks an account active; "" clears the pointer. At most
	// one account is active at a time.
	SetActive(ctx context.Context, id string) error

	// Snapshot returns all accounts and the active pointer in one
	// consistent read.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Touch records account activity at the given time.
	Touch(ctx context.Context, id string, at time.Time) error

	// Close closes the underlying storage.
	Close() error
}
