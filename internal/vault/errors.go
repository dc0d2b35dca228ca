package vault

import "errors"

var (
	// ErrNoAccounts indicates no accounts are registered on the device.
	ErrNoAccounts = errors.New("no accounts registered")

	// ErrNoActiveAccount indicates an operation requiring an active
	// account was called while none is set.
	ErrNoActiveAccount = errors.New("no active account")

	// ErrNotUnlocked indicates an operation that needs the in-memory user
	// key was called while the account is locked.
	ErrNotUnlocked = errors.New("vault is locked")

	// ErrNotKeyConnectorAccount indicates a key-connector unlock was
	// requested for an account without a key-connector URL.
	ErrNotKeyConnectorAccount = errors.New("account is not key-connector managed")
)
