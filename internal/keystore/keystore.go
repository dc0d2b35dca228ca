package keystore

import (
	"context"
	"errors"
)

// Kind identifies the class of secret stored for an account. A secret's
// presence under its kind is the sole source of truth for whether the
// corresponding unlock method is available; no separate flag exists.
type Kind string

const (
	// KindBiometricKey holds the user key released by a successful
	// device-biometric check.
	KindBiometricKey Kind = "biometric_key"

	// KindNeverLockKey holds the user key persisted when the session
	// timeout policy is "never".
	KindNeverLockKey Kind = "never_lock_key"

	// KindDeviceKey holds the symmetric device key for trusted-device
	// unlock.
	KindDeviceKey Kind = "device_key"

	// KindDevicePrivateKey holds the device private key encrypted with
	// the device key.
	KindDevicePrivateKey Kind = "device_private_key"

	// KindDeviceProtectedUserKey holds the user key sealed to the device
	// public key.
	KindDeviceProtectedUserKey Kind = "device_protected_user_key"

	// KindAuthenticatorVaultKey holds the user key shared with the
	// standalone authenticator.
	KindAuthenticatorVaultKey Kind = "authenticator_vault_key"

	// KindPINProtectedUserKey holds the user key wrapped by the
	// PIN-derived key, persisted only when the account does not require
	// the master password after restart.
	KindPINProtectedUserKey Kind = "pin_protected_user_key"
)

// ErrNotFound is returned when no secret exists for an (account, kind) pair.
var ErrNotFound = errors.New("secret not found")

// Store is the secure credential store consumed by the unlock core. Secrets
// are opaque blobs namespaced by account id and kind.
type Store interface {
	// Get retrieves the secret for an account and kind. Returns
	// ErrNotFound when absent.
	Get(ctx context.Context, accountID string, kind Kind) ([]byte, error)

	// Set writes or replaces the secret for an account and kind.
	Set(ctx context.Context, accountID string, kind Kind, data []byte) error

	// Delete removes the secret for an account and kind. Deleting an
	// absent secret is not an error.
	Delete(ctx context.Context, accountID string, kind Kind) error

	// DeleteAll removes every secret stored for an account.
	DeleteAll(ctx context.Context, accountID string) error

	// Has reports whether a secret exists for an account and kind.
	Has(ctx context.Context, accountID string, kind Kind) (bool, error)

	// Close closes the underlying store.
	Close() error
}
