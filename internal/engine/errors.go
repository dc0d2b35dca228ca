package engine

import (
	"errors"
	"fmt"
)

// KeyKind names a piece of key material an unlock method depends on.
type KeyKind string

const (
	KeyEncryptedPrivateKey    KeyKind = "encrypted private key"
	KeyEncryptedUserKey       KeyKind = "encrypted user key"
	KeyPINProtectedUserKey    KeyKind = "pin-protected user key"
	KeyDeviceKey              KeyKind = "device key"
	KeyDevicePrivateKey       KeyKind = "encrypted device private key"
	KeyDeviceProtectedUserKey KeyKind = "device-protected user key"
	KeyBiometricKey           KeyKind = "biometric unlock key"
	KeyNeverLockKey           KeyKind = "never-lock key"
	KeyAuthenticatorVaultKey  KeyKind = "authenticator vault key"
	KeyAuthRequestPrivateKey  KeyKind = "auth request private key"
	KeyAuthRequestWrappedKey  KeyKind = "auth request wrapped key"
	KeyMasterKey              KeyKind = "master key"
)

// MissingKeyError indicates a precondition for the chosen unlock method is
// unmet: the named key material does not exist. It is a local check, not a
// decryption failure, and is never retried. A missing encrypted user key
// specifically signals a still-pending key-connector enrollment.
type MissingKeyError struct {
	Kind KeyKind
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key material: %s", e.Kind)
}

// IsMissingKey reports whether err is a MissingKeyError, optionally returning it.
func IsMissingKey(err error) (*MissingKeyError, bool) {
	var mk *MissingKeyError
	if errors.As(err, &mk) {
		return mk, true
	}
	return nil, false
}

// DecryptionError indicates the supplied secret was rejected: wrong password
// or PIN, or corrupted stored key material. Callers must not treat it as a
// transient failure.
type DecryptionError struct {
	Method string
	Err    error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed (%s): %v", e.Method, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// IsDecryptionError reports whether err is a DecryptionError.
func IsDecryptionError(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de)
}
