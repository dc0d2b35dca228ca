package directory

import (
	"time"

	"github.com/akarpov/vaultkeeper/internal/crypto"
)

// TimeoutAction is the configured consequence of an elapsed session timeout.
type TimeoutAction string

const (
	TimeoutActionLock   TimeoutAction = "lock"
	TimeoutActionLogout TimeoutAction = "logout"
)

// Timeout is a session-timeout value in minutes. Non-negative values are
// idle minutes; the negative values are markers.
type Timeout int

const (
	// TimeoutNever disables idle timeout; a never-lock key is persisted
	// while this value is in effect.
	TimeoutNever Timeout = -1

	// TimeoutOnAppRestart times the session out only when the app
	// restarts. The periodic enforcer treats it like TimeoutNever.
	TimeoutOnAppRestart Timeout = -2

	// TimeoutImmediately times the session out as soon as it is checked.
	TimeoutImmediately Timeout = 0
)

// Duration converts a minute-based timeout to a duration. Marker values
// return a negative duration and must be special-cased by callers.
func (t Timeout) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

// DecryptionOptions describes which unlock paths an account supports.
type DecryptionOptions struct {
	// HasMasterPassword is false for accounts managed by a key connector
	// or enrolled purely via trusted device.
	HasMasterPassword bool

	// KeyConnectorURL is set when the master key lives on a key-connector
	// service instead of being password-derived.
	KeyConnectorURL string

	// TrustedDevice is true when the account is eligible for
	// trusted-device unlock.
	TrustedDevice bool
}

// KeyPairRecord is the newer-format account signing key pair: a public key
// plus the private half wrapped with the user key.
type KeyPairRecord struct {
	PublicKey         []byte
	WrappedPrivateKey []byte
}

// KeyBundle is the per-account encrypted key material persisted in the
// directory's own storage, outside the credential store.
type KeyBundle struct {
	// EncryptedPrivateKey is the account private key wrapped with the
	// user key. It must exist before any unlock method can succeed.
	EncryptedPrivateKey []byte

	// EncryptedUserKey is the user key wrapped with the master key. Its
	// absence signals a first-time key-connector enrollment.
	EncryptedUserKey []byte

	// EncryptedPIN is the user's PIN wrapped with the user key, present
	// only while a PIN is configured.
	EncryptedPIN []byte

	// OrgKeys maps organization ids to organization symmetric keys
	// wrapped with the user key.
	OrgKeys map[string][]byte

	// KeyPair is the optional newer-format account key-pair record.
	KeyPair *KeyPairRecord
}

// Account is one registered identity on the device.
type Account struct {
	ID    string
	Email string
	Name  string

	KDF     crypto.KDFConfig
	KDFSalt []byte

	Decryption DecryptionOptions
	Bundle     KeyBundle

	Timeout       Timeout
	TimeoutAction TimeoutAction

	// RequirePasswordOnRestart forces the password (or biometric) path
	// once per process lifetime before PIN unlock becomes available.
	RequirePasswordOnRestart bool

	ManuallyLocked bool
	Authenticated  bool

	AccessToken  string
	RefreshToken string

	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPIN reports whether a PIN is configured for the account.
func (a *Account) HasPIN() bool {
	return len(a.Bundle.EncryptedPIN) > 0
}

// Snapshot is a single consistent read of the directory: all accounts plus
// the active pointer, taken in one transaction so a concurrent account
// switch cannot skew an enforcement pass.
type Snapshot struct {
	Accounts []*Account
	ActiveID string
}

// Active returns the active account within the snapshot, or nil.
func (s *Snapshot) Active() *Account {
	if s.ActiveID == "" {
		return nil
	}
	for _, account := range s.Accounts {
		if account.ID == s.ActiveID {
			return account
		}
	}
	return nil
}
