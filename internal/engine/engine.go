// Package engine materializes per-account decryption contexts from one of
// the supported unlock methods. It owns no storage: callers gather the key
// material and the engine performs derivation and unwrapping only.
package engine

import (
	"github.com/akarpov/vaultkeeper/internal/crypto"
	"github.com/akarpov/vaultkeeper/internal/directory"
)

// Method is the tagged union of unlock methods. Exactly one concrete type
// exists per method; Initialize switches over them exhaustively, so adding a
// method is a compile-time-checked addition.
type Method interface {
	method() string
}

// PasswordMethod unlocks with the master password.
type PasswordMethod struct {
	Password string
}

// PINMethod unlocks with the PIN and the PIN-protected user key the caller
// resolved (from the credential store or the in-memory cache).
type PINMethod struct {
	PIN                 string
	PINProtectedUserKey []byte
}

// DecryptedKeyMethod unlocks with an already-decrypted user key, as released
// by biometrics, the authenticator vault key, or the never-lock key. Source
// names the material the key came from so a missing key is reported as the
// right kind.
type DecryptedKeyMethod struct {
	UserKey []byte
	Source  KeyKind
}

// DeviceKeyMethod is the trusted-device flow.
type DeviceKeyMethod struct {
	DeviceKey                 []byte
	EncryptedDevicePrivateKey []byte
	DeviceProtectedUserKey    []byte
}

// KeyConnectorMethod unlocks with a master key fetched from a key-connector
// service.
type KeyConnectorMethod struct {
	MasterKey []byte
}

// AuthRequestMethod unlocks from an approved login request: the request
// private key plus either a master-key-wrapped or user-key-wrapped key.
type AuthRequestMethod struct {
	RequestPrivateKey []byte
	MasterKeyWrapped  []byte
	UserKeyWrapped    []byte
}

func (PasswordMethod) method() string     { return "password" }
func (PINMethod) method() string          { return "pin" }
func (DecryptedKeyMethod) method() string { return "decryptedKey" }
func (DeviceKeyMethod) method() string    { return "deviceKey" }
func (KeyConnectorMethod) method() string { return "keyConnector" }
func (AuthRequestMethod) method() string  { return "authRequest" }

// Context is the in-memory result of a successful unlock: the live handle
// used to decrypt vault data. It is never persisted or serialized and is
// destroyed on lock, logout, or process exit.
type Context struct {
	UserKey    []byte
	PrivateKey []byte

	// OrgKeys holds decrypted organization keys, populated by
	// DecryptOrgKeys after the lock-state transition completes.
	OrgKeys map[string][]byte

	// VerificationHash is set for password unlocks only; callers cache it
	// for fast password re-validation.
	VerificationHash []byte
}

// Destroy zeroes and releases all key material held by the context.
func (c *Context) Destroy() {
	crypto.Zero(c.UserKey)
	crypto.Zero(c.PrivateKey)
	crypto.Zero(c.VerificationHash)
	for _, key := range c.OrgKeys {
		crypto.Zero(key)
	}
	c.UserKey = nil
	c.PrivateKey = nil
	c.VerificationHash = nil
	c.OrgKeys = nil
}

// Engine is the crypto engine implementation.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Initialize materializes a decryption context for the account using the
// given method. It fails with MissingKeyError when required material is
// absent and DecryptionError when derivation or unwrapping is rejected.
func (e *Engine) Initialize(account *directory.Account, method Method) (*Context, error) {
	if len(account.Bundle.EncryptedPrivateKey) == 0 {
		return nil, &MissingKeyError{Kind: KeyEncryptedPrivateKey}
	}

	var (
		userKey          []byte
		verificationHash []byte
		err              error
	)

	switch m := method.(type) {
	case PasswordMethod:
		userKey, verificationHash, err = e.unlockPassword(account, m)
	case PINMethod:
		userKey, err = e.unlockPIN(account, m)
	case DecryptedKeyMethod:
		if len(m.UserKey) == 0 {
			kind := m.Source
			if kind == "" {
				kind = KeyNeverLockKey
			}
			return nil, &MissingKeyError{Kind: kind}
		}
		userKey = append([]byte(nil), m.UserKey...)
	case DeviceKeyMethod:
		userKey, err = e.unlockDeviceKey(m)
	case KeyConnectorMethod:
		userKey, err = e.unlockKeyConnector(account, m)
	case AuthRequestMethod:
		userKey, err = e.unlockAuthRequest(account, m)
	default:
		err = &DecryptionError{Method: "unknown", Err: crypto.ErrDecryptionFailed}
	}
	if err != nil {
		return nil, err
	}

	privateKey, err := crypto.Decrypt(account.Bundle.EncryptedPrivateKey, userKey)
	if err != nil {
		crypto.Zero(userKey)
		return nil, &DecryptionError{Method: method.method(), Err: err}
	}

	return &Context{
		UserKey:          userKey,
		PrivateKey:       privateKey,
		VerificationHash: verificationHash,
	}, nil
}

// DecryptOrgKeys decrypts user-key-wrapped organization keys into the
// context. Run only after the account's lock-state transition completes.
func (e *Engine) DecryptOrgKeys(ctx *Context, wrapped map[string][]byte) error {
	if len(wrapped) == 0 {
		return nil
	}

	orgKeys := make(map[string][]byte, len(wrapped))
	for orgID, blob := range wrapped {
		key, err := crypto.Decrypt(blob, ctx.UserKey)
		if err != nil {
			for _, k := range orgKeys {
				crypto.Zero(k)
			}
			return &DecryptionError{Method: "orgKeys", Err: err}
		}
		orgKeys[orgID] = key
	}

	ctx.OrgKeys = orgKeys
	return nil
}

func (e *Engine) unlockPassword(account *directory.Account, m PasswordMethod) (userKey, verificationHash []byte, err error) {
	if len(account.Bundle.EncryptedUserKey) == 0 {
		return nil, nil, &MissingKeyError{Kind: KeyEncryptedUserKey}
	}

	masterKey, err := crypto.DeriveKey(m.Password, account.KDFSalt, account.KDF)
	if err != nil {
		return nil, nil, &DecryptionError{Method: "password", Err: err}
	}
	defer crypto.Zero(masterKey)

	userKey, err = crypto.Decrypt(account.Bundle.EncryptedUserKey, masterKey)
	if err != nil {
		return nil, nil, &DecryptionError{Method: "password", Err: err}
	}

	verificationHash, err = crypto.StretchKey(masterKey, account.KDFSalt, hashConfig(account.KDF))
	if err != nil {
		crypto.Zero(userKey)
		return nil, nil, &DecryptionError{Method: "password", Err: err}
	}

	return userKey, verificationHash, nil
}

func (e *Engine) unlockPIN(account *directory.Account, m PINMethod) ([]byte, error) {
	if len(m.PINProtectedUserKey) == 0 {
		return nil, &MissingKeyError{Kind: KeyPINProtectedUserKey}
	}

	pinKey, err := crypto.DeriveKey(m.PIN, account.KDFSalt, account.KDF)
	if err != nil {
		return nil, &DecryptionError{Method: "pin", Err: err}
	}
	defer crypto.Zero(pinKey)

	userKey, err := crypto.Decrypt(m.PINProtectedUserKey, pinKey)
	if err != nil {
		return nil, &DecryptionError{Method: "pin", Err: err}
	}

	return userKey, nil
}

func (e *Engine) unlockDeviceKey(m DeviceKeyMethod) ([]byte, error) {
	switch {
	case len(m.DeviceKey) == 0:
		return nil, &MissingKeyError{Kind: KeyDeviceKey}
	case len(m.EncryptedDevicePrivateKey) == 0:
		return nil, &MissingKeyError{Kind: KeyDevicePrivateKey}
	case len(m.DeviceProtectedUserKey) == 0:
		return nil, &MissingKeyError{Kind: KeyDeviceProtectedUserKey}
	}

	devicePrivateKey, err := crypto.Decrypt(m.EncryptedDevicePrivateKey, m.DeviceKey)
	if err != nil {
		return nil, &DecryptionError{Method: "deviceKey", Err: err}
	}
	defer crypto.Zero(devicePrivateKey)

	userKey, err := crypto.Unseal(devicePrivateKey, m.DeviceProtectedUserKey)
	if err != nil {
		return nil, &DecryptionError{Method: "deviceKey", Err: err}
	}

	return userKey, nil
}

func (e *Engine) unlockKeyConnector(account *directory.Account, m KeyConnectorMethod) ([]byte, error) {
	if len(m.MasterKey) == 0 {
		return nil, &MissingKeyError{Kind: KeyMasterKey}
	}
	if len(account.Bundle.EncryptedUserKey) == 0 {
		// First-time key-connector enrollment has not completed.
		return nil, &MissingKeyError{Kind: KeyEncryptedUserKey}
	}

	userKey, err := crypto.Decrypt(account.Bundle.EncryptedUserKey, m.MasterKey)
	if err != nil {
		return nil, &DecryptionError{Method: "keyConnector", Err: err}
	}

	return userKey, nil
}

func (e *Engine) unlockAuthRequest(account *directory.Account, m AuthRequestMethod) ([]byte, error) {
	if len(m.RequestPrivateKey) == 0 {
		return nil, &MissingKeyError{Kind: KeyAuthRequestPrivateKey}
	}

	switch {
	case len(m.UserKeyWrapped) > 0:
		userKey, err := crypto.Unseal(m.RequestPrivateKey, m.UserKeyWrapped)
		if err != nil {
			return nil, &DecryptionError{Method: "authRequest", Err: err}
		}
		return userKey, nil

	case len(m.MasterKeyWrapped) > 0:
		if len(account.Bundle.EncryptedUserKey) == 0 {
			return nil, &MissingKeyError{Kind: KeyEncryptedUserKey}
		}

		masterKey, err := crypto.Unseal(m.RequestPrivateKey, m.MasterKeyWrapped)
		if err != nil {
			return nil, &DecryptionError{Method: "authRequest", Err: err}
		}
		defer crypto.Zero(masterKey)

		userKey, err := crypto.Decrypt(account.Bundle.EncryptedUserKey, masterKey)
		if err != nil {
			return nil, &DecryptionError{Method: "authRequest", Err: err}
		}
		return userKey, nil

	default:
		return nil, &MissingKeyError{Kind: KeyAuthRequestWrappedKey}
	}
}

// PasswordVerificationHash derives the value compared against a context's
// VerificationHash when re-validating a candidate password.
func PasswordVerificationHash(password string, salt []byte, cfg crypto.KDFConfig) ([]byte, error) {
	masterKey, err := crypto.DeriveKey(password, salt, cfg)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(masterKey)

	return crypto.StretchKey(masterKey, salt, hashConfig(cfg))
}

// hashConfig is the light single-pass configuration used for the password
// verification hash: the master key already carries the work factor.
func hashConfig(cfg crypto.KDFConfig) crypto.KDFConfig {
	cfg.Iterations = 1
	if cfg.Algorithm == crypto.KDFArgon2id && cfg.Memory > 64*1024 {
		cfg.Memory = 64 * 1024
	}
	return cfg
}
