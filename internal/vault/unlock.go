package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/akarpov/vaultkeeper/internal/crypto"
	"github.com/akarpov/vaultkeeper/internal/directory"
	"github.com/akarpov/vaultkeeper/internal/engine"
	"github.com/akarpov/vaultkeeper/internal/keystore"
)

// gatherFunc resolves the method-specific key material for one unlock
// attempt. It fails fast with MissingKeyError when required material is
// absent, before the crypto engine is contacted.
type gatherFunc func(ctx context.Context, account *directory.Account) (engine.Method, error)

// UnlockWithPassword unlocks with the master password. On success the
// verification hash is cached for fast password re-validation.
func (s *Service) UnlockWithPassword(ctx context.Context, accountID, password string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		return engine.PasswordMethod{Password: password}, nil
	})
}

// UnlockWithPIN unlocks with the PIN. For accounts that require the password
// after restart, the PIN-protected key is read from the process-lifetime
// cache and the attempt fails with MissingKeyError until a password unlock
// has populated it.
func (s *Service) UnlockWithPIN(ctx context.Context, accountID, pin string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		if !account.HasPIN() {
			return nil, &engine.MissingKeyError{Kind: engine.KeyPINProtectedUserKey}
		}

		if account.RequirePasswordOnRestart {
			s.mu.RLock()
			cached := s.pinCache[account.ID]
			s.mu.RUnlock()
			if len(cached) == 0 {
				return nil, &engine.MissingKeyError{Kind: engine.KeyPINProtectedUserKey}
			}
			return engine.PINMethod{PIN: pin, PINProtectedUserKey: cached}, nil
		}

		stored, err := s.storedSecret(ctx, account.ID, keystore.KindPINProtectedUserKey, engine.KeyPINProtectedUserKey)
		if err != nil {
			return nil, err
		}
		return engine.PINMethod{PIN: pin, PINProtectedUserKey: stored}, nil
	})
}

// UnlockWithBiometrics unlocks with the user key released by a successful
// device-biometric check.
func (s *Service) UnlockWithBiometrics(ctx context.Context, accountID string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		userKey, err := s.storedSecret(ctx, account.ID, keystore.KindBiometricKey, engine.KeyBiometricKey)
		if err != nil {
			return nil, err
		}
		return engine.DecryptedKeyMethod{UserKey: userKey, Source: engine.KeyBiometricKey}, nil
	})
}

// UnlockWithDeviceKey is the trusted-device flow.
func (s *Service) UnlockWithDeviceKey(ctx context.Context, accountID string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		deviceKey, err := s.storedSecret(ctx, account.ID, keystore.KindDeviceKey, engine.KeyDeviceKey)
		if err != nil {
			return nil, err
		}
		devicePrivateKey, err := s.storedSecret(ctx, account.ID, keystore.KindDevicePrivateKey, engine.KeyDevicePrivateKey)
		if err != nil {
			return nil, err
		}
		protectedUserKey, err := s.storedSecret(ctx, account.ID, keystore.KindDeviceProtectedUserKey, engine.KeyDeviceProtectedUserKey)
		if err != nil {
			return nil, err
		}

		return engine.DeviceKeyMethod{
			DeviceKey:                 deviceKey,
			EncryptedDevicePrivateKey: devicePrivateKey,
			DeviceProtectedUserKey:    protectedUserKey,
		}, nil
	})
}

// UnlockWithNeverLockKey unlocks with the persisted never-lock key.
func (s *Service) UnlockWithNeverLockKey(ctx context.Context, accountID string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		userKey, err := s.storedSecret(ctx, account.ID, keystore.KindNeverLockKey, engine.KeyNeverLockKey)
		if err != nil {
			return nil, err
		}
		return engine.DecryptedKeyMethod{UserKey: userKey, Source: engine.KeyNeverLockKey}, nil
	})
}

// UnlockWithKeyConnector fetches the master key from the account's
// key-connector service and unlocks with it. Network failures are surfaced
// to the caller, which may retry; this core does not retry.
func (s *Service) UnlockWithKeyConnector(ctx context.Context, accountID string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		if s.connector == nil || account.Decryption.KeyConnectorURL == "" {
			return nil, ErrNotKeyConnectorAccount
		}

		masterKey, err := s.connector.GetMasterKey(ctx, account.Decryption.KeyConnectorURL, account.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("key connector fetch failed: %w", err)
		}

		return engine.KeyConnectorMethod{MasterKey: masterKey}, nil
	})
}

// UnlockWithAuthenticatorVaultKey unlocks with the user key shared with the
// standalone authenticator.
func (s *Service) UnlockWithAuthenticatorVaultKey(ctx context.Context, accountID string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		userKey, err := s.storedSecret(ctx, account.ID, keystore.KindAuthenticatorVaultKey, engine.KeyAuthenticatorVaultKey)
		if err != nil {
			return nil, err
		}
		return engine.DecryptedKeyMethod{UserKey: userKey, Source: engine.KeyAuthenticatorVaultKey}, nil
	})
}

// UnlockWithDeviceApproval unlocks from a registered approved login request.
// The pending approval is cleared only after a successful unlock.
func (s *Service) UnlockWithDeviceApproval(ctx context.Context, accountID string) error {
	return s.unlock(ctx, accountID, func(ctx context.Context, account *directory.Account) (engine.Method, error) {
		s.mu.RLock()
		approval := s.approvals[account.ID]
		s.mu.RUnlock()
		if approval == nil {
			return nil, &engine.MissingKeyError{Kind: engine.KeyAuthRequestPrivateKey}
		}

		return engine.AuthRequestMethod{
			RequestPrivateKey: approval.RequestPrivateKey,
			MasterKeyWrapped:  approval.MasterKeyWrapped,
			UserKeyWrapped:    approval.UserKeyWrapped,
		}, nil
	})
}

// unlock orchestrates one unlock attempt end to end. Any failure before or
// at the engine call aborts with no state transition; failures in the
// post-success bookkeeping steps are logged and never revert the unlock.
func (s *Service) unlock(ctx context.Context, accountID string, gather gatherFunc) error {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	release := s.lockAccount(id)
	defer release()

	account, err := s.dir.Get(ctx, id)
	if err != nil {
		return err
	}

	method, err := gather(ctx, account)
	if err != nil {
		return err
	}

	ectx, err := s.engine.Initialize(account, method)
	if err != nil {
		s.recordUnlockFailure(id, err)
		return err
	}
	s.resetUnlockFailures(id)

	// An auth-request unlock consumes its pending approval; the password
	// verification hash rides inside the context for re-validation.
	if _, ok := method.(engine.AuthRequestMethod); ok {
		s.mu.Lock()
		delete(s.approvals, id)
		s.mu.Unlock()
	}

	s.logBestEffort("pin-cache", id, s.cachePINKey(account, ectx))
	s.logBestEffort("device-trust", id, s.trustDeviceIfNeeded(ctx, account, ectx))

	// Lock-state transition; everything after this sees the account
	// unlocked.
	s.setContext(id, ectx)

	account.ManuallyLocked = false
	account.LastActiveAt = s.clock.Now()
	s.logBestEffort("manual-lock-flag", id, s.dir.Update(ctx, account))

	// Organization keys are vault-scoped and may only be initialized once
	// the account is marked unlocked.
	s.logBestEffort("org-keys", id, s.engine.DecryptOrgKeys(ectx, account.Bundle.OrgKeys))

	s.log.WithField("account_id", id).Debug("vault unlocked")

	return nil
}

// storedSecret reads a credential-store secret, translating absence into the
// method's MissingKeyError so callers fail fast before the engine runs.
func (s *Service) storedSecret(ctx context.Context, accountID string, kind keystore.Kind, missing engine.KeyKind) ([]byte, error) {
	data, err := s.keys.Get(ctx, accountID, kind)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, &engine.MissingKeyError{Kind: missing}
	}
	if err != nil {
		return nil, err
	}

	return data, nil
}

// cachePINKey re-derives the PIN-protected user key into the in-memory cache
// for accounts that require the password after restart, so PIN unlock works
// for the rest of the process lifetime without hitting the restart fallback.
func (s *Service) cachePINKey(account *directory.Account, ectx *engine.Context) error {
	if !account.HasPIN() || !account.RequirePasswordOnRestart {
		return nil
	}

	pin, err := crypto.Decrypt(account.Bundle.EncryptedPIN, ectx.UserKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt stored pin: %w", err)
	}
	defer crypto.Zero(pin)

	pinKey, err := crypto.DeriveKey(string(pin), account.KDFSalt, account.KDF)
	if err != nil {
		return fmt.Errorf("failed to derive pin key: %w", err)
	}
	defer crypto.Zero(pinKey)

	protected, err := crypto.Encrypt(ectx.UserKey, pinKey)
	if err != nil {
		return fmt.Errorf("failed to wrap user key with pin key: %w", err)
	}

	s.mu.Lock()
	s.pinCache[account.ID] = protected
	s.mu.Unlock()

	return nil
}

// trustDeviceIfNeeded enrolls the device for trusted-device unlock when the
// account is eligible and no device key exists yet. The device key is
// written last so its presence implies a complete enrollment.
func (s *Service) trustDeviceIfNeeded(ctx context.Context, account *directory.Account, ectx *engine.Context) error {
	if !account.Decryption.TrustedDevice {
		return nil
	}

	enrolled, err := s.keys.Has(ctx, account.ID, keystore.KindDeviceKey)
	if err != nil {
		return err
	}
	if enrolled {
		return nil
	}

	deviceKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	defer crypto.Zero(deviceKey)

	devicePriv, devicePub, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer crypto.Zero(devicePriv)

	encPrivateKey, err := crypto.Encrypt(devicePriv, deviceKey)
	if err != nil {
		return err
	}

	protectedUserKey, err := crypto.Seal(devicePub, ectx.UserKey)
	if err != nil {
		return err
	}

	if err := s.keys.Set(ctx, account.ID, keystore.KindDevicePrivateKey, encPrivateKey); err != nil {
		return err
	}
	if err := s.keys.Set(ctx, account.ID, keystore.KindDeviceProtectedUserKey, protectedUserKey); err != nil {
		return err
	}
	if err := s.keys.Set(ctx, account.ID, keystore.KindDeviceKey, deviceKey); err != nil {
		return err
	}

	s.log.WithField("account_id", account.ID).Debug("device enrolled for trusted-device unlock")

	return nil
}

// ValidatePassword checks a candidate password against the verification hash
// cached by the last password unlock, without re-running a full unlock. It
// holds the account's mutex so a concurrent lock cannot destroy the context
// mid-comparison.
func (s *Service) ValidatePassword(ctx context.Context, accountID, password string) (bool, error) {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return false, err
	}

	release := s.lockAccount(id)
	defer release()

	ectx := s.getContext(id)
	if ectx == nil || len(ectx.VerificationHash) == 0 {
		return false, ErrNotUnlocked
	}

	account, err := s.dir.Get(ctx, id)
	if err != nil {
		return false, err
	}

	candidate, err := engine.PasswordVerificationHash(password, account.KDFSalt, account.KDF)
	if err != nil {
		return false, err
	}
	defer crypto.Zero(candidate)

	return crypto.ConstantTimeEqual(candidate, ectx.VerificationHash), nil
}
