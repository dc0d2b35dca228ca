package vault

import (
	"context"

	"github.com/akarpov/vaultkeeper/internal/crypto"
	"github.com/akarpov/vaultkeeper/internal/directory"
	"github.com/akarpov/vaultkeeper/internal/engine"
	"github.com/akarpov/vaultkeeper/internal/keystore"
)

// Lock destroys the account's in-memory decryption context. Idempotent on
// already-locked accounts. The PIN cache survives a lock so a PIN unlock
// remains possible afterwards.
func (s *Service) Lock(ctx context.Context, accountID string, manual bool) error {
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

	s.dropContext(id)

	if manual && !account.ManuallyLocked {
		account.ManuallyLocked = true
		if err := s.dir.Update(ctx, account); err != nil {
			return err
		}
	}

	s.log.WithField("account_id", id).Debug("vault locked")

	return nil
}

// Logout removes all traces of the account from the device. Teardown runs
// in-memory state first, then credential-store secrets, then the directory
// record, so an interrupted logout never leaves orphaned secrets behind a
// missing account.
func (s *Service) Logout(ctx context.Context, accountID string, userInitiated bool) error {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	release := s.lockAccount(id)
	defer release()

	s.dropContext(id)

	s.mu.Lock()
	if cached, ok := s.pinCache[id]; ok {
		crypto.Zero(cached)
		delete(s.pinCache, id)
	}
	delete(s.approvals, id)
	delete(s.failedUnlocks, id)
	s.mu.Unlock()

	if err := s.keys.DeleteAll(ctx, id); err != nil {
		return err
	}

	if err := s.dir.Delete(ctx, id); err != nil && !accountNotFound(err) {
		return err
	}

	s.log.WithFields(map[string]interface{}{
		"account_id":     id,
		"user_initiated": userInitiated,
	}).Info("account logged out")

	return nil
}

// SetTimeoutPolicy updates the account's session-timeout value and action.
// Switching to TimeoutNever requires the vault to be unlocked so a fresh
// never-lock key can be persisted; switching away removes that key.
func (s *Service) SetTimeoutPolicy(ctx context.Context, accountID string, timeout directory.Timeout, action directory.TimeoutAction) error {
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

	if timeout == directory.TimeoutNever {
		ectx := s.getContext(id)
		if ectx == nil {
			return ErrNotUnlocked
		}
		// Always a fresh copy of the current user key, never a
		// carried-over value from an earlier never-lock period.
		userKey := make([]byte, len(ectx.UserKey))
		copy(userKey, ectx.UserKey)
		if err := s.keys.Set(ctx, id, keystore.KindNeverLockKey, userKey); err != nil {
			return err
		}
	} else if err := s.keys.Delete(ctx, id, keystore.KindNeverLockKey); err != nil {
		return err
	}

	account.Timeout = timeout
	account.TimeoutAction = action

	return s.dir.Update(ctx, account)
}

// SetPIN configures PIN unlock for an unlocked account. With
// requirePasswordOnRestart the PIN-protected user key lives only in the
// process-lifetime cache; otherwise it is persisted in the credential store.
func (s *Service) SetPIN(ctx context.Context, accountID, pin string, requirePasswordOnRestart bool) error {
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

	return s.setPIN(ctx, account, pin, requirePasswordOnRestart)
}

// ChangePIN replaces the PIN, re-deriving both the PIN-protected user key
// and the stored encrypted PIN in one pass so the two halves never disagree.
func (s *Service) ChangePIN(ctx context.Context, accountID, newPIN string) error {
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

	if !account.HasPIN() {
		return &engine.MissingKeyError{Kind: engine.KeyPINProtectedUserKey}
	}

	return s.setPIN(ctx, account, newPIN, account.RequirePasswordOnRestart)
}

func (s *Service) setPIN(ctx context.Context, account *directory.Account, pin string, requirePasswordOnRestart bool) error {
	ectx := s.getContext(account.ID)
	if ectx == nil {
		return ErrNotUnlocked
	}

	pinKey, err := crypto.DeriveKey(pin, account.KDFSalt, account.KDF)
	if err != nil {
		return err
	}
	defer crypto.Zero(pinKey)

	protectedUserKey, err := crypto.Encrypt(ectx.UserKey, pinKey)
	if err != nil {
		return err
	}

	encryptedPIN, err := crypto.Encrypt([]byte(pin), ectx.UserKey)
	if err != nil {
		return err
	}

	if requirePasswordOnRestart {
		if err := s.keys.Delete(ctx, account.ID, keystore.KindPINProtectedUserKey); err != nil {
			return err
		}
		s.mu.Lock()
		s.pinCache[account.ID] = protectedUserKey
		s.mu.Unlock()
	} else {
		if err := s.keys.Set(ctx, account.ID, keystore.KindPINProtectedUserKey, protectedUserKey); err != nil {
			return err
		}
		s.mu.Lock()
		if cached, ok := s.pinCache[account.ID]; ok {
			crypto.Zero(cached)
			delete(s.pinCache, account.ID)
		}
		s.mu.Unlock()
	}

	account.Bundle.EncryptedPIN = encryptedPIN
	account.RequirePasswordOnRestart = requirePasswordOnRestart

	return s.dir.Update(ctx, account)
}

// ClearPIN removes PIN unlock for the account: the persisted key, the cached
// key, and the stored encrypted PIN.
func (s *Service) ClearPIN(ctx context.Context, accountID string) error {
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

	return s.clearPIN(ctx, account)
}

func (s *Service) clearPIN(ctx context.Context, account *directory.Account) error {
	if err := s.keys.Delete(ctx, account.ID, keystore.KindPINProtectedUserKey); err != nil {
		return err
	}

	s.mu.Lock()
	if cached, ok := s.pinCache[account.ID]; ok {
		crypto.Zero(cached)
		delete(s.pinCache, account.ID)
	}
	s.mu.Unlock()

	if !account.HasPIN() && !account.RequirePasswordOnRestart {
		return nil
	}

	account.Bundle.EncryptedPIN = nil
	account.RequirePasswordOnRestart = false

	return s.dir.Update(ctx, account)
}

// ApplyPINPolicy purges PIN material for accounts whose organization policy
// now disallows PIN unlock. Accounts already removed from the directory are
// skipped.
func (s *Service) ApplyPINPolicy(ctx context.Context, accountIDs []string) error {
	for _, id := range accountIDs {
		release := s.lockAccount(id)

		account, err := s.dir.Get(ctx, id)
		if err != nil {
			release()
			if accountNotFound(err) {
				continue
			}
			return err
		}

		err = s.clearPIN(ctx, account)
		release()
		if err != nil {
			return err
		}

		s.log.WithField("account_id", id).Info("pin unlock removed by policy")
	}

	return nil
}

// SetBiometrics enables or disables biometric unlock. Enabling requires the
// vault to be unlocked; the stored key's presence is the only enablement
// flag.
func (s *Service) SetBiometrics(ctx context.Context, accountID string, enabled bool) error {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	release := s.lockAccount(id)
	defer release()

	if _, err := s.dir.Get(ctx, id); err != nil {
		return err
	}

	if !enabled {
		return s.keys.Delete(ctx, id, keystore.KindBiometricKey)
	}

	ectx := s.getContext(id)
	if ectx == nil {
		return ErrNotUnlocked
	}

	userKey := make([]byte, len(ectx.UserKey))
	copy(userKey, ectx.UserKey)

	return s.keys.Set(ctx, id, keystore.KindBiometricKey, userKey)
}

// CanBeLocked reports whether any unlock path besides full re-authentication
// exists for the account: a master password, an available PIN key, or a
// biometric key.
func (s *Service) CanBeLocked(ctx context.Context, accountID string) (bool, error) {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return false, err
	}

	account, err := s.dir.Get(ctx, id)
	if err != nil {
		return false, err
	}

	if account.Decryption.HasMasterPassword {
		return true, nil
	}

	if account.HasPIN() {
		if account.RequirePasswordOnRestart {
			s.mu.RLock()
			cached := len(s.pinCache[id]) > 0
			s.mu.RUnlock()
			if cached {
				return true, nil
			}
		} else {
			has, err := s.keys.Has(ctx, id, keystore.KindPINProtectedUserKey)
			if err != nil {
				return false, err
			}
			if has {
				return true, nil
			}
		}
	}

	return s.keys.Has(ctx, id, keystore.KindBiometricKey)
}

// SessionTimeoutAction returns the effective timeout action: the configured
// one, coerced to logout when the account cannot be merely locked.
func (s *Service) SessionTimeoutAction(ctx context.Context, accountID string) (directory.TimeoutAction, error) {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}

	account, err := s.dir.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if account.TimeoutAction == directory.TimeoutActionLogout {
		return directory.TimeoutActionLogout, nil
	}

	lockable, err := s.CanBeLocked(ctx, id)
	if err != nil {
		return "", err
	}
	if !lockable {
		return directory.TimeoutActionLogout, nil
	}

	return directory.TimeoutActionLock, nil
}
