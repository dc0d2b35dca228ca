// Package commands wires the CLI surface on top of the vault service.
package commands

import (
	"context"
	"fmt"

	"github.com/akarpov/vaultkeeper/internal/config"
	"github.com/akarpov/vaultkeeper/internal/directory"
	"github.com/akarpov/vaultkeeper/internal/engine"
	"github.com/akarpov/vaultkeeper/internal/keystore"
	"github.com/akarpov/vaultkeeper/internal/output"
	"github.com/akarpov/vaultkeeper/internal/vault"
)

// Session bundles the vault service with its backing stores for one command
// invocation.
type Session struct {
	Service *vault.Service
	Dir     directory.Directory
	Keys    keystore.Store
}

// Close releases both backing stores.
func (s *Session) Close() {
	if s.Keys != nil {
		s.Keys.Close()
	}
	if s.Dir != nil {
		s.Dir.Close()
	}
}

// SessionFactory opens the stores and builds a vault service.
type SessionFactory func() (*Session, error)

// resolveAccount matches an account reference against ids and emails. An
// empty reference resolves to the active account.
func resolveAccount(ctx context.Context, dir directory.Directory, ref string) (*directory.Account, error) {
	if ref == "" {
		activeID, err := dir.ActiveID(ctx)
		if err != nil {
			return nil, err
		}
		if activeID == "" {
			return nil, vault.ErrNoActiveAccount
		}
		return dir.Get(ctx, activeID)
	}

	if account, err := dir.Get(ctx, ref); err == nil {
		return account, nil
	}

	accounts, err := dir.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if account.Email == ref {
			return account, nil
		}
	}

	return nil, fmt.Errorf("no account matches %q", ref)
}

// accountView projects an account for output.
func accountView(ctx context.Context, sess *Session, account *directory.Account, activeID string) output.AccountView {
	locked, err := sess.Service.IsLocked(ctx, account.ID)
	if err != nil {
		locked = true
	}

	return output.AccountView{
		ID:            account.ID,
		Email:         account.Email,
		Name:          account.Name,
		Active:        account.ID == activeID,
		Locked:        locked,
		Timeout:       timeoutLabel(account.Timeout),
		TimeoutAction: string(account.TimeoutAction),
		HasPIN:        account.HasPIN(),
		LastActiveAt:  account.LastActiveAt,
	}
}

func timeoutLabel(t directory.Timeout) string {
	switch t {
	case directory.TimeoutNever:
		return "never"
	case directory.TimeoutOnAppRestart:
		return "on-restart"
	case directory.TimeoutImmediately:
		return "immediately"
	default:
		return fmt.Sprintf("%dm", int(t))
	}
}

// friendlyUnlockError rewrites the typed unlock failures into actionable
// messages.
func friendlyUnlockError(err error) error {
	if err == nil {
		return nil
	}

	if missing, ok := engine.IsMissingKey(err); ok {
		switch missing.Kind {
		case engine.KeyPINProtectedUserKey:
			return fmt.Errorf("pin unlock unavailable, unlock with your master password first: %w", err)
		case engine.KeyEncryptedUserKey:
			return fmt.Errorf("account enrollment has not finished on this device: %w", err)
		case engine.KeyBiometricKey:
			return fmt.Errorf("biometric unlock is not set up on this device: %w", err)
		case engine.KeyDeviceKey, engine.KeyDevicePrivateKey, engine.KeyDeviceProtectedUserKey:
			return fmt.Errorf("this device is not trusted for the account: %w", err)
		}
		return err
	}

	if engine.IsDecryptionError(err) {
		return fmt.Errorf("unlock failed, check your credentials: %w", err)
	}

	return err
}

func formatterFor(cfg *config.Config) output.Formatter {
	formatter, err := output.NewFormatter(cfg.Format)
	if err != nil {
		return output.NewTextFormatter()
	}
	return formatter
}
