package vault

import (
	"context"

	"github.com/akarpov/vaultkeeper/internal/directory"
)

// CheckSessionTimeouts runs one enforcement pass over every account. The
// active account is never torn down here; when it has timed out,
// onActiveTimedOut is invoked so the caller can prompt before acting.
// Inactive timed-out accounts are locked or logged out according to their
// effective action. Per-account failures are logged and do not stop the
// pass; cancellation is honored only between accounts, never mid-teardown.
func (s *Service) CheckSessionTimeouts(ctx context.Context, onActiveTimedOut func(accountID string)) error {
	snapshot, err := s.dir.Snapshot(ctx)
	if err != nil {
		return err
	}

	if len(snapshot.Accounts) == 0 || snapshot.ActiveID == "" {
		return nil
	}

	for _, account := range snapshot.Accounts {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !s.hasTimedOut(account) {
			continue
		}

		if account.ID == snapshot.ActiveID {
			if onActiveTimedOut != nil {
				onActiveTimedOut(account.ID)
			}
			continue
		}

		s.enforceTimeout(ctx, account)
	}

	return nil
}

// hasTimedOut applies the account's timeout value against its idle time.
func (s *Service) hasTimedOut(account *directory.Account) bool {
	switch account.Timeout {
	case directory.TimeoutNever, directory.TimeoutOnAppRestart:
		// On-restart timeouts are enforced at process start, not by
		// the periodic pass.
		return false
	case directory.TimeoutImmediately:
		return true
	}

	return s.clock.Now().Sub(account.LastActiveAt) >= account.Timeout.Duration()
}

// enforceTimeout applies the effective action to one inactive timed-out
// account.
func (s *Service) enforceTimeout(ctx context.Context, account *directory.Account) {
	action, err := s.SessionTimeoutAction(ctx, account.ID)
	if err != nil {
		s.logBestEffort("timeout-action", account.ID, err)
		return
	}

	if action == directory.TimeoutActionLock && s.getContext(account.ID) == nil {
		// Already locked; nothing to enforce.
		return
	}

	switch action {
	case directory.TimeoutActionLock:
		err = s.Lock(ctx, account.ID, false)
	case directory.TimeoutActionLogout:
		err = s.Logout(ctx, account.ID, false)
	}

	if err != nil {
		s.logBestEffort("timeout-enforce", account.ID, err)
		return
	}

	s.log.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"action":     string(action),
	}).Info("session timeout enforced")
}

// EnforceRestartTimeouts handles the on-app-restart timeout value at process
// start: every account configured with it is locked or logged out before the
// first unlock can happen.
func (s *Service) EnforceRestartTimeouts(ctx context.Context) error {
	snapshot, err := s.dir.Snapshot(ctx)
	if err != nil {
		return err
	}

	for _, account := range snapshot.Accounts {
		if account.Timeout != directory.TimeoutOnAppRestart {
			continue
		}

		action, err := s.SessionTimeoutAction(ctx, account.ID)
		if err != nil {
			s.logBestEffort("restart-timeout", account.ID, err)
			continue
		}

		if action == directory.TimeoutActionLogout {
			s.logBestEffort("restart-timeout", account.ID, s.Logout(ctx, account.ID, false))
		}
		// Lock needs no work: a fresh process holds no contexts.
	}

	return nil
}
