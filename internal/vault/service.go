// Package vault is the unlock and session-lifecycle core: it resolves unlock
// methods into live decryption contexts, enforces per-account session-timeout
// policy, and owns the lifecycle of the derived keys (never-lock key, PIN key
// pair, biometric key).
package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akarpov/vaultkeeper/internal/directory"
	"github.com/akarpov/vaultkeeper/internal/engine"
	"github.com/akarpov/vaultkeeper/internal/keystore"
)

// CryptoEngine is the narrow contract this core consumes from the crypto
// engine.
type CryptoEngine interface {
	Initialize(account *directory.Account, method engine.Method) (*engine.Context, error)
	DecryptOrgKeys(ctx *engine.Context, wrapped map[string][]byte) error
}

// KeyConnector fetches and stores master keys for key-connector-managed
// accounts.
type KeyConnector interface {
	GetMasterKey(ctx context.Context, baseURL, accessToken string) ([]byte, error)
	SetMasterKey(ctx context.Context, baseURL, accessToken string, masterKey []byte) error
}

// Clock abstracts time for the timeout enforcer.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DeviceApproval is an approved login request delivered by another device or
// an administrator: the request private key plus one wrapped key.
type DeviceApproval struct {
	RequestID         string
	RequestPrivateKey []byte
	MasterKeyWrapped  []byte
	UserKeyWrapped    []byte
}

// Service implements the unlock, lock, logout, and timeout contract over an
// account directory, a credential store, and a crypto engine.
type Service struct {
	dir       directory.Directory
	keys      keystore.Store
	engine    CryptoEngine
	connector KeyConnector
	clock     Clock
	log       *logrus.Entry

	// mu guards the maps below. Mutations to a single account's state are
	// additionally serialized through accountMu so an unlock and a
	// concurrent lock/logout for the same account cannot interleave.
	mu        sync.RWMutex
	accountMu map[string]*sync.Mutex

	// contexts holds the live decryption context per unlocked account.
	// An entry's presence is the locked/unlocked state.
	contexts map[string]*engine.Context

	// pinCache holds PIN-protected user keys for accounts that require
	// the password after restart. Process-lifetime only, never persisted.
	pinCache map[string][]byte

	// approvals holds pending login-request approvals awaiting an
	// authRequest unlock.
	approvals map[string]*DeviceApproval

	// failedUnlocks counts consecutive decryption failures per account,
	// for the caller's forced-logout threshold policy.
	failedUnlocks map[string]int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the enforcer's clock.
func WithClock(clock Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithKeyConnector sets the key-connector client.
func WithKeyConnector(connector KeyConnector) Option {
	return func(s *Service) { s.connector = connector }
}

func New(dir directory.Directory, keys keystore.Store, eng CryptoEngine, opts ...Option) *Service {
	s := &Service{
		dir:           dir,
		keys:          keys,
		engine:        eng,
		clock:         realClock{},
		log:           logrus.WithField("component", "vault"),
		accountMu:     make(map[string]*sync.Mutex),
		contexts:      make(map[string]*engine.Context),
		pinCache:      make(map[string][]byte),
		approvals:     make(map[string]*DeviceApproval),
		failedUnlocks: make(map[string]int),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// lockAccount serializes operations for one account and returns the unlock
// function. Different accounts proceed in parallel.
func (s *Service) lockAccount(id string) func() {
	s.mu.Lock()
	m, ok := s.accountMu[id]
	if !ok {
		m = &sync.Mutex{}
		s.accountMu[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// resolveAccountID resolves an explicit id or falls back to the active
// account.
func (s *Service) resolveAccountID(ctx context.Context, accountID string) (string, error) {
	if accountID != "" {
		return accountID, nil
	}

	activeID, err := s.dir.ActiveID(ctx)
	if err != nil {
		return "", err
	}
	if activeID == "" {
		accounts, lerr := s.dir.List(ctx)
		if lerr == nil && len(accounts) == 0 {
			return "", ErrNoAccounts
		}
		return "", ErrNoActiveAccount
	}

	return activeID, nil
}

func (s *Service) getContext(id string) *engine.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contexts[id]
}

func (s *Service) setContext(id string, ectx *engine.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.contexts[id]; ok {
		old.Destroy()
	}
	s.contexts[id] = ectx
}

func (s *Service) dropContext(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.contexts[id]; ok {
		old.Destroy()
		delete(s.contexts, id)
	}
}

// IsLocked reports whether the account has no live decryption context.
// Returns directory.ErrAccountNotFound for unknown accounts.
func (s *Service) IsLocked(ctx context.Context, accountID string) (bool, error) {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return false, err
	}

	if _, err := s.dir.Get(ctx, id); err != nil {
		return false, err
	}

	return s.getContext(id) == nil, nil
}

// SetActive switches the active account, stamping the previous one's
// last-active time so its idle clock starts now.
func (s *Service) SetActive(ctx context.Context, accountID string) error {
	previousID, err := s.dir.ActiveID(ctx)
	if err != nil {
		return err
	}

	if err := s.dir.SetActive(ctx, accountID); err != nil {
		return err
	}

	if previousID != "" && previousID != accountID {
		if err := s.dir.Touch(ctx, previousID, s.clock.Now()); err != nil {
			s.log.WithError(err).WithField("account_id", previousID).
				Warn("failed to stamp last-active time on account switch")
		}
	}

	return nil
}

// RecordActivity stamps the account's last-active time. Callers invoke it on
// user interaction so the idle clock restarts.
func (s *Service) RecordActivity(ctx context.Context, accountID string) error {
	id, err := s.resolveAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	return s.dir.Touch(ctx, id, s.clock.Now())
}

// RegisterDeviceApproval stores an approved login request for a later
// device-approval unlock.
func (s *Service) RegisterDeviceApproval(accountID string, approval *DeviceApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[accountID] = approval
}

// FailedUnlockCount returns the number of consecutive failed unlock attempts
// for the account. The forced-logout threshold policy lives at the caller.
func (s *Service) FailedUnlockCount(accountID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failedUnlocks[accountID]
}

func (s *Service) recordUnlockFailure(id string, err error) {
	if !engine.IsDecryptionError(err) {
		return
	}
	s.mu.Lock()
	s.failedUnlocks[id]++
	s.mu.Unlock()
}

func (s *Service) resetUnlockFailures(id string) {
	s.mu.Lock()
	delete(s.failedUnlocks, id)
	s.mu.Unlock()
}

// logBestEffort logs a failed best-effort step without escalating. The
// designated best-effort steps never share an error path with the hard
// unlock failure.
func (s *Service) logBestEffort(step, accountID string, err error) {
	if err == nil {
		return
	}
	s.log.WithError(err).WithFields(logrus.Fields{
		"account_id": accountID,
		"step":       step,
	}).Warn("best-effort unlock step failed")
}

// accountNotFound normalizes directory lookups for callers that treat a
// removed account as "logged out".
func accountNotFound(err error) bool {
	return errors.Is(err, directory.ErrAccountNotFound)
}
