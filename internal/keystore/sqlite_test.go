package keystore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "keystore.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSetAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := []byte("user-key-material")
	if err := store.Set(ctx, "acct-1", KindNeverLockKey, data); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "acct-1", KindNeverLockKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "acct-1", KindBiometricKey)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSet_Replaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "acct-1", KindDeviceKey, []byte("old")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "acct-1", KindDeviceKey, []byte("new")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "acct-1", KindDeviceKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Get() = %q, want %q", got, "new")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "acct-1", KindPINProtectedUserKey, []byte("data")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "acct-1", KindPINProtectedUserKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := store.Get(ctx, "acct-1", KindPINProtectedUserKey)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting an absent secret is not an error
	if err := store.Delete(ctx, "acct-1", KindPINProtectedUserKey); err != nil {
		t.Errorf("Delete() of absent secret error = %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	kinds := []Kind{KindBiometricKey, KindNeverLockKey, KindDeviceKey}
	for _, kind := range kinds {
		if err := store.Set(ctx, "acct-1", kind, []byte("data")); err != nil {
			t.Fatalf("Set(%s) error = %v", kind, err)
		}
	}
	if err := store.Set(ctx, "acct-2", KindBiometricKey, []byte("other")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := store.DeleteAll(ctx, "acct-1"); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	for _, kind := range kinds {
		if _, err := store.Get(ctx, "acct-1", kind); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected %s gone for acct-1, got %v", kind, err)
		}
	}

	// Other accounts untouched
	if _, err := store.Get(ctx, "acct-2", KindBiometricKey); err != nil {
		t.Errorf("acct-2 secret should survive, got %v", err)
	}
}

func TestHas(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Has(ctx, "acct-1", KindAuthenticatorVaultKey)
	if err != nil {
		t.Fatalf("Has() error = %v", err)
	}
	if ok {
		t.Error("Has() = true for absent secret")
	}

	if err := store.Set(ctx, "acct-1", KindAuthenticatorVaultKey, []byte("key")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ok, err = store.Has(ctx, "acct-1", KindAuthenticatorVaultKey)
	if err != nil {
		t.Fatalf("Has() error = %v", err)
	}
	if !ok {
		t.Error("Has() = false for present secret")
	}
}

func TestAccountNamespacing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "acct-1", KindNeverLockKey, []byte("one")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "acct-2", KindNeverLockKey, []byte("two")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "acct-2", KindNeverLockKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "two" {
		t.Errorf("Get() = %q, want %q", got, "two")
	}
}

func TestReopen_Persists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "keystore.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Set(ctx, "acct-1", KindDeviceKey, []byte("persisted")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "acct-1", KindDeviceKey)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Get() = %q, want %q", got, "persisted")
	}
}
