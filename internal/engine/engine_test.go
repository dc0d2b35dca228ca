package engine

import (
	"bytes"
	"testing"

	"github.com/akarpov/vaultkeeper/internal/crypto"
	"github.com/akarpov/vaultkeeper/internal/directory"
)

var testKDF = crypto.KDFConfig{
	Algorithm:   crypto.KDFArgon2id,
	Iterations:  1,
	Memory:      8 * 1024,
	Parallelism: 1,
}

type fixture struct {
	account    *directory.Account
	userKey    []byte
	privateKey []byte
}

// newFixture builds an account with real key material: a random user key
// wrapped by the password-derived master key, and a private key wrapped by
// the user key.
func newFixture(t *testing.T, password string) *fixture {
	t.Helper()

	salt, err := crypto.GenerateSalt(crypto.SaltLength)
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	userKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	privateKey, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	masterKey, err := crypto.DeriveKey(password, salt, testKDF)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	encUserKey, err := crypto.Encrypt(userKey, masterKey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	encPrivateKey, err := crypto.Encrypt(privateKey, userKey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	return &fixture{
		account: &directory.Account{
			ID:      "acct-1",
			Email:   "user@example.com",
			KDF:     testKDF,
			KDFSalt: salt,
			Bundle: directory.KeyBundle{
				EncryptedPrivateKey: encPrivateKey,
				EncryptedUserKey:    encUserKey,
			},
		},
		userKey:    userKey,
		privateKey: privateKey,
	}
}

func TestInitialize_Password(t *testing.T) {
	fx := newFixture(t, "correct horse battery staple")
	eng := New()

	ctx, err := eng.Initialize(fx.account, PasswordMethod{Password: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if !bytes.Equal(ctx.UserKey, fx.userKey) {
		t.Error("user key mismatch")
	}
	if !bytes.Equal(ctx.PrivateKey, fx.privateKey) {
		t.Error("private key mismatch")
	}
	if len(ctx.VerificationHash) == 0 {
		t.Error("password unlock must yield a verification hash")
	}
}

func TestInitialize_WrongPassword(t *testing.T) {
	fx := newFixture(t, "right password")
	eng := New()

	_, err := eng.Initialize(fx.account, PasswordMethod{Password: "wrong password"})
	if !IsDecryptionError(err) {
		t.Fatalf("expected DecryptionError, got %v", err)
	}
	if _, ok := IsMissingKey(err); ok {
		t.Error("wrong password must not surface as MissingKeyError")
	}
}

func TestInitialize_NoPrivateKey(t *testing.T) {
	fx := newFixture(t, "pw")
	fx.account.Bundle.EncryptedPrivateKey = nil
	eng := New()

	_, err := eng.Initialize(fx.account, PasswordMethod{Password: "pw"})
	mk, ok := IsMissingKey(err)
	if !ok {
		t.Fatalf("expected MissingKeyError, got %v", err)
	}
	if mk.Kind != KeyEncryptedPrivateKey {
		t.Errorf("Kind = %q, want %q", mk.Kind, KeyEncryptedPrivateKey)
	}
}

func TestInitialize_NoUserKey_SignalsEnrollment(t *testing.T) {
	fx := newFixture(t, "pw")
	fx.account.Bundle.EncryptedUserKey = nil
	eng := New()

	// Password and key-connector both require the encrypted user key; its
	// absence is the pending-enrollment signal and must be distinguishable
	// from a missing private key.
	for _, method := range []Method{
		PasswordMethod{Password: "pw"},
		KeyConnectorMethod{MasterKey: make([]byte, crypto.KeyLength)},
	} {
		_, err := eng.Initialize(fx.account, method)
		mk, ok := IsMissingKey(err)
		if !ok {
			t.Fatalf("%s: expected MissingKeyError, got %v", method.method(), err)
		}
		if mk.Kind != KeyEncryptedUserKey {
			t.Errorf("%s: Kind = %q, want %q", method.method(), mk.Kind, KeyEncryptedUserKey)
		}
	}
}

func TestInitialize_PIN(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	pinKey, err := crypto.DeriveKey("1234", fx.account.KDFSalt, testKDF)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	pinProtected, err := crypto.Encrypt(fx.userKey, pinKey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	ctx, err := eng.Initialize(fx.account, PINMethod{PIN: "1234", PINProtectedUserKey: pinProtected})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !bytes.Equal(ctx.UserKey, fx.userKey) {
		t.Error("user key mismatch")
	}

	// Wrong PIN is a decryption failure
	_, err = eng.Initialize(fx.account, PINMethod{PIN: "9999", PINProtectedUserKey: pinProtected})
	if !IsDecryptionError(err) {
		t.Errorf("expected DecryptionError for wrong PIN, got %v", err)
	}

	// Absent PIN-protected key is a precondition failure
	_, err = eng.Initialize(fx.account, PINMethod{PIN: "1234"})
	if mk, ok := IsMissingKey(err); !ok || mk.Kind != KeyPINProtectedUserKey {
		t.Errorf("expected MissingKeyError(pin-protected user key), got %v", err)
	}
}

func TestInitialize_DecryptedKey(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	ctx, err := eng.Initialize(fx.account, DecryptedKeyMethod{UserKey: fx.userKey})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !bytes.Equal(ctx.PrivateKey, fx.privateKey) {
		t.Error("private key mismatch")
	}
	if len(ctx.VerificationHash) != 0 {
		t.Error("non-password unlock must not yield a verification hash")
	}
}

func TestInitialize_DecryptedKeyMissing(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	// An empty key reports the kind of the material it came from
	cases := []struct {
		name   string
		method DecryptedKeyMethod
		want   KeyKind
	}{
		{"biometric source", DecryptedKeyMethod{Source: KeyBiometricKey}, KeyBiometricKey},
		{"authenticator source", DecryptedKeyMethod{Source: KeyAuthenticatorVaultKey}, KeyAuthenticatorVaultKey},
		{"no source", DecryptedKeyMethod{}, KeyNeverLockKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Initialize(fx.account, tc.method)
			if mk, ok := IsMissingKey(err); !ok || mk.Kind != tc.want {
				t.Errorf("expected MissingKeyError(%s), got %v", tc.want, err)
			}
		})
	}
}

func TestInitialize_DeviceKey(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	deviceKey, _ := crypto.GenerateKey()
	devicePriv, devicePub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	encDevicePriv, err := crypto.Encrypt(devicePriv, deviceKey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	deviceProtected, err := crypto.Seal(devicePub, fx.userKey)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	ctx, err := eng.Initialize(fx.account, DeviceKeyMethod{
		DeviceKey:                 deviceKey,
		EncryptedDevicePrivateKey: encDevicePriv,
		DeviceProtectedUserKey:    deviceProtected,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !bytes.Equal(ctx.UserKey, fx.userKey) {
		t.Error("user key mismatch")
	}

	// Each missing input reports its own kind
	cases := []struct {
		name   string
		method DeviceKeyMethod
		want   KeyKind
	}{
		{"no device key", DeviceKeyMethod{EncryptedDevicePrivateKey: encDevicePriv, DeviceProtectedUserKey: deviceProtected}, KeyDeviceKey},
		{"no device private key", DeviceKeyMethod{DeviceKey: deviceKey, DeviceProtectedUserKey: deviceProtected}, KeyDevicePrivateKey},
		{"no protected user key", DeviceKeyMethod{DeviceKey: deviceKey, EncryptedDevicePrivateKey: encDevicePriv}, KeyDeviceProtectedUserKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Initialize(fx.account, tc.method)
			if mk, ok := IsMissingKey(err); !ok || mk.Kind != tc.want {
				t.Errorf("expected MissingKeyError(%s), got %v", tc.want, err)
			}
		})
	}
}

func TestInitialize_KeyConnector(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	masterKey, err := crypto.DeriveKey("pw", fx.account.KDFSalt, testKDF)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	ctx, err := eng.Initialize(fx.account, KeyConnectorMethod{MasterKey: masterKey})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !bytes.Equal(ctx.UserKey, fx.userKey) {
		t.Error("user key mismatch")
	}
}

func TestInitialize_AuthRequest(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	requestPriv, requestPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	t.Run("user key wrapped", func(t *testing.T) {
		wrapped, err := crypto.Seal(requestPub, fx.userKey)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}

		ctx, err := eng.Initialize(fx.account, AuthRequestMethod{
			RequestPrivateKey: requestPriv,
			UserKeyWrapped:    wrapped,
		})
		if err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if !bytes.Equal(ctx.UserKey, fx.userKey) {
			t.Error("user key mismatch")
		}
	})

	t.Run("master key wrapped", func(t *testing.T) {
		masterKey, err := crypto.DeriveKey("pw", fx.account.KDFSalt, testKDF)
		if err != nil {
			t.Fatalf("DeriveKey() error = %v", err)
		}
		wrapped, err := crypto.Seal(requestPub, masterKey)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}

		ctx, err := eng.Initialize(fx.account, AuthRequestMethod{
			RequestPrivateKey: requestPriv,
			MasterKeyWrapped:  wrapped,
		})
		if err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if !bytes.Equal(ctx.UserKey, fx.userKey) {
			t.Error("user key mismatch")
		}
	})

	t.Run("no wrapped key", func(t *testing.T) {
		_, err := eng.Initialize(fx.account, AuthRequestMethod{RequestPrivateKey: requestPriv})
		if mk, ok := IsMissingKey(err); !ok || mk.Kind != KeyAuthRequestWrappedKey {
			t.Errorf("expected MissingKeyError(auth request wrapped key), got %v", err)
		}
	})
}

func TestDecryptOrgKeys(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	orgKey, _ := crypto.GenerateKey()
	wrapped, err := crypto.Encrypt(orgKey, fx.userKey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	ctx, err := eng.Initialize(fx.account, DecryptedKeyMethod{UserKey: fx.userKey})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := eng.DecryptOrgKeys(ctx, map[string][]byte{"org-1": wrapped}); err != nil {
		t.Fatalf("DecryptOrgKeys() error = %v", err)
	}
	if !bytes.Equal(ctx.OrgKeys["org-1"], orgKey) {
		t.Error("org key mismatch")
	}

	// Corrupted wrapped key surfaces as DecryptionError
	err = eng.DecryptOrgKeys(ctx, map[string][]byte{"org-2": []byte("garbage-that-is-long-enough")})
	if !IsDecryptionError(err) {
		t.Errorf("expected DecryptionError, got %v", err)
	}
}

func TestContextDestroy(t *testing.T) {
	fx := newFixture(t, "pw")
	eng := New()

	ctx, err := eng.Initialize(fx.account, PasswordMethod{Password: "pw"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	ctx.Destroy()
	if ctx.UserKey != nil || ctx.PrivateKey != nil || ctx.VerificationHash != nil || ctx.OrgKeys != nil {
		t.Error("Destroy() must release all key material")
	}
}
