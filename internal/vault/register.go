package vault

import (
	"context"

	"github.com/google/uuid"

	"github.com/akarpov/vaultkeeper/internal/crypto"
	"github.com/akarpov/vaultkeeper/internal/directory"
)

// defaultKDF is used for new accounts unless the caller supplies a
// configuration negotiated with a server.
var defaultKDF = crypto.KDFConfig{
	Algorithm:   crypto.KDFArgon2id,
	Iterations:  3,
	Memory:      64 * 1024,
	Parallelism: 4,
}

// NewAccountParams describes an account to register on this device.
type NewAccountParams struct {
	Email    string
	Name     string
	Password string

	// AccessToken, when set, supplies the account identity; its subject
	// claim becomes the account id.
	AccessToken  string
	RefreshToken string

	// KDF overrides the key-derivation configuration when non-zero.
	KDF crypto.KDFConfig

	Timeout       directory.Timeout
	TimeoutAction directory.TimeoutAction
}

// RegisterAccount creates an account with freshly generated key material:
// a random user key wrapped by the password-derived master key, and an
// account key pair wrapped by the user key. The first registered account
// becomes active. The account starts locked.
func (s *Service) RegisterAccount(ctx context.Context, params NewAccountParams) (*directory.Account, error) {
	id := uuid.NewString()
	email := params.Email
	name := params.Name

	if params.AccessToken != "" {
		claims, err := directory.ParseTokenClaims(params.AccessToken)
		if err != nil {
			return nil, err
		}
		if claims.UserID != "" {
			id = claims.UserID
		}
		if email == "" {
			email = claims.Email
		}
		if name == "" {
			name = claims.Name
		}
	}

	kdf := params.KDF
	if kdf.Algorithm == "" {
		kdf = defaultKDF
	}

	timeout := params.Timeout
	if timeout == 0 && params.TimeoutAction == "" {
		timeout = 15
	}
	action := params.TimeoutAction
	if action == "" {
		action = directory.TimeoutActionLock
	}

	salt, err := crypto.GenerateSalt(crypto.SaltLength)
	if err != nil {
		return nil, err
	}

	masterKey, err := crypto.DeriveKey(params.Password, salt, kdf)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(masterKey)

	userKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(userKey)

	privateKey, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(privateKey)

	encryptedUserKey, err := crypto.Encrypt(userKey, masterKey)
	if err != nil {
		return nil, err
	}

	encryptedPrivateKey, err := crypto.Encrypt(privateKey, userKey)
	if err != nil {
		return nil, err
	}

	account := &directory.Account{
		ID:      id,
		Email:   email,
		Name:    name,
		KDF:     kdf,
		KDFSalt: salt,
		Decryption: directory.DecryptionOptions{
			HasMasterPassword: true,
		},
		Bundle: directory.KeyBundle{
			EncryptedPrivateKey: encryptedPrivateKey,
			EncryptedUserKey:    encryptedUserKey,
		},
		Timeout:       timeout,
		TimeoutAction: action,
		Authenticated: true,
		AccessToken:   params.AccessToken,
		RefreshToken:  params.RefreshToken,
		LastActiveAt:  s.clock.Now(),
	}

	if err := s.dir.Create(ctx, account); err != nil {
		return nil, err
	}

	activeID, err := s.dir.ActiveID(ctx)
	if err == nil && activeID == "" {
		if err := s.dir.SetActive(ctx, account.ID); err != nil {
			s.log.WithError(err).WithField("account_id", account.ID).
				Warn("failed to activate first account")
		}
	}

	s.log.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"email":      account.Email,
	}).Info("account registered")

	return account, nil
}
