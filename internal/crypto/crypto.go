package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLength is the length of all symmetric keys (AES-256).
	KeyLength = 32

	// SaltLength is the default salt length.
	SaltLength = 32

	// NonceSize is the AES-GCM nonce size (96 bits, standard for GCM).
	NonceSize = 12

	// Default Argon2id parameters per RFC 9106.
	DefaultArgonMemory      = 64 * 1024 // KiB
	DefaultArgonIterations  = 3
	DefaultArgonParallelism = 4

	// DefaultPBKDF2Iterations is the default PBKDF2-SHA256 iteration count.
	DefaultPBKDF2Iterations = 600_000
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidKeyLength  = errors.New("invalid key length")
	ErrUnknownKDF        = errors.New("unknown KDF algorithm")
)

// KDFAlgorithm selects the password/PIN key-derivation function.
type KDFAlgorithm string

const (
	KDFArgon2id KDFAlgorithm = "argon2id"
	KDFPBKDF2   KDFAlgorithm = "pbkdf2_sha256"
)

// KDFConfig carries per-account key-derivation parameters.
type KDFConfig struct {
	Algorithm   KDFAlgorithm
	Iterations  int
	Memory      int // KiB, Argon2id only
	Parallelism int // Argon2id only
}

// DefaultKDFConfig returns the Argon2id defaults used for new accounts.
func DefaultKDFConfig() KDFConfig {
	return KDFConfig{
		Algorithm:   KDFArgon2id,
		Iterations:  DefaultArgonIterations,
		Memory:      DefaultArgonMemory,
		Parallelism: DefaultArgonParallelism,
	}
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt(length int) ([]byte, error) {
	salt := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return salt, nil
}

// GenerateKey generates a random 32-byte symmetric key.
func GenerateKey() ([]byte, error) {
	return GenerateSalt(KeyLength)
}

// DeriveKey derives a 32-byte key from a password or PIN using the
// account's configured KDF.
func DeriveKey(secret string, salt []byte, cfg KDFConfig) ([]byte, error) {
	switch cfg.Algorithm {
	case KDFArgon2id:
		return argon2.IDKey(
			[]byte(secret),
			salt,
			uint32(cfg.Iterations),
			uint32(cfg.Memory),
			uint8(cfg.Parallelism),
			KeyLength,
		), nil
	case KDFPBKDF2:
		return pbkdf2.Key([]byte(secret), salt, cfg.Iterations, KeyLength, sha256.New), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKDF, cfg.Algorithm)
	}
}

// StretchKey runs one further KDF pass over an already-derived key.
// Used to produce the password verification hash from the master key so the
// stored hash cannot double as the decryption key.
func StretchKey(key, salt []byte, cfg KDFConfig) ([]byte, error) {
	return DeriveKey(string(key), salt, cfg)
}

// ConstantTimeEqual compares two byte slices in constant time.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zero overwrites a byte slice with zeros. Call on key material once it is
// no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Encrypt encrypts plaintext using AES-256-GCM with the provided key.
// The nonce is prepended to the returned ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	nonce, err := GenerateSalt(NonceSize)
	if err != nil {
		return nil, err
	}

	return encryptAESGCM(plaintext, key, nonce)
}

// Decrypt decrypts AES-256-GCM ciphertext produced by Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(ciphertext) < NonceSize {
		return nil, ErrInvalidCiphertext
	}

	return decryptAESGCM(ciphertext, key, ciphertext[:NonceSize])
}

func encryptAESGCM(plaintext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptAESGCM(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// GenerateKeyPair generates an X25519 keypair for asymmetric key wrapping.
func GenerateKeyPair() (privateKey, publicKey []byte, err error) {
	privateKey = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, privateKey); err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return privateKey, publicKey, nil
}

// PublicKey derives the X25519 public key for a private scalar.
func PublicKey(privateKey []byte) ([]byte, error) {
	return curve25519.X25519(privateKey, curve25519.Basepoint)
}

// Seal encrypts plaintext to an X25519 public key: an ephemeral keypair is
// generated, the ECDH shared secret keys XChaCha20-Poly1305, and the blob
// layout is [32-byte ephemeral public key][24-byte nonce][ciphertext].
func Seal(publicKey, plaintext []byte) ([]byte, error) {
	ephemeralPriv, ephemeralPub, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer Zero(ephemeralPriv)

	shared, err := curve25519.X25519(ephemeralPriv, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}
	defer Zero(shared)

	aead, err := chacha20poly1305.NewX(shared)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob := make([]byte, 0, len(ephemeralPub)+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, ephemeralPub...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	return blob, nil
}

// Unseal decrypts a blob produced by Seal using the recipient's X25519
// private key.
func Unseal(privateKey, blob []byte) ([]byte, error) {
	if len(blob) < curve25519.PointSize+chacha20poly1305.NonceSizeX {
		return nil, ErrInvalidCiphertext
	}

	ephemeralPub := blob[:curve25519.PointSize]
	nonce := blob[curve25519.PointSize : curve25519.PointSize+chacha20poly1305.NonceSizeX]
	ciphertext := blob[curve25519.PointSize+chacha20poly1305.NonceSizeX:]

	shared, err := curve25519.X25519(privateKey, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}
	defer Zero(shared)

	aead, err := chacha20poly1305.NewX(shared)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
