package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports"
	"stellar-remit/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for vault key derivation.
const (
	vaultArgonTime    = 1
	vaultArgonMemory  = 64 * 1024 // 64MB
	vaultArgonThreads = 4
	vaultKeyLen       = 32 // AES-256
	envelopeSaltLen   = 16
)

// VaultService implements ports.CredentialVault. Keys are derived from
// account-identifier and contact-address material with a fixed application
// salt, so the same inputs always regenerate the same key without the key
// ever being stored. Envelopes are sealed with AES-256-GCM: decrypting
// with a different key fails the authentication tag deterministically.
type VaultService struct {
	store      ports.VaultStore
	walletRepo ports.WalletRepository
	appSalt    []byte
	log        zerolog.Logger
}

// NewVaultService creates a new VaultService.
func NewVaultService(store ports.VaultStore, walletRepo ports.WalletRepository, appSalt string, log zerolog.Logger) *VaultService {
	return &VaultService{
		store:      store,
		walletRepo: walletRepo,
		appSalt:    []byte(appSalt),
		log:        log,
	}
}

// DeriveKey derives the owner's symmetric key from identifier and contact
// address. Deterministic and one-way.
func (s *VaultService) DeriveKey(ownerID, contactAddress string) []byte {
	material := []byte(ownerID + contactAddress)
	return argon2.IDKey(material, s.appSalt, vaultArgonTime, vaultArgonMemory, vaultArgonThreads, vaultKeyLen)
}

// Encrypt seals a secret into a self-verifying envelope.
func (s *VaultService) Encrypt(secret string, key []byte) (domain.SecretEnvelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return domain.SecretEnvelope{}, fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return domain.SecretEnvelope{}, fmt.Errorf("creating GCM: %w", err)
	}

	salt := make([]byte, envelopeSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return domain.SecretEnvelope{}, apperror.ErrEntropyFailure(fmt.Errorf("generating envelope salt: %w", err))
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return domain.SecretEnvelope{}, apperror.ErrEntropyFailure(fmt.Errorf("generating nonce: %w", err))
	}

	// The per-envelope salt rides as additional authenticated data, so
	// splicing ciphertext between envelopes also fails authentication.
	ciphertext := aesGCM.Seal(nil, nonce, []byte(secret), salt)

	return domain.SecretEnvelope{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt opens an envelope. A wrong key, wrong salt or tampered
// ciphertext fails with an integrity error, never silent garbage.
func (s *VaultService) Decrypt(envelope domain.SecretEnvelope, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	if len(envelope.Nonce) != aesGCM.NonceSize() {
		return "", apperror.ErrIntegrity(fmt.Errorf("malformed nonce"))
	}

	plaintext, err := aesGCM.Open(nil, envelope.Nonce, envelope.Ciphertext, envelope.Salt)
	if err != nil {
		return "", apperror.ErrIntegrity(err)
	}

	return string(plaintext), nil
}

// StoreLocal persists the envelope in local durable storage, keyed by
// owner id.
func (s *VaultService) StoreLocal(ctx context.Context, ownerID string, envelope domain.SecretEnvelope) error {
	blob, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.store.Put(ctx, ownerID, blob); err != nil {
		return apperror.ErrVaultStorage(err)
	}
	return nil
}

// LoadLocal retrieves the owner's envelope from local storage.
// Returns nil, nil when none is stored.
func (s *VaultService) LoadLocal(ctx context.Context, ownerID string) (*domain.SecretEnvelope, error) {
	blob, err := s.store.Get(ctx, ownerID)
	if err != nil {
		return nil, apperror.ErrVaultStorage(err)
	}
	if blob == nil {
		return nil, nil
	}

	var envelope domain.SecretEnvelope
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, apperror.ErrIntegrity(fmt.Errorf("unmarshal envelope: %w", err))
	}
	return &envelope, nil
}

// RecoverSecret resolves the owner's signing secret: local storage first,
// then the remote wallet record, re-caching locally on a remote hit.
func (s *VaultService) RecoverSecret(ctx context.Context, ownerID, contactAddress string) (string, error) {
	key := s.DeriveKey(ownerID, contactAddress)

	envelope, err := s.LoadLocal(ctx, ownerID)
	if err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("local envelope load failed, falling back to remote record")
	}

	if envelope == nil {
		wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
		if err != nil {
			return "", apperror.ErrRecordStore(err)
		}
		if wallet == nil || wallet.EncryptedSecret.IsZero() {
			return "", apperror.ErrSecretUnavailable()
		}
		envelope = &wallet.EncryptedSecret

		// Cache back for the next recovery; failure is not fatal.
		if err := s.StoreLocal(ctx, ownerID, *envelope); err != nil {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("re-caching remote envelope failed")
		}
	}

	return s.Decrypt(*envelope, key)
}
