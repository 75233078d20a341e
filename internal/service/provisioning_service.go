package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellar-remit/config"
	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports"
	"stellar-remit/pkg/apperror"

	"github.com/rs/zerolog"
)

// ProvisioningOrchestrator implements ports.ProvisioningService: one-shot,
// idempotent wallet creation. At most one provisioning run per owner is
// in flight at a time; a concurrent caller gets the current record back
// instead of blocking or racing a second keypair into existence.
//
// The sealed envelope is stored locally BEFORE the remote upsert, so a
// crash between the two leaves a resumable local envelope rather than an
// orphaned keypair.
type ProvisioningOrchestrator struct {
	keys           ports.KeyGenerator
	vault          ports.CredentialVault
	walletRepo     ports.WalletRepository
	ledger         ports.LedgerGateway
	cfg            config.ProvisioningConfig
	fundingTimeout time.Duration
	locks          *keyedMutex
	log            zerolog.Logger
}

// NewProvisioningOrchestrator creates a new ProvisioningOrchestrator.
func NewProvisioningOrchestrator(
	keys ports.KeyGenerator,
	vault ports.CredentialVault,
	walletRepo ports.WalletRepository,
	ledger ports.LedgerGateway,
	cfg config.ProvisioningConfig,
	fundingTimeout time.Duration,
	log zerolog.Logger,
) *ProvisioningOrchestrator {
	return &ProvisioningOrchestrator{
		keys:           keys,
		vault:          vault,
		walletRepo:     walletRepo,
		ledger:         ledger,
		cfg:            cfg,
		fundingTimeout: fundingTimeout,
		locks:          newKeyedMutex(),
		log:            log,
	}
}

// Provision creates the owner's wallet if none exists. Safe to call
// repeatedly: an existing record short-circuits, and a run already in
// flight for the same owner returns the current record without starting
// a second one.
func (s *ProvisioningOrchestrator) Provision(ctx context.Context, req ports.ProvisionRequest) (*domain.Wallet, error) {
	if req.OwnerID == "" {
		return nil, apperror.ErrProvisioningFailed(errors.New("owner id is required"))
	}

	if !s.locks.TryLock(req.OwnerID) {
		s.log.Debug().Str("owner_id", req.OwnerID).Msg("provisioning already in flight, returning current record")
		return s.walletRepo.GetByOwnerID(ctx, req.OwnerID)
	}
	defer s.locks.Unlock(req.OwnerID)

	existing, err := s.walletRepo.GetByOwnerID(ctx, req.OwnerID)
	if err != nil {
		return nil, apperror.ErrProvisioningFailed(err)
	}
	if existing != nil {
		return existing, nil
	}

	publicAddress, secretSeed, resumed, err := s.resolveKeypair(ctx, req)
	if err != nil {
		return nil, err
	}

	key := s.vault.DeriveKey(req.OwnerID, req.ContactAddress)
	envelope, err := s.vault.Encrypt(secretSeed, key)
	if err != nil {
		return nil, apperror.ErrProvisioningFailed(err)
	}
	if err := s.vault.StoreLocal(ctx, req.OwnerID, envelope); err != nil {
		return nil, apperror.ErrProvisioningFailed(err)
	}

	s.requestFunding(ctx, publicAddress)

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		OwnerID:         req.OwnerID,
		PublicAddress:   publicAddress,
		EncryptedSecret: envelope,
		FullName:        req.FullName,
		ContactAddress:  req.ContactAddress,
		Country:         req.Country,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.persistWallet(ctx, wallet); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("owner_id", req.OwnerID).
		Str("public_address", publicAddress).
		Bool("resumed", resumed).
		Msg("wallet provisioned")

	return wallet, nil
}

// resolveKeypair resumes from a locally cached envelope when one exists
// (a previous run crashed after sealing but before the remote record
// landed), otherwise generates a fresh keypair.
func (s *ProvisioningOrchestrator) resolveKeypair(ctx context.Context, req ports.ProvisionRequest) (publicAddress, secretSeed string, resumed bool, err error) {
	envelope, loadErr := s.vault.LoadLocal(ctx, req.OwnerID)
	if loadErr == nil && envelope != nil {
		key := s.vault.DeriveKey(req.OwnerID, req.ContactAddress)
		seed, decErr := s.vault.Decrypt(*envelope, key)
		if decErr == nil {
			addr, addrErr := s.keys.AddressFromSeed(seed)
			if addrErr == nil {
				s.log.Info().Str("owner_id", req.OwnerID).Msg("resuming provisioning from cached envelope")
				return addr, seed, true, nil
			}
		}
		// Undecryptable or malformed cache: discard and start over.
		s.log.Warn().Str("owner_id", req.OwnerID).Msg("cached envelope unusable, generating a fresh keypair")
	}

	publicAddress, secretSeed, err = s.keys.Generate()
	if err != nil {
		return "", "", false, apperror.ErrProvisioningFailed(err)
	}
	return publicAddress, secretSeed, false, nil
}

// requestFunding asks the test-network faucet to activate the account.
// Strictly best-effort: the wallet record is created either way and the
// account can be funded later.
func (s *ProvisioningOrchestrator) requestFunding(ctx context.Context, publicAddress string) {
	fundCtx, cancel := context.WithTimeout(ctx, s.fundingTimeout)
	defer cancel()

	funded, err := s.ledger.RequestTestFunding(fundCtx, publicAddress)
	if err != nil {
		s.log.Warn().Err(err).Str("public_address", publicAddress).Msg("test funding request failed, continuing")
		return
	}
	if funded {
		s.log.Info().Str("public_address", publicAddress).Msg("account funded via faucet")
	}
}

// persistWallet upserts the remote record with bounded retries. Only
// transient failures are retried; a success reporting zero affected rows
// is treated as a failure.
func (s *ProvisioningOrchestrator) persistWallet(ctx context.Context, wallet *domain.Wallet) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.log.Warn().
				Err(lastErr).
				Str("owner_id", wallet.OwnerID).
				Int("attempt", attempt).
				Msg("retrying wallet record upsert")
			select {
			case <-time.After(s.cfg.RetryBackoff):
			case <-ctx.Done():
				return apperror.ErrProvisioningFailed(ctx.Err())
			}
		}

		upsertCtx, cancel := context.WithTimeout(ctx, s.cfg.RecordTimeout)
		affected, err := s.walletRepo.Upsert(upsertCtx, wallet)
		cancel()

		if err == nil && affected == 0 {
			err = fmt.Errorf("wallet upsert affected no rows")
		}
		if err == nil {
			return nil
		}

		lastErr = apperror.Classify(err)
		if !apperror.IsTransient(lastErr) {
			return apperror.ErrProvisioningFailed(lastErr)
		}
	}
	return apperror.ErrProvisioningFailed(lastErr)
}
