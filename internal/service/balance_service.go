package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports"
	"stellar-remit/pkg/apperror"

	"github.com/rs/zerolog"
)

// BalanceService implements ports.BalanceTracker. Balance reads absorb
// every ledger failure into a zero, non-activated balance: an unfunded
// account and an unreachable network look the same to the caller, and
// neither is an error. Wallet loads are debounced per owner so bursts of
// refresh requests collapse into one round trip.
type BalanceService struct {
	ledger      ports.LedgerGateway
	walletRepo  ports.WalletRepository
	callTimeout time.Duration
	debounce    time.Duration
	locks       *keyedMutex
	log         zerolog.Logger

	mu    sync.RWMutex
	cache map[string]ports.WalletView
}

// NewBalanceService creates a new BalanceService.
func NewBalanceService(
	ledger ports.LedgerGateway,
	walletRepo ports.WalletRepository,
	callTimeout, debounce time.Duration,
	log zerolog.Logger,
) *BalanceService {
	return &BalanceService{
		ledger:      ledger,
		walletRepo:  walletRepo,
		callTimeout: callTimeout,
		debounce:    debounce,
		locks:       newKeyedMutex(),
		log:         log,
		cache:       make(map[string]ports.WalletView),
	}
}

// Refresh reads the account's native balance. Never returns an error:
// unfunded, inactive and unreachable all resolve to a zero balance.
func (s *BalanceService) Refresh(ctx context.Context, publicAddress string) (domain.Balance, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	native, err := s.ledger.NativeBalance(callCtx, publicAddress)
	if err != nil {
		s.log.Debug().Err(err).Str("public_address", publicAddress).Msg("balance read failed, reporting zero")
		return domain.Balance{Native: "0", IsActivated: false}, nil
	}

	parsed, err := strconv.ParseFloat(native, 64)
	if err != nil {
		s.log.Warn().Str("public_address", publicAddress).Str("balance", native).Msg("unparseable balance from ledger")
		return domain.Balance{Native: "0", IsActivated: false}, nil
	}

	return domain.Balance{Native: native, IsActivated: parsed > 0}, nil
}

// LoadWallet returns the owner's wallet record paired with a live
// balance. A successful load within the debounce window is served from
// cache without touching the record store or the ledger. When another
// load for the same owner is already in flight, LoadWallet serves the
// last cached view, or returns (nil, nil) when none exists yet, rather
// than issuing a duplicate round trip.
func (s *BalanceService) LoadWallet(ctx context.Context, ownerID string) (*ports.WalletView, error) {
	if s.locks.Debounced(ownerID, s.debounce) {
		if view, ok := s.cached(ownerID); ok {
			return view, nil
		}
	}

	if !s.locks.TryLock(ownerID) {
		if view, ok := s.cached(ownerID); ok {
			return view, nil
		}
		return nil, nil
	}
	defer s.locks.Unlock(ownerID)

	wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, apperror.ErrRecordStore(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	balance, _ := s.Refresh(ctx, wallet.PublicAddress)
	view := ports.WalletView{Wallet: *wallet, Balance: balance}

	s.mu.Lock()
	s.cache[ownerID] = view
	s.mu.Unlock()
	s.locks.Touch(ownerID)

	return &view, nil
}

func (s *BalanceService) cached(ownerID string) (*ports.WalletView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.cache[ownerID]
	if !ok {
		return nil, false
	}
	return &view, true
}
