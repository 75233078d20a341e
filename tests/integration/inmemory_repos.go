package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports"

	"github.com/google/uuid"
)

// In-memory repositories and a fake ledger standing in for postgres and
// Horizon. The real Redis-backed vault store runs against miniredis, so
// the vault, provisioning, balance and settlement services under test are
// the production implementations.

type inMemoryWalletRepo struct {
	mu      sync.Mutex
	byOwner map[string]domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{byOwner: make(map[string]domain.Wallet)}
}

func (r *inMemoryWalletRepo) Upsert(_ context.Context, wallet *domain.Wallet) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byOwner[wallet.OwnerID]; ok {
		// Address and secret are immutable once written.
		updated := existing
		updated.FullName = wallet.FullName
		updated.ContactAddress = wallet.ContactAddress
		updated.Country = wallet.Country
		updated.UpdatedAt = time.Now().UTC()
		r.byOwner[wallet.OwnerID] = updated
	} else {
		r.byOwner[wallet.OwnerID] = *wallet
	}
	return 1, nil
}

func (r *inMemoryWalletRepo) GetByOwnerID(_ context.Context, ownerID string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.byOwner[ownerID]
	if !ok {
		return nil, nil
	}
	copied := wallet
	return &copied, nil
}

func (r *inMemoryWalletRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner)
}

type inMemoryTransferRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Transfer
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{byID: make(map[uuid.UUID]domain.Transfer)}
}

func (r *inMemoryTransferRepo) Create(_ context.Context, transfer *domain.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[transfer.ID]; exists {
		return fmt.Errorf("transfer %s already exists", transfer.ID)
	}
	r.byID[transfer.ID] = *transfer
	return nil
}

func (r *inMemoryTransferRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transfer, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	copied := transfer
	return &copied, nil
}

func (r *inMemoryTransferRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.TransferStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transfer, ok := r.byID[id]
	if !ok || transfer.Status != from {
		return false, nil
	}
	transfer.Status = to
	r.byID[id] = transfer
	return true, nil
}

func (r *inMemoryTransferRepo) MarkSubmitted(_ context.Context, id uuid.UUID, ledgerTxID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	transfer, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("transfer %s not found", id)
	}
	transfer.Status = domain.TransferStatusCompleting
	transfer.LedgerTxID = &ledgerTxID
	r.byID[id] = transfer
	return nil
}

func (r *inMemoryTransferRepo) MarkCompleted(_ context.Context, id uuid.UUID, ledgerTxID string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	transfer, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("transfer %s not found", id)
	}
	if transfer.CompletedAt != nil {
		return fmt.Errorf("transfer %s already completed", id)
	}
	transfer.Status = domain.TransferStatusCompleted
	transfer.LedgerTxID = &ledgerTxID
	transfer.CompletedAt = &completedAt
	r.byID[id] = transfer
	return nil
}

// fakeLedger is an in-memory stand-in for the Horizon gateway: accounts
// are activated by the faucet and payments settle instantly.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]string
	txs      map[string]ports.LedgerTransaction
	submits  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]string),
		txs:      make(map[string]ports.LedgerTransaction),
	}
}

func (l *fakeLedger) LoadAccount(_ context.Context, address string) (*ports.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[address]
	if !ok {
		return nil, fmt.Errorf("account %s not found", address)
	}
	return &ports.AccountInfo{Address: address, Sequence: 1, NativeBalance: balance}, nil
}

func (l *fakeLedger) NativeBalance(_ context.Context, address string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[address]
	if !ok {
		return "", fmt.Errorf("account %s not found", address)
	}
	return balance, nil
}

func (l *fakeLedger) SubmitPayment(_ context.Context, sub ports.PaymentSubmission) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	txID := uuid.NewString()
	l.txs[txID] = ports.LedgerTransaction{ID: txID, Successful: true, Ledger: int32(len(l.txs) + 1)}
	return txID, nil
}

func (l *fakeLedger) RequestTestFunding(_ context.Context, address string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[address]; ok {
		return false, nil
	}
	l.balances[address] = "10000.0000000"
	return true, nil
}

func (l *fakeLedger) GetTransaction(_ context.Context, txID string) (*ports.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", txID)
	}
	copied := tx
	return &copied, nil
}

func (l *fakeLedger) submitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits
}

// countingKeyGenerator wraps a KeyGenerator and counts Generate calls.
type countingKeyGenerator struct {
	inner     ports.KeyGenerator
	mu        sync.Mutex
	generated int
}

func (g *countingKeyGenerator) Generate() (string, string, error) {
	g.mu.Lock()
	g.generated++
	g.mu.Unlock()
	return g.inner.Generate()
}

func (g *countingKeyGenerator) AddressFromSeed(seed string) (string, error) {
	return g.inner.AddressFromSeed(seed)
}

func (g *countingKeyGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generated
}
