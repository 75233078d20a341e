package ports

import (
	"context"
	"time"

	"stellar-remit/internal/core/domain"

	"github.com/google/uuid"
)

// WalletRepository defines remote record-store operations for wallets.
// The store is a row-level collaborator: the core only needs
// upsert-with-affected-row-count and select-by-key.
type WalletRepository interface {
	// Upsert inserts or updates the wallet row keyed on owner_id and
	// returns the number of affected rows. Zero affected rows on a
	// reported success must be treated as a failure by callers.
	Upsert(ctx context.Context, wallet *domain.Wallet) (int64, error)
	GetByOwnerID(ctx context.Context, ownerID string) (*domain.Wallet, error)
}

// TransferRepository defines remote record-store operations for transfers.
type TransferRepository interface {
	Create(ctx context.Context, transfer *domain.Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	// UpdateStatus transitions the transfer from an expected current
	// status to the next one in a single guarded write. Returns false
	// when the row was not in the expected status: a concurrent
	// transition won, and the caller must stop rather than overwrite it.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TransferStatus) (bool, error)
	// MarkSubmitted records a successful ledger submission: the transfer
	// enters completing and its ledger transaction id is persisted.
	MarkSubmitted(ctx context.Context, id uuid.UUID, ledgerTxID string) error
	// MarkCompleted persists the terminal success state: status, ledger
	// transaction id and the completion timestamp, set exactly once.
	MarkCompleted(ctx context.Context, id uuid.UUID, ledgerTxID string, completedAt time.Time) error
}

// VaultStore is the process-local durable key-value storage holding
// encrypted secret envelopes, keyed by owner id.
type VaultStore interface {
	Put(ctx context.Context, ownerID string, envelopeJSON []byte) error
	// Get returns nil, nil when no envelope is stored for the owner.
	Get(ctx context.Context, ownerID string) ([]byte, error)
	Delete(ctx context.Context, ownerID string) error
}
