package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellar-remit/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransferRepo implements ports.TransferRepository over the remote record store.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Create inserts a new transfer row.
func (r *TransferRepo) Create(ctx context.Context, t *domain.Transfer) error {
	query := `INSERT INTO transfers (id, owner_id, recipient_id, amount_source, amount_destination, fx_rate, fee, total_charged, source_currency, dest_currency, delivery_method, status, ledger_tx_id, tracking_number, memo, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.OwnerID, t.RecipientID,
		int64(t.AmountSource), int64(t.AmountDestination), int64(t.FXRate),
		int64(t.Fee), int64(t.TotalCharged),
		t.SourceCurrency, t.DestCurrency, string(t.DeliveryMethod),
		string(t.Status), t.LedgerTxID, t.TrackingNumber, t.Memo,
		t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer by id. Returns nil, nil when absent.
func (r *TransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT id, owner_id, recipient_id, amount_source, amount_destination, fx_rate, fee, total_charged, source_currency, dest_currency, delivery_method, status, ledger_tx_id, tracking_number, memo, created_at, completed_at
		FROM transfers WHERE id = $1`

	t := &domain.Transfer{}
	var (
		amountSource, amountDest, fxRate, fee, total int64
		deliveryMethod, status                       string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.OwnerID, &t.RecipientID,
		&amountSource, &amountDest, &fxRate, &fee, &total,
		&t.SourceCurrency, &t.DestCurrency, &deliveryMethod,
		&status, &t.LedgerTxID, &t.TrackingNumber, &t.Memo,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer by id: %w", err)
	}

	t.AmountSource = domain.Money(amountSource)
	t.AmountDestination = domain.Money(amountDest)
	t.FXRate = domain.Rate(fxRate)
	t.Fee = domain.Money(fee)
	t.TotalCharged = domain.Money(total)
	t.DeliveryMethod = domain.DeliveryMethod(deliveryMethod)
	t.Status = domain.TransferStatus(status)
	return t, nil
}

// UpdateStatus transitions the transfer status with a compare-and-swap on
// the current status. Zero affected rows means the row was missing or a
// concurrent transition won; either way the caller's transition did not
// happen.
func (r *TransferRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TransferStatus) (bool, error) {
	query := `UPDATE transfers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update transfer status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSubmitted records a successful ledger submission in one write:
// status moves to completing and the ledger transaction id is set.
func (r *TransferRepo) MarkSubmitted(ctx context.Context, id uuid.UUID, ledgerTxID string) error {
	query := `UPDATE transfers SET status = $1, ledger_tx_id = $2, updated_at = NOW() WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, string(domain.TransferStatusCompleting), ledgerTxID, id)
	if err != nil {
		return fmt.Errorf("mark transfer submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer not found: %s", id)
	}
	return nil
}

// MarkCompleted persists the terminal success state in one write. The
// completed_at guard keeps the timestamp first-write-wins.
func (r *TransferRepo) MarkCompleted(ctx context.Context, id uuid.UUID, ledgerTxID string, completedAt time.Time) error {
	query := `UPDATE transfers
		SET status = $1, ledger_tx_id = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $4 AND completed_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, string(domain.TransferStatusCompleted), ledgerTxID, completedAt, id)
	if err != nil {
		return fmt.Errorf("mark transfer completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer not found or already completed: %s", id)
	}
	return nil
}
