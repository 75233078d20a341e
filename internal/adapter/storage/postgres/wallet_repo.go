package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stellar-remit/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository over the remote record store.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Upsert inserts the wallet row keyed on owner_id, or refreshes the profile
// fields when the row already exists. public_address and encrypted_secret
// are written only on first insert: the keypair is immutable once set.
// Returns the number of affected rows for the caller's zero-rows check.
func (r *WalletRepo) Upsert(ctx context.Context, w *domain.Wallet) (int64, error) {
	envJSON, err := json.Marshal(w.EncryptedSecret)
	if err != nil {
		return 0, fmt.Errorf("marshal envelope: %w", err)
	}

	query := `INSERT INTO wallets (owner_id, public_address, encrypted_secret, full_name, contact_address, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    contact_address = EXCLUDED.contact_address,
		    country = EXCLUDED.country,
		    updated_at = EXCLUDED.updated_at`

	tag, err := r.pool.Exec(ctx, query,
		w.OwnerID, w.PublicAddress, envJSON,
		w.FullName, w.ContactAddress, w.Country,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert wallet: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByOwnerID fetches a wallet row by owner id. Returns nil, nil when no
// wallet exists for the owner.
func (r *WalletRepo) GetByOwnerID(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	query := `SELECT owner_id, public_address, encrypted_secret, full_name, contact_address, country, created_at, updated_at
		FROM wallets WHERE owner_id = $1`

	w := &domain.Wallet{}
	var envJSON []byte
	err := r.pool.QueryRow(ctx, query, ownerID).Scan(
		&w.OwnerID, &w.PublicAddress, &envJSON,
		&w.FullName, &w.ContactAddress, &w.Country,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by owner id: %w", err)
	}

	if len(envJSON) > 0 {
		if err := json.Unmarshal(envJSON, &w.EncryptedSecret); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
	}
	return w, nil
}
