package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"stellar-remit/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWallet() *domain.Wallet {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Wallet{
		OwnerID:       "owner-1",
		PublicAddress: "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUV",
		EncryptedSecret: domain.SecretEnvelope{
			Salt:       []byte("salt-bytes-here!"),
			Nonce:      []byte("nonce-bytes!"),
			Ciphertext: []byte("sealed-secret"),
		},
		FullName:       "Ada Example",
		ContactAddress: "ada@example.com",
		Country:        "MX",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestWalletRepo_Upsert_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := testWallet()
	envJSON, err := json.Marshal(w.EncryptedSecret)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(w.OwnerID, w.PublicAddress, envJSON,
			w.FullName, w.ContactAddress, w.Country, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	affected, err := repo.Upsert(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Upsert_ZeroAffectedRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := testWallet()
	envJSON, err := json.Marshal(w.EncryptedSecret)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(w.OwnerID, w.PublicAddress, envJSON,
			w.FullName, w.ContactAddress, w.Country, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	affected, err := repo.Upsert(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected, "zero affected rows must be surfaced, not hidden")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByOwnerID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := testWallet()
	envJSON, err := json.Marshal(w.EncryptedSecret)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("owner-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"owner_id", "public_address", "encrypted_secret",
			"full_name", "contact_address", "country", "created_at", "updated_at",
		}).AddRow(
			w.OwnerID, w.PublicAddress, envJSON,
			w.FullName, w.ContactAddress, w.Country, w.CreatedAt, w.UpdatedAt,
		))

	result, err := repo.GetByOwnerID(context.Background(), "owner-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.PublicAddress, result.PublicAddress)
	assert.Equal(t, w.EncryptedSecret, result.EncryptedSecret)
	assert.Equal(t, "MX", result.Country)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByOwnerID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("missing-owner").
		WillReturnRows(pgxmock.NewRows([]string{
			"owner_id", "public_address", "encrypted_secret",
			"full_name", "contact_address", "country", "created_at", "updated_at",
		}))

	result, err := repo.GetByOwnerID(context.Background(), "missing-owner")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
