package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports/mocks"
	"stellar-remit/pkg/apperror"
	"stellar-remit/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newBalanceService(t *testing.T, debounce time.Duration) (*BalanceService, *mocks.MockLedgerGateway, *mocks.MockWalletRepository) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerGateway(ctrl)
	walletRepo := mocks.NewMockWalletRepository(ctrl)
	svc := NewBalanceService(ledger, walletRepo, time.Second, debounce, logger.NewWithWriter("error", io.Discard))
	return svc, ledger, walletRepo
}

func TestBalanceService_RefreshFunded(t *testing.T) {
	svc, ledger, _ := newBalanceService(t, 0)

	ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("10000.0000000", nil)

	balance, err := svc.Refresh(context.Background(), testPublicAddr)
	require.NoError(t, err)
	assert.Equal(t, "10000.0000000", balance.Native)
	assert.True(t, balance.IsActivated)
}

func TestBalanceService_RefreshAbsorbsLedgerFailure(t *testing.T) {
	svc, ledger, _ := newBalanceService(t, 0)

	ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).
		Return("", apperror.ErrAccountNotFound(testPublicAddr))

	balance, err := svc.Refresh(context.Background(), testPublicAddr)
	require.NoError(t, err, "unfunded accounts are not an error")
	assert.Equal(t, "0", balance.Native)
	assert.False(t, balance.IsActivated)
}

func TestBalanceService_RefreshZeroBalanceNotActivated(t *testing.T) {
	svc, ledger, _ := newBalanceService(t, 0)

	ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("0.0000000", nil)

	balance, err := svc.Refresh(context.Background(), testPublicAddr)
	require.NoError(t, err)
	assert.False(t, balance.IsActivated)
}

func TestBalanceService_LoadWallet(t *testing.T) {
	svc, ledger, walletRepo := newBalanceService(t, 0)
	wallet := &domain.Wallet{OwnerID: testOwnerID, PublicAddress: testPublicAddr}

	walletRepo.EXPECT().GetByOwnerID(gomock.Any(), testOwnerID).Return(wallet, nil)
	ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("25.5000000", nil)

	view, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, testPublicAddr, view.Wallet.PublicAddress)
	assert.Equal(t, "25.5000000", view.Balance.Native)
	assert.True(t, view.Balance.IsActivated)
}

func TestBalanceService_LoadWalletNotFound(t *testing.T) {
	svc, _, walletRepo := newBalanceService(t, 0)

	walletRepo.EXPECT().GetByOwnerID(gomock.Any(), testOwnerID).Return(nil, nil)

	_, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "REC_001", appErr.Code)
}

func TestBalanceService_LoadWalletDebounced(t *testing.T) {
	svc, ledger, walletRepo := newBalanceService(t, time.Minute)
	wallet := &domain.Wallet{OwnerID: testOwnerID, PublicAddress: testPublicAddr}

	// One round trip only, second load is served from cache.
	walletRepo.EXPECT().GetByOwnerID(gomock.Any(), testOwnerID).Return(wallet, nil).Times(1)
	ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("10.0000000", nil).Times(1)

	first, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.NoError(t, err)

	second, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, first.Balance, second.Balance)
}

func TestBalanceService_LoadWalletDebounceExpires(t *testing.T) {
	svc, ledger, walletRepo := newBalanceService(t, time.Millisecond)
	wallet := &domain.Wallet{OwnerID: testOwnerID, PublicAddress: testPublicAddr}

	walletRepo.EXPECT().GetByOwnerID(gomock.Any(), testOwnerID).Return(wallet, nil).Times(2)
	gomock.InOrder(
		ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("10.0000000", nil),
		ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("20.0000000", nil),
	)

	_, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	view, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, "20.0000000", view.Balance.Native)
}

func TestBalanceService_LoadWalletConcurrentColdLoadNoOps(t *testing.T) {
	svc, ledger, walletRepo := newBalanceService(t, 0)
	wallet := &domain.Wallet{OwnerID: testOwnerID, PublicAddress: testPublicAddr}

	started := make(chan struct{})
	release := make(chan struct{})

	// One round trip total: the second caller finds the lock held and
	// nothing cached, and backs off instead of issuing its own read.
	walletRepo.EXPECT().GetByOwnerID(gomock.Any(), testOwnerID).
		DoAndReturn(func(context.Context, string) (*domain.Wallet, error) {
			close(started)
			<-release
			return wallet, nil
		}).Times(1)
	ledger.EXPECT().NativeBalance(gomock.Any(), testPublicAddr).Return("10.0000000", nil).Times(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		view, err := svc.LoadWallet(context.Background(), testOwnerID)
		assert.NoError(t, err)
		assert.NotNil(t, view)
	}()

	<-started
	view, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.NoError(t, err)
	assert.Nil(t, view)

	close(release)
	<-done
}

func TestBalanceService_LoadWalletRecordStoreError(t *testing.T) {
	svc, _, walletRepo := newBalanceService(t, 0)

	walletRepo.EXPECT().GetByOwnerID(gomock.Any(), testOwnerID).
		Return(nil, errors.New("pool closed"))

	_, err := svc.LoadWallet(context.Background(), testOwnerID)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "REC_002", appErr.Code)
}
