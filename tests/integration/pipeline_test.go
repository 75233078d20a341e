package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"stellar-remit/config"
	"stellar-remit/internal/adapter/storage/redis"
	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports"
	"stellar-remit/internal/service"
	"stellar-remit/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStack wires the production services against in-memory repos, a
// fake ledger and a miniredis-backed vault store.
type testStack struct {
	provisioning *service.ProvisioningOrchestrator
	settlement   *service.SettlementOrchestrator
	balances     *service.BalanceService
	walletRepo   *inMemoryWalletRepo
	transferRepo *inMemoryTransferRepo
	ledger       *fakeLedger
	keys         *countingKeyGenerator
	sink         *collectingSink
	redis        *miniredis.Miniredis
}

type collectingSink struct {
	mu     sync.Mutex
	events []ports.TransferProgress
}

func (s *collectingSink) Publish(p ports.TransferProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, p)
}

func (s *collectingSink) statuses(id uuid.UUID) []domain.TransferStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransferStatus
	for _, e := range s.events {
		if e.TransferID == id {
			out = append(out, e.Status)
		}
	}
	return out
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	vaultStore := redis.NewVaultStore(rdb)

	log := logger.New("error", false)
	walletRepo := newInMemoryWalletRepo()
	transferRepo := newInMemoryTransferRepo()
	ledger := newFakeLedger()
	keys := &countingKeyGenerator{inner: service.NewStellarKeyGenerator()}
	sink := &collectingSink{}

	vault := service.NewVaultService(vaultStore, walletRepo, "integration-test-salt", log)

	provisioning := service.NewProvisioningOrchestrator(
		keys, vault, walletRepo, ledger,
		config.ProvisioningConfig{
			MaxRetries:    2,
			RetryBackoff:  time.Millisecond,
			RecordTimeout: time.Second,
			LoadDebounce:  time.Second,
		},
		time.Second, log,
	)

	balances := service.NewBalanceService(ledger, walletRepo, time.Second, 0, log)

	settlement := service.NewSettlementOrchestrator(
		transferRepo, walletRepo, vault, ledger, balances, sink,
		config.SettlementConfig{
			ProcessingDwell: time.Millisecond,
			SendingDwell:    time.Millisecond,
			CompletingDwell: time.Millisecond,
		},
		config.LedgerConfig{
			CallTimeout:     time.Second,
			ConfirmAttempts: 3,
			ConfirmInterval: time.Millisecond,
		},
		log,
	)

	return &testStack{
		provisioning: provisioning,
		settlement:   settlement,
		balances:     balances,
		walletRepo:   walletRepo,
		transferRepo: transferRepo,
		ledger:       ledger,
		keys:         keys,
		sink:         sink,
		redis:        mr,
	}
}

func TestProvisionAndSettleEndToEnd(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	sender, err := stack.provisioning.Provision(ctx, ports.ProvisionRequest{
		OwnerID:        "sender-1",
		ContactAddress: "sender@example.com",
		FullName:       "Sender One",
		Country:        "US",
	})
	require.NoError(t, err)
	require.NotNil(t, sender)

	recipient, err := stack.provisioning.Provision(ctx, ports.ProvisionRequest{
		OwnerID:        "recipient-1",
		ContactAddress: "recipient@example.com",
		FullName:       "Recipient One",
		Country:        "MX",
	})
	require.NoError(t, err)
	require.NotNil(t, recipient)

	// Faucet activated both accounts.
	view, err := stack.balances.LoadWallet(ctx, "sender-1")
	require.NoError(t, err)
	assert.True(t, view.Balance.IsActivated)
	assert.Equal(t, "10000.0000000", view.Balance.Native)

	amount, err := domain.ParseMoney("100.00")
	require.NoError(t, err)
	rate, err := domain.ParseRate("18.4500")
	require.NoError(t, err)

	transfer, err := stack.settlement.CreateTransfer(ctx, ports.CreateTransferRequest{
		OwnerID:        "sender-1",
		RecipientID:    uuid.New(),
		AmountSource:   amount,
		FXRate:         rate,
		SourceCurrency: "USD",
		DestCurrency:   "MXN",
		DeliveryMethod: domain.DeliveryMethodBank,
	})
	require.NoError(t, err)
	assert.Equal(t, "1845.00", transfer.AmountDestination.String())
	assert.Equal(t, "102.99", transfer.TotalCharged.String())

	require.NoError(t, stack.settlement.Start(ctx, transfer.ID, recipient.PublicAddress))

	require.Eventually(t, func() bool {
		current, err := stack.transferRepo.GetByID(ctx, transfer.ID)
		return err == nil && current != nil && current.Status == domain.TransferStatusCompleted
	}, 5*time.Second, 10*time.Millisecond, "transfer did not complete")

	final, err := stack.transferRepo.GetByID(ctx, transfer.ID)
	require.NoError(t, err)
	require.NotNil(t, final.LedgerTxID)
	require.NotNil(t, final.CompletedAt)

	// The submitted payment exists on the ledger.
	tx, err := stack.ledger.GetTransaction(ctx, *final.LedgerTxID)
	require.NoError(t, err)
	assert.True(t, tx.Successful)
	assert.Equal(t, 1, stack.ledger.submitCount(), "payment must be submitted exactly once")

	assert.Equal(t, []domain.TransferStatus{
		domain.TransferStatusPending,
		domain.TransferStatusProcessing,
		domain.TransferStatusSending,
		domain.TransferStatusCompleting,
		domain.TransferStatusCompleted,
	}, stack.sink.statuses(transfer.ID))
}

func TestConcurrentProvisioningCreatesOneWallet(t *testing.T) {
	stack := newTestStack(t)
	req := ports.ProvisionRequest{
		OwnerID:        "racer",
		ContactAddress: "racer@example.com",
		FullName:       "Racer",
		Country:        "US",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.provisioning.Provision(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, stack.walletRepo.count())
	assert.Equal(t, 1, stack.keys.count(), "exactly one keypair for the owner")

	// Every subsequent call returns the same record.
	wallet, err := stack.provisioning.Provision(context.Background(), req)
	require.NoError(t, err)
	stored, err := stack.walletRepo.GetByOwnerID(context.Background(), "racer")
	require.NoError(t, err)
	assert.Equal(t, stored.PublicAddress, wallet.PublicAddress)
}

func TestSecretSurvivesLocalVaultLoss(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	wallet, err := stack.provisioning.Provision(ctx, ports.ProvisionRequest{
		OwnerID:        "owner-loss",
		ContactAddress: "loss@example.com",
		FullName:       "Loss Case",
		Country:        "US",
	})
	require.NoError(t, err)

	// Simulate a device wipe: the local vault is emptied, but the remote
	// wallet record still carries the envelope.
	stack.redis.FlushAll()

	rdb := goredis.NewClient(&goredis.Options{Addr: stack.redis.Addr()})
	vault := service.NewVaultService(redis.NewVaultStore(rdb), stack.walletRepo, "integration-test-salt", logger.New("error", false))

	secret, err := vault.RecoverSecret(ctx, "owner-loss", "loss@example.com")
	require.NoError(t, err)

	recovered, err := service.NewStellarKeyGenerator().AddressFromSeed(secret)
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicAddress, recovered)
}

func TestCancelledTransferNeverSubmits(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	amount, err := domain.ParseMoney("50.00")
	require.NoError(t, err)
	rate, err := domain.ParseRate("1.0000")
	require.NoError(t, err)

	transfer, err := stack.settlement.CreateTransfer(ctx, ports.CreateTransferRequest{
		OwnerID:        "sender-cancel",
		RecipientID:    uuid.New(),
		AmountSource:   amount,
		FXRate:         rate,
		DeliveryMethod: domain.DeliveryMethodWallet,
	})
	require.NoError(t, err)

	require.NoError(t, stack.settlement.Cancel(ctx, transfer.ID))

	err = stack.settlement.Start(ctx, transfer.ID, "GDESTINATION")
	assert.Error(t, err, "a cancelled transfer cannot start")

	current, err := stack.transferRepo.GetByID(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, current.Status)
	assert.Nil(t, current.LedgerTxID)
	assert.Equal(t, 0, stack.ledger.submitCount())
}

func TestCancelRacingPipelineNeverLosesSuccess(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	sender, err := stack.provisioning.Provision(ctx, ports.ProvisionRequest{
		OwnerID:        "sender-race",
		ContactAddress: "race@example.com",
		FullName:       "Race Case",
		Country:        "US",
	})
	require.NoError(t, err)
	require.NotNil(t, sender)

	amount, err := domain.ParseMoney("25.00")
	require.NoError(t, err)
	rate, err := domain.ParseRate("1.0000")
	require.NoError(t, err)

	transfer, err := stack.settlement.CreateTransfer(ctx, ports.CreateTransferRequest{
		OwnerID:        "sender-race",
		RecipientID:    uuid.New(),
		AmountSource:   amount,
		FXRate:         rate,
		DeliveryMethod: domain.DeliveryMethodWallet,
	})
	require.NoError(t, err)

	require.NoError(t, stack.settlement.Start(ctx, transfer.ID, sender.PublicAddress))
	cancelErr := stack.settlement.Cancel(ctx, transfer.ID)
	stack.settlement.Wait()

	current, err := stack.transferRepo.GetByID(ctx, transfer.ID)
	require.NoError(t, err)

	// Whichever side won the status row, the record must agree with the
	// reported outcome: a successful cancel stays cancelled and nothing
	// reaches the ledger; a lost cancel lets the pipeline finish.
	if cancelErr == nil {
		assert.Equal(t, domain.TransferStatusCancelled, current.Status)
		assert.Equal(t, 0, stack.ledger.submitCount())
	} else {
		assert.Equal(t, domain.TransferStatusCompleted, current.Status)
		assert.Equal(t, 1, stack.ledger.submitCount())
	}
}
