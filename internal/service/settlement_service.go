package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"stellar-remit/config"
	"stellar-remit/internal/core/domain"
	"stellar-remit/internal/core/ports"
	"stellar-remit/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Progress messages shown to the sender as the pipeline advances.
var progressMessages = map[domain.TransferStatus]string{
	domain.TransferStatusPending:    "Initiating transfer...",
	domain.TransferStatusProcessing: "Processing your transfer...",
	domain.TransferStatusSending:    "Sending to Stellar network...",
	domain.TransferStatusCompleting: "Completing transaction...",
	domain.TransferStatusCompleted:  "Transfer completed successfully!",
	domain.TransferStatusFailed:     "Transfer failed. Please try again.",
}

// runner is one in-flight settlement pipeline.
type runner struct {
	transferID       uuid.UUID
	recipientAddress string
	stop             chan struct{}
	stopOnce         sync.Once
}

func (r *runner) cancel() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// SettlementOrchestrator implements ports.SettlementService: it creates
// transfers and drives each through the staged pipeline
// pending -> processing -> sending -> completing -> completed, submitting
// the ledger payment exactly once during the sending stage.
type SettlementOrchestrator struct {
	transferRepo ports.TransferRepository
	walletRepo   ports.WalletRepository
	vault        ports.CredentialVault
	ledger       ports.LedgerGateway
	balances     ports.BalanceTracker
	sink         ports.ProgressSink
	cfg          config.SettlementConfig
	ledgerCfg    config.LedgerConfig
	log          zerolog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*runner
	wg     sync.WaitGroup
}

// NewSettlementOrchestrator creates a new SettlementOrchestrator.
func NewSettlementOrchestrator(
	transferRepo ports.TransferRepository,
	walletRepo ports.WalletRepository,
	vault ports.CredentialVault,
	ledger ports.LedgerGateway,
	balances ports.BalanceTracker,
	sink ports.ProgressSink,
	cfg config.SettlementConfig,
	ledgerCfg config.LedgerConfig,
	log zerolog.Logger,
) *SettlementOrchestrator {
	if sink == nil {
		sink = NopProgressSink{}
	}
	return &SettlementOrchestrator{
		transferRepo: transferRepo,
		walletRepo:   walletRepo,
		vault:        vault,
		ledger:       ledger,
		balances:     balances,
		sink:         sink,
		cfg:          cfg,
		ledgerCfg:    ledgerCfg,
		log:          log,
		active:       make(map[uuid.UUID]*runner),
	}
}

// CreateTransfer validates and quotes the request and persists the
// transfer in pending status. The destination amount and total charge are
// fixed here; the pipeline never re-quotes.
func (s *SettlementOrchestrator) CreateTransfer(ctx context.Context, req ports.CreateTransferRequest) (*domain.Transfer, error) {
	if !req.AmountSource.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.OwnerID == "" || req.RecipientID == uuid.Nil {
		return nil, apperror.ErrRecordStore(errors.New("owner and recipient are required"))
	}

	fee := domain.FeeFor(req.DeliveryMethod)
	destination, total := domain.Quote(req.AmountSource, req.FXRate, fee)

	tracking, err := domain.NewTrackingNumber()
	if err != nil {
		return nil, apperror.ErrRecordStore(err)
	}

	transfer := &domain.Transfer{
		ID:                uuid.New(),
		OwnerID:           req.OwnerID,
		RecipientID:       req.RecipientID,
		AmountSource:      req.AmountSource,
		AmountDestination: destination,
		FXRate:            req.FXRate,
		Fee:               fee,
		TotalCharged:      total,
		SourceCurrency:    req.SourceCurrency,
		DestCurrency:      req.DestCurrency,
		DeliveryMethod:    req.DeliveryMethod,
		Status:            domain.TransferStatusPending,
		TrackingNumber:    tracking,
		Memo:              req.Memo,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.transferRepo.Create(ctx, transfer); err != nil {
		return nil, apperror.ErrRecordStore(err)
	}

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("tracking_number", tracking).
		Str("amount_source", transfer.AmountSource.String()).
		Str("total_charged", transfer.TotalCharged.String()).
		Msg("transfer created")

	return transfer, nil
}

// Start launches the pipeline for a pending transfer in a background
// goroutine. Starting a transfer that already has an active runner is a
// no-op; the pipeline outlives the caller's context.
func (s *SettlementOrchestrator) Start(ctx context.Context, transferID uuid.UUID, recipientAddress string) error {
	transfer, err := s.transferRepo.GetByID(ctx, transferID)
	if err != nil {
		return apperror.ErrRecordStore(err)
	}
	if transfer == nil {
		return apperror.ErrNotFound("transfer")
	}
	if transfer.Status != domain.TransferStatusPending {
		return apperror.ErrNotStartable(string(transfer.Status))
	}

	s.mu.Lock()
	if _, running := s.active[transferID]; running {
		s.mu.Unlock()
		s.log.Debug().Str("transfer_id", transferID.String()).Msg("pipeline already running")
		return nil
	}
	r := &runner{
		transferID:       transferID,
		recipientAddress: recipientAddress,
		stop:             make(chan struct{}),
	}
	s.active[transferID] = r
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, transferID)
			s.mu.Unlock()
		}()
		s.run(r, transfer)
	}()

	return nil
}

// Cancel stops a pending transfer. Once the pipeline has advanced past
// pending the payment may already be in flight and cancellation is
// rejected.
func (s *SettlementOrchestrator) Cancel(ctx context.Context, transferID uuid.UUID) error {
	transfer, err := s.transferRepo.GetByID(ctx, transferID)
	if err != nil {
		return apperror.ErrRecordStore(err)
	}
	if transfer == nil {
		return apperror.ErrNotFound("transfer")
	}
	if !transfer.CanCancel() {
		return apperror.ErrCancelNotAllowed(string(transfer.Status))
	}

	moved, err := s.transferRepo.UpdateStatus(ctx, transferID, domain.TransferStatusPending, domain.TransferStatusCancelled)
	if err != nil {
		return apperror.ErrRecordStore(err)
	}
	if !moved {
		// The pipeline advanced between our read and the guarded write.
		current, rerr := s.transferRepo.GetByID(ctx, transferID)
		if rerr != nil {
			return apperror.ErrRecordStore(rerr)
		}
		if current == nil {
			return apperror.ErrNotFound("transfer")
		}
		return apperror.ErrCancelNotAllowed(string(current.Status))
	}

	s.mu.Lock()
	r, running := s.active[transferID]
	s.mu.Unlock()
	if running {
		r.cancel()
	}

	s.log.Info().Str("transfer_id", transferID.String()).Msg("transfer cancelled")
	return nil
}

// Wait blocks until every active pipeline has finished. Used on shutdown.
func (s *SettlementOrchestrator) Wait() {
	s.wg.Wait()
}

// run drives one transfer through the pipeline. It uses a detached
// context with per-call timeouts: the pipeline survives the initiating
// request and stops only on cancellation or a terminal state.
func (s *SettlementOrchestrator) run(r *runner, transfer *domain.Transfer) {
	ctx := context.Background()
	log := s.log.With().
		Str("transfer_id", transfer.ID.String()).
		Str("tracking_number", transfer.TrackingNumber).
		Logger()

	s.emit(transfer.ID, domain.TransferStatusPending, "")

	if !s.advance(ctx, r, transfer.ID, s.cfg.ProcessingDwell, domain.TransferStatusPending, domain.TransferStatusProcessing, log) {
		return
	}
	if !s.advance(ctx, r, transfer.ID, s.cfg.SendingDwell, domain.TransferStatusProcessing, domain.TransferStatusSending, log) {
		return
	}

	txID, err := s.submitPayment(ctx, transfer, r.recipientAddress)
	if err != nil {
		log.Error().Err(err).Msg("payment submission failed")
		s.fail(ctx, transfer.ID, domain.TransferStatusSending, log)
		return
	}
	log.Info().Str("ledger_tx_id", txID).Msg("payment submitted")

	if err := s.persist(ctx, func(c context.Context) error {
		return s.transferRepo.MarkSubmitted(c, transfer.ID, txID)
	}); err != nil {
		// The payment is on the ledger; losing the record write must not
		// fail the transfer. Surface it loudly and keep going.
		log.Error().Err(err).Msg("recording submission failed")
	}
	s.emit(transfer.ID, domain.TransferStatusCompleting, txID)

	if !s.dwell(r, s.cfg.CompletingDwell) {
		// Cancellation is rejected past pending, so a stop here only
		// means shutdown; the transfer remains completing and resumable.
		return
	}
	s.confirm(ctx, txID, log)

	completedAt := time.Now().UTC()
	if err := s.persist(ctx, func(c context.Context) error {
		return s.transferRepo.MarkCompleted(c, transfer.ID, txID, completedAt)
	}); err != nil {
		log.Error().Err(err).Msg("recording completion failed")
		return
	}
	s.emit(transfer.ID, domain.TransferStatusCompleted, txID)
	log.Info().Msg("transfer completed")

	s.refreshSenderBalance(ctx, transfer.OwnerID)
}

// advance waits out the stage dwell, then moves the transfer to the next
// status with a guarded write. Returns false when the pipeline should
// stop: the dwell was interrupted, the write failed, or a concurrent
// transition (cancel, typically) won the row first.
func (s *SettlementOrchestrator) advance(ctx context.Context, r *runner, id uuid.UUID, dwell time.Duration, from, next domain.TransferStatus, log zerolog.Logger) bool {
	if !s.dwell(r, dwell) {
		log.Info().Str("status", string(next)).Msg("pipeline stopped before stage")
		return false
	}

	var moved bool
	if err := s.persist(ctx, func(c context.Context) error {
		var uerr error
		moved, uerr = s.transferRepo.UpdateStatus(c, id, from, next)
		return uerr
	}); err != nil {
		log.Error().Err(err).Str("status", string(next)).Msg("persisting stage failed")
		s.fail(ctx, id, from, log)
		return false
	}
	if !moved {
		log.Info().Str("status", string(next)).Msg("stage transition superseded, stopping pipeline")
		return false
	}

	s.emit(id, next, "")
	return true
}

// dwell sleeps for the stage duration, returning false if the runner is
// stopped first.
func (s *SettlementOrchestrator) dwell(r *runner, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-r.stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.stop:
		return false
	}
}

// submitPayment recovers the sender's signing secret and submits the
// payment exactly once. No retries at this level: a duplicate submission
// is worse than a failed transfer.
func (s *SettlementOrchestrator) submitPayment(ctx context.Context, transfer *domain.Transfer, recipientAddress string) (string, error) {
	wallet, err := s.walletRepo.GetByOwnerID(ctx, transfer.OwnerID)
	if err != nil {
		return "", apperror.ErrRecordStore(err)
	}
	if wallet == nil {
		return "", apperror.ErrNotFound("wallet")
	}

	secret, err := s.vault.RecoverSecret(ctx, transfer.OwnerID, wallet.ContactAddress)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.ledgerCfg.CallTimeout)
	defer cancel()

	return s.ledger.SubmitPayment(callCtx, ports.PaymentSubmission{
		SourceSecret: secret,
		Destination:  recipientAddress,
		Amount:       transfer.AmountSource.String(),
		Memo:         transfer.TrackingNumber,
	})
}

// confirm polls the ledger for the submitted transaction. Best-effort:
// the submission already succeeded, so confirmation failures are logged
// and the transfer still completes.
func (s *SettlementOrchestrator) confirm(ctx context.Context, txID string, log zerolog.Logger) {
	for attempt := 0; attempt < s.ledgerCfg.ConfirmAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.ledgerCfg.ConfirmInterval)
		}
		callCtx, cancel := context.WithTimeout(ctx, s.ledgerCfg.CallTimeout)
		tx, err := s.ledger.GetTransaction(callCtx, txID)
		cancel()
		if err == nil && tx != nil {
			if !tx.Successful {
				log.Warn().Str("ledger_tx_id", txID).Msg("ledger reports transaction unsuccessful")
			}
			return
		}
	}
	log.Warn().Str("ledger_tx_id", txID).Msg("transaction not confirmed on ledger, completing anyway")
}

// fail moves the transfer from its current stage to failed and emits the
// failure event. The write is guarded: if another transition already won
// the row, the persisted state stands and no event is emitted.
func (s *SettlementOrchestrator) fail(ctx context.Context, id uuid.UUID, from domain.TransferStatus, log zerolog.Logger) {
	var moved bool
	if err := s.persist(ctx, func(c context.Context) error {
		var uerr error
		moved, uerr = s.transferRepo.UpdateStatus(c, id, from, domain.TransferStatusFailed)
		return uerr
	}); err != nil {
		log.Error().Err(err).Msg("persisting failed status failed")
		s.emit(id, domain.TransferStatusFailed, "")
		return
	}
	if !moved {
		log.Info().Msg("transfer already transitioned, skipping failed write")
		return
	}
	s.emit(id, domain.TransferStatusFailed, "")
}

// persist runs a record-store write with a bounded timeout.
func (s *SettlementOrchestrator) persist(ctx context.Context, write func(context.Context) error) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.ledgerCfg.CallTimeout)
	defer cancel()
	return write(writeCtx)
}

func (s *SettlementOrchestrator) refreshSenderBalance(ctx context.Context, ownerID string) {
	if s.balances == nil {
		return
	}
	wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
	if err != nil || wallet == nil {
		return
	}
	if _, err := s.balances.Refresh(ctx, wallet.PublicAddress); err != nil {
		s.log.Debug().Err(err).Str("owner_id", ownerID).Msg("post-settlement balance refresh failed")
	}
}

func (s *SettlementOrchestrator) emit(id uuid.UUID, status domain.TransferStatus, txID string) {
	s.sink.Publish(ports.TransferProgress{
		TransferID: id,
		Status:     status,
		Progress:   status.Progress(),
		Message:    progressMessages[status],
		LedgerTxID: txID,
	})
}

// NopProgressSink discards progress events.
type NopProgressSink struct{}

func (NopProgressSink) Publish(ports.TransferProgress) {}
