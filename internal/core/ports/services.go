package ports

import (
	"context"

	"stellar-remit/internal/core/domain"

	"github.com/google/uuid"
)

// KeyGenerator produces ledger-native keypairs from a cryptographically
// secure random source. Pure and side-effect free; fails only on entropy
// failure, which is fatal and never retried.
type KeyGenerator interface {
	Generate() (publicAddress string, secretSeed string, err error)
	// AddressFromSeed recovers the public address for an existing seed,
	// letting provisioning resume from a cached envelope.
	AddressFromSeed(seed string) (string, error)
}

// CredentialVault derives symmetric keys from account material, seals and
// opens secret-key envelopes, and persists them in local storage.
// It performs no network calls of its own.
type CredentialVault interface {
	DeriveKey(ownerID, contactAddress string) []byte
	Encrypt(secret string, key []byte) (domain.SecretEnvelope, error)
	// Decrypt fails with an integrity error when the envelope was sealed
	// under a different key or has been tampered with.
	Decrypt(envelope domain.SecretEnvelope, key []byte) (string, error)
	StoreLocal(ctx context.Context, ownerID string, envelope domain.SecretEnvelope) error
	// LoadLocal returns nil, nil when no envelope is stored for the owner.
	LoadLocal(ctx context.Context, ownerID string) (*domain.SecretEnvelope, error)
	// RecoverSecret resolves the signing secret local-then-remote: the
	// local store first, falling back to the wallet record and re-caching.
	RecoverSecret(ctx context.Context, ownerID, contactAddress string) (string, error)
}

// AccountInfo is the subset of ledger account state the core consumes.
type AccountInfo struct {
	Address       string
	Sequence      int64
	NativeBalance string
}

// LedgerTransaction is the subset of an on-ledger transaction record used
// for confirmation.
type LedgerTransaction struct {
	ID         string
	Successful bool
	Ledger     int32
}

// PaymentSubmission holds everything needed to submit one payment.
type PaymentSubmission struct {
	SourceSecret string
	Destination  string
	Amount       string // Decimal string in ledger-native units
	Memo         string
}

// LedgerGateway is the external-collaborator boundary to the blockchain
// network: an untrusted, possibly-slow, possibly-failing peer. Callers
// bound every call with a timeout.
type LedgerGateway interface {
	LoadAccount(ctx context.Context, address string) (*AccountInfo, error)
	// NativeBalance fails if the account is unfunded or inactive.
	NativeBalance(ctx context.Context, address string) (string, error)
	SubmitPayment(ctx context.Context, sub PaymentSubmission) (txID string, err error)
	// RequestTestFunding is best-effort; failure is non-fatal.
	RequestTestFunding(ctx context.Context, address string) (bool, error)
	GetTransaction(ctx context.Context, txID string) (*LedgerTransaction, error)
}

// ProvisionRequest holds input for one-shot wallet creation.
type ProvisionRequest struct {
	OwnerID        string
	ContactAddress string
	FullName       string
	Country        string
}

// ProvisioningService performs idempotent wallet creation.
type ProvisioningService interface {
	Provision(ctx context.Context, req ProvisionRequest) (*domain.Wallet, error)
}

// WalletView pairs the persisted wallet with its live ledger balance.
type WalletView struct {
	Wallet  domain.Wallet
	Balance domain.Balance
}

// BalanceTracker loads and refreshes account balance and activation state.
type BalanceTracker interface {
	// Refresh never fails on unfunded accounts; those resolve to a zero,
	// non-activated balance.
	Refresh(ctx context.Context, publicAddress string) (domain.Balance, error)
	// LoadWallet is debounced per owner. While another load for the
	// same owner is in flight it serves the last cached view, or
	// returns (nil, nil) when no view has been cached yet.
	LoadWallet(ctx context.Context, ownerID string) (*WalletView, error)
}

// CreateTransferRequest holds validated input for creating a transfer.
type CreateTransferRequest struct {
	OwnerID        string
	RecipientID    uuid.UUID
	AmountSource   domain.Money
	FXRate         domain.Rate
	SourceCurrency string
	DestCurrency   string
	DeliveryMethod domain.DeliveryMethod
	Memo           string
}

// TransferProgress is a status event emitted as a transfer moves through
// the settlement pipeline.
type TransferProgress struct {
	TransferID uuid.UUID
	Status     domain.TransferStatus
	Progress   int
	Message    string
	LedgerTxID string
}

// ProgressSink receives settlement progress events. Implementations must
// not block; delivery is fire-and-forget from the pipeline's view.
type ProgressSink interface {
	Publish(progress TransferProgress)
}

// SettlementService drives transfers from creation to terminal status.
type SettlementService interface {
	CreateTransfer(ctx context.Context, req CreateTransferRequest) (*domain.Transfer, error)
	// Start launches the staged pipeline for a pending transfer. A second
	// Start for the same transfer while one is active is a no-op.
	Start(ctx context.Context, transferID uuid.UUID, recipientAddress string) error
	// Cancel is legal only while the transfer is pending.
	Cancel(ctx context.Context, transferID uuid.UUID) error
}
