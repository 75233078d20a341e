package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// TransferStatus is the lifecycle state of a money transfer.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusSending    TransferStatus = "sending"
	TransferStatusCompleting TransferStatus = "completing"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusFailed     TransferStatus = "failed"
	TransferStatusCancelled  TransferStatus = "cancelled"
)

// Progress maps a status to its pipeline progress percentage.
func (s TransferStatus) Progress() int {
	switch s {
	case TransferStatusPending:
		return 10
	case TransferStatusProcessing:
		return 20
	case TransferStatusSending:
		return 50
	case TransferStatusCompleting:
		return 80
	case TransferStatusCompleted:
		return 100
	default:
		return 0
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted ||
		s == TransferStatusFailed ||
		s == TransferStatusCancelled
}

// DeliveryMethod selects how the recipient receives funds; it determines
// the flat transfer fee.
type DeliveryMethod string

const (
	DeliveryMethodBank   DeliveryMethod = "bank"
	DeliveryMethodCash   DeliveryMethod = "cash"
	DeliveryMethodWallet DeliveryMethod = "wallet"
)

// FeeFor returns the flat fee for a delivery method. Unknown methods get
// the bank-transfer fee.
func FeeFor(method DeliveryMethod) Money {
	switch method {
	case DeliveryMethodCash:
		return 499
	case DeliveryMethodWallet:
		return 199
	default:
		return 299
	}
}

// Transfer is a single remittance moving from creation to on-ledger
// settlement. Mutated exclusively by the settlement pipeline; the
// presentation layer only reads snapshots.
type Transfer struct {
	ID                uuid.UUID      `json:"id"`
	OwnerID           string         `json:"owner_id"`
	RecipientID       uuid.UUID      `json:"recipient_id"`
	AmountSource      Money          `json:"amount_source"`
	AmountDestination Money          `json:"amount_destination"`
	FXRate            Rate           `json:"fx_rate"`
	Fee               Money          `json:"fee"`
	TotalCharged      Money          `json:"total_charged"`
	SourceCurrency    string         `json:"source_currency"`
	DestCurrency      string         `json:"dest_currency"`
	DeliveryMethod    DeliveryMethod `json:"delivery_method"`
	Status            TransferStatus `json:"status"`
	LedgerTxID        *string        `json:"ledger_tx_id,omitempty"` // Set only after a successful submission
	TrackingNumber    string         `json:"tracking_number"`        // Globally unique, immutable
	Memo              string         `json:"memo,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"` // Set exactly once, on completion
}

// CanCancel reports whether cancellation is still legal. Once the pipeline
// has advanced past pending the funds may already be in flight.
func (t *Transfer) CanCancel() bool {
	return t.Status == TransferStatusPending
}

const trackingAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTrackingNumber generates an opaque tracking number:
// "ST" + unix milliseconds + 5 random base36 characters.
func NewTrackingNumber() (string, error) {
	suffix := make([]byte, 5)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(trackingAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generating tracking suffix: %w", err)
		}
		suffix[i] = trackingAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ST%d%s", time.Now().UnixMilli(), suffix), nil
}
