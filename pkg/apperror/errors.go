package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// AppError is a structured error carrying a stable code and retry class.
type AppError struct {
	Code      string `json:"error_code"`
	Message   string `json:"message"`
	Transient bool   `json:"-"` // Eligible for bounded retry with fixed backoff
	Err       error  `json:"-"` // Wrapped internal error (not exposed to callers' users)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ---- Key material (KEY) ----

// ErrEntropyFailure marks a failed read from the secure random source.
// Fatal: never retried.
func ErrEntropyFailure(err error) *AppError {
	return Wrap("KEY_001", "Entropy source failure during keypair generation", err)
}

// ---- Credential vault (VAULT) ----

// ErrIntegrity marks a wrong password or corrupted envelope.
func ErrIntegrity(err error) *AppError {
	return Wrap("VAULT_001", "Envelope integrity check failed", err)
}

func ErrVaultStorage(err error) *AppError {
	return Wrap("VAULT_002", "Vault storage failure", err)
}

// ErrSecretUnavailable means no envelope exists locally or remotely for the owner.
func ErrSecretUnavailable() *AppError {
	return New("VAULT_003", "No signing secret available for owner")
}

// ---- Network (NET) ----

// ErrTransientNetwork marks a connection/timeout/exhaustion class failure.
// Retried up to a small fixed bound with fixed delay, then surfaced.
func ErrTransientNetwork(err error) *AppError {
	return &AppError{
		Code:      "NET_001",
		Message:   "Transient network failure",
		Transient: true,
		Err:       err,
	}
}

// ---- Ledger (LEDGER) ----

// ErrSubmission marks a payment the ledger rejected or failed to accept.
// Surfaced as transfer failure, no automatic retry.
func ErrSubmission(err error) *AppError {
	return Wrap("LEDGER_001", "Ledger rejected payment submission", err)
}

func ErrAccountNotFound(address string) *AppError {
	return New("LEDGER_002", fmt.Sprintf("Ledger account %s not found", address))
}

// ---- Provisioning (PROV) ----

// ErrProvisioningFailed wraps any non-retryable or retry-exhausted failure
// during wallet creation.
func ErrProvisioningFailed(err error) *AppError {
	return Wrap("PROV_001", "Wallet provisioning failed", err)
}

// ---- Records (REC) ----

func ErrNotFound(entity string) *AppError {
	return New("REC_001", fmt.Sprintf("%s not found", entity))
}

func ErrRecordStore(err error) *AppError {
	return Wrap("REC_002", "Record store failure", err)
}

// ---- Transfers (XFER) ----

// ErrCancelNotAllowed rejects cancellation once the pipeline has advanced
// past pending: the funds may already be in flight.
func ErrCancelNotAllowed(status string) *AppError {
	return New("XFER_001", fmt.Sprintf("Transfer in status %q cannot be cancelled", status))
}

func ErrInvalidAmount() *AppError {
	return New("XFER_002", "Invalid amount")
}

// ErrNotStartable rejects launching the settlement pipeline for a
// transfer that is not pending.
func ErrNotStartable(status string) *AppError {
	return New("XFER_003", fmt.Sprintf("Transfer in status %q cannot start settlement", status))
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Transient
	}
	return false
}

// Transient-network signatures matched by substring when no typed error
// is available (driver and HTTP errors frequently flatten to strings).
var transientSignatures = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"network request failed",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"too many connections",
	"resource temporarily unavailable",
	"resource exhausted",
	"connection timed out",
	"tls handshake timeout",
	"unexpected eof",
}

// Classify wraps err as transient when it carries a connection, timeout or
// resource-exhaustion signature; otherwise it returns err unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransientNetwork(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTransientNetwork(err)
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return ErrTransientNetwork(err)
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return ErrTransientNetwork(err)
		}
	}

	return err
}
