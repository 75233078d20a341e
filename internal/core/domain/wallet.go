package domain

import (
	"time"
)

// SecretEnvelope is the encrypted-at-rest representation of a private
// signing key. Ciphertext is sealed with AES-256-GCM under a key derived
// from owner-identifier and contact-address material; decryption with the
// wrong key fails the authentication tag rather than yielding garbage.
type SecretEnvelope struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// IsZero reports whether the envelope carries no ciphertext.
func (e SecretEnvelope) IsZero() bool {
	return len(e.Ciphertext) == 0
}

// Wallet is a custodial ledger wallet, created at most once per owner.
type Wallet struct {
	OwnerID         string         `json:"owner_id"`
	PublicAddress   string         `json:"public_address"` // Immutable once set
	EncryptedSecret SecretEnvelope `json:"-"`              // Never expose or log
	FullName        string         `json:"full_name,omitempty"`
	ContactAddress  string         `json:"contact_address,omitempty"`
	Country         string         `json:"country,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Balance is a point-in-time view of the wallet's on-ledger funds.
// A ledger account becomes usable only once it holds a minimum balance,
// so activation is derived from the balance itself.
type Balance struct {
	Native      string `json:"native"` // Ledger-native units, 7 decimal places
	IsActivated bool   `json:"is_activated"`
}
