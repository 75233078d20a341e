package service

import (
	"stellar-remit/pkg/apperror"

	"github.com/stellar/go/keypair"
)

// StellarKeyGenerator implements ports.KeyGenerator using ed25519 keypairs
// drawn from the platform's secure random source.
type StellarKeyGenerator struct{}

// NewStellarKeyGenerator creates a new StellarKeyGenerator.
func NewStellarKeyGenerator() *StellarKeyGenerator {
	return &StellarKeyGenerator{}
}

// Generate produces a fresh keypair. The public address doubles as the
// wallet address on this ledger. Fails only on entropy-source failure.
func (g *StellarKeyGenerator) Generate() (string, string, error) {
	kp, err := keypair.Random()
	if err != nil {
		return "", "", apperror.ErrEntropyFailure(err)
	}
	return kp.Address(), kp.Seed(), nil
}

// AddressFromSeed recovers the public address for a secret seed. Used to
// resume provisioning from a locally cached envelope without regenerating
// the keypair.
func (g *StellarKeyGenerator) AddressFromSeed(seed string) (string, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return "", err
	}
	return kp.Address(), nil
}

// IsValidPublicAddress reports whether s is a well-formed public address.
func IsValidPublicAddress(s string) bool {
	_, err := keypair.ParseAddress(s)
	return err == nil
}

// IsValidSecretSeed reports whether s is a well-formed secret seed.
func IsValidSecretSeed(s string) bool {
	_, err := keypair.ParseFull(s)
	return err == nil
}
