package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferStatus_Progress(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   int
	}{
		{TransferStatusPending, 10},
		{TransferStatusProcessing, 20},
		{TransferStatusSending, 50},
		{TransferStatusCompleting, 80},
		{TransferStatusCompleted, 100},
		{TransferStatusFailed, 0},
		{TransferStatusCancelled, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Progress())
		})
	}
}

func TestTransferStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   bool
	}{
		{TransferStatusPending, false},
		{TransferStatusProcessing, false},
		{TransferStatusSending, false},
		{TransferStatusCompleting, false},
		{TransferStatusCompleted, true},
		{TransferStatusFailed, true},
		{TransferStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestTransfer_CanCancel(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   bool
	}{
		{TransferStatusPending, true},
		{TransferStatusProcessing, false},
		{TransferStatusSending, false},
		{TransferStatusCompleting, false},
		{TransferStatusCompleted, false},
		{TransferStatusFailed, false},
		{TransferStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tr := &Transfer{Status: tt.status}
			assert.Equal(t, tt.want, tr.CanCancel())
		})
	}
}

func TestFeeFor(t *testing.T) {
	assert.Equal(t, Money(299), FeeFor(DeliveryMethodBank))
	assert.Equal(t, Money(499), FeeFor(DeliveryMethodCash))
	assert.Equal(t, Money(199), FeeFor(DeliveryMethodWallet))
	assert.Equal(t, Money(299), FeeFor(DeliveryMethod("unknown")))
}

func TestNewTrackingNumber(t *testing.T) {
	tn, err := NewTrackingNumber()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tn, "ST"))
	assert.GreaterOrEqual(t, len(tn), 15)

	// Two numbers generated back to back should differ.
	other, err := NewTrackingNumber()
	require.NoError(t, err)
	assert.NotEqual(t, tn, other)
}

func TestSecretEnvelope_IsZero(t *testing.T) {
	assert.True(t, SecretEnvelope{}.IsZero())
	assert.False(t, SecretEnvelope{Ciphertext: []byte{1}}.IsZero())
}
