package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// VaultStore implements ports.VaultStore: durable key-value storage for
// encrypted secret envelopes, keyed by owner id. Envelopes persist without
// TTL; they are removed only by an explicit Delete (e.g. on logout).
type VaultStore struct {
	client *goredis.Client
	prefix string
}

// NewVaultStore creates a new Redis-backed vault store.
func NewVaultStore(client *goredis.Client) *VaultStore {
	return &VaultStore{
		client: client,
		prefix: "vault:",
	}
}

// Put stores an envelope JSON blob under the owner's key.
func (s *VaultStore) Put(ctx context.Context, ownerID string, envelopeJSON []byte) error {
	if err := s.client.Set(ctx, s.prefix+ownerID, envelopeJSON, 0).Err(); err != nil {
		return fmt.Errorf("vault store put: %w", err)
	}
	return nil
}

// Get retrieves the envelope blob for an owner.
// Returns nil, nil if no envelope is stored.
func (s *VaultStore) Get(ctx context.Context, ownerID string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+ownerID).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("vault store get: %w", err)
	}
	return val, nil
}

// Delete removes the stored envelope for an owner.
func (s *VaultStore) Delete(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, s.prefix+ownerID).Err(); err != nil {
		return fmt.Errorf("vault store delete: %w", err)
	}
	return nil
}
