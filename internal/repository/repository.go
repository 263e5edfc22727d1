package repository

import "context"

// KVStore is the origin-scoped key/value storage the persistence layer
// writes serialized lists into. It plays the role browser local storage
// plays for a storefront tab.
type KVStore interface {
	// Get returns the raw value for key. A missing key yields an error
	// matching apperrors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
