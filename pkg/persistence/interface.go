package persistence

import "github.com/ethereum/go-ethereum/common"

// IFeeInfoPersistence stores the latest verified fee update per
// (token network, channel, signer).
// All implementations must be thread-safe as the registry serves concurrent requests.
type IFeeInfoPersistence interface {
	// SaveFeeInfo persists a verified fee update, overwriting any record with
	// the same key. Nonce ordering is the caller's responsibility.
	SaveFeeInfo(record *FeeInfoRecord) error

	// LoadFeeInfo retrieves the record for key.
	// Returns nil if no record exists, error only on storage failure.
	LoadFeeInfo(key FeeInfoKey) (*FeeInfoRecord, error)

	// ListFeeInfos returns every record of a token network sorted by channel
	// identifier, then signer. Returns an empty slice if none exist.
	ListFeeInfos(tokenNetworkAddress common.Address) ([]*FeeInfoRecord, error)

	// DeleteFeeInfo removes the record for key.
	// Idempotent - returns nil if the record doesn't exist.
	DeleteFeeInfo(key FeeInfoKey) error

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
