package persistence

// IDerivationStore memoizes predicate address derivations.
// All implementations must be thread-safe; derivations are requested concurrently
// by the connector and the CLI.
//
// Entries are keyed by the full derivation tuple (program digest, signer, chain id)
// and never expire by time. A derivation is a pure function of its key, so an
// evicted or missing entry is always recomputable.
type IDerivationStore interface {
	// SaveDerivedAccount stores a derived account under its key.
	// Overwrites any existing entry for the same key.
	SaveDerivedAccount(account *DerivedAccount) error

	// LoadDerivedAccount retrieves a derived account by key.
	// Returns nil if no entry exists, error only on storage failure.
	LoadDerivedAccount(key DerivationKey) (*DerivedAccount, error)

	// DeleteDerivedAccount removes an entry. Idempotent.
	DeleteDerivedAccount(key DerivationKey) error

	// ListDerivedAccounts returns all stored entries sorted by key.
	// Returns empty slice if none exist.
	ListDerivedAccounts() ([]*DerivedAccount, error)

	// Close releases resources. Safe to call multiple times.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}
