package walletsync

import "errors"

// Sentinel errors for the semantic error kinds in spec.md §7. Transient
// conditions are logged and swallowed (never returned); these are the ones
// that propagate out of Sync/Start and are retried by the caller on the
// next trigger.
var (
	// ErrNoKey means no private key matches the requested fingerprint.
	ErrNoKey = errors.New("walletsync: no matching key")
	// ErrNeedsBackupDecision means backup state requires a user choice
	// before Start can proceed.
	ErrNeedsBackupDecision = errors.New("walletsync: backup state requires a user decision")
	// ErrSyncRejected means the peer rejected a header-hash or
	// proof-hash request.
	ErrSyncRejected = errors.New("walletsync: peer rejected sync request")
	// ErrTimeout means a sync phase's wall-clock budget was exhausted.
	ErrTimeout = errors.New("walletsync: phase timed out")
	// ErrSampleValidationFailed means the sampler rejected the prefix.
	ErrSampleValidationFailed = errors.New("walletsync: sample validation failed")
	// ErrCommitRejected means the state manager returned a result other
	// than ADDED_TO_HEAD or ADDED_AS_ORPHAN for a block submitted during
	// sync.
	ErrCommitRejected = errors.New("walletsync: commit rejected during sync")
)
