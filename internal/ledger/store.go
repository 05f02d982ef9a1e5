// Package ledger implements the submission ledger: an append-only,
// content-addressed record of signed DSM data, gated by the trust registry.
//
// The ledger is a single logical writer. Insert performs the uniqueness
// check, sequence assignment, primary insert, and both index appends as one
// atomic unit; a concurrent reader never observes a half-committed state.
//
// Two implementations of the Store interface are provided:
//   - Memory: in-process, for testing and single-node deployments.
//   - Postgres: durable, serialised by a transaction-scoped advisory lock.
package ledger

import "context"

// Store is the persistence layer beneath Service. Hashes, device ids, and
// verifier addresses are already normalised when they reach a Store.
type Store interface {
	// Insert atomically commits a submission, assigning sub.SequenceNumber.
	// Fails errdefs.ErrConflict if the data hash is already present.
	Insert(ctx context.Context, sub *Submission) error

	// Get returns the submission for a hash, or errdefs.ErrNotFound.
	Get(ctx context.Context, dataHash string) (*Submission, error)

	// Has reports whether a hash has ever been committed.
	Has(ctx context.Context, dataHash string) (bool, error)

	// Total returns the number of committed submissions.
	Total(ctx context.Context) (uint64, error)

	// ByDevice and ByVerifier return hashes in insertion order; empty (not
	// an error) when the principal has no submissions.
	ByDevice(ctx context.Context, deviceID string) ([]string, error)
	ByVerifier(ctx context.Context, address string) ([]string, error)

	// Slice returns the global sequence [start, min(start+count, total)).
	// Fails errdefs.ErrRange when start >= total.
	Slice(ctx context.Context, start, count uint64) ([]string, error)
}
