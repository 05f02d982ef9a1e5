package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/errdefs"
)

// advisoryLockKey serialises concurrent Insert calls across all service
// instances sharing a database. The value is arbitrary but must be stable.
const advisoryLockKey = int64(7_734_221_908)

// Postgres persists the submission ledger in PostgreSQL. It implements Store.
//
// The submissions table carries the sequence number, so the per-device,
// per-verifier, and global indices are all views over one relation and
// referential integrity holds by construction.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// Insert implements Store. The uniqueness check, sequence assignment, and
// row insert run in one transaction guarded by an advisory lock, so the
// sequence is gapless and no reader sees a partial commit.
func (p *Postgres) Insert(ctx context.Context, sub *Submission) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var total uint64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM submissions").Scan(&total); err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	sub.SequenceNumber = total

	_, err = tx.Exec(ctx,
		`INSERT INTO submissions
		   (data_hash, device_id, verifier_address, signature, timestamp, data_uri, metadata, verified, sequence_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.DataHash, sub.DeviceID, sub.VerifierAddress, sub.Signature,
		sub.Timestamp, sub.DataURI, sub.Metadata, sub.Verified, sub.SequenceNumber,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: submission %s", errdefs.ErrConflict, sub.DataHash)
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	p.logger.Debug("submission committed",
		zap.String("data_hash", sub.DataHash),
		zap.Uint64("sequence", sub.SequenceNumber),
	)
	return nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, dataHash string) (*Submission, error) {
	sub := &Submission{}
	err := p.pool.QueryRow(ctx,
		`SELECT data_hash, device_id, verifier_address, signature, timestamp, data_uri, metadata, verified, sequence_number
		 FROM submissions WHERE data_hash = $1`, dataHash,
	).Scan(
		&sub.DataHash, &sub.DeviceID, &sub.VerifierAddress, &sub.Signature,
		&sub.Timestamp, &sub.DataURI, &sub.Metadata, &sub.Verified, &sub.SequenceNumber,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: submission %s", errdefs.ErrNotFound, dataHash)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// Has implements Store.
func (p *Postgres) Has(ctx context.Context, dataHash string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM submissions WHERE data_hash = $1)`, dataHash,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check submission: %w", err)
	}
	return exists, nil
}

// Total implements Store.
func (p *Postgres) Total(ctx context.Context) (uint64, error) {
	var n uint64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM submissions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// ByDevice implements Store.
func (p *Postgres) ByDevice(ctx context.Context, deviceID string) ([]string, error) {
	return p.hashList(ctx,
		`SELECT data_hash FROM submissions WHERE device_id = $1 ORDER BY sequence_number ASC`, deviceID)
}

// ByVerifier implements Store.
func (p *Postgres) ByVerifier(ctx context.Context, address string) ([]string, error) {
	return p.hashList(ctx,
		`SELECT data_hash FROM submissions WHERE verifier_address = $1 ORDER BY sequence_number ASC`, address)
}

// Slice implements Store.
func (p *Postgres) Slice(ctx context.Context, start, count uint64) ([]string, error) {
	total, err := p.Total(ctx)
	if err != nil {
		return nil, err
	}
	if start >= total {
		return nil, fmt.Errorf("%w: start %d >= total %d", errdefs.ErrRange, start, total)
	}
	return p.hashList(ctx,
		`SELECT data_hash FROM submissions ORDER BY sequence_number ASC OFFSET $1 LIMIT $2`,
		start, count)
}

func (p *Postgres) hashList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
