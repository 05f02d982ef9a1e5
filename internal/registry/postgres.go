package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/attest"
	"github.com/physver/trustchain/internal/errdefs"
)

// Postgres persists the trust registry in PostgreSQL. It implements Registry.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres registry backed by the given pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// RegisterVerifier implements Registry.
func (p *Postgres) RegisterVerifier(ctx context.Context, address string) (*Verifier, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	v := &Verifier{
		Address:      addr,
		Active:       true,
		RegisteredAt: time.Now().UTC(),
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO verifiers (address, active, registered_at) VALUES ($1, $2, $3)`,
		v.Address, v.Active, v.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: verifier %s", errdefs.ErrConflict, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("insert verifier: %w", err)
	}

	p.logger.Info("verifier registered", zap.String("address", addr))
	return v, nil
}

// SetVerifierActive implements Registry.
func (p *Postgres) SetVerifierActive(ctx context.Context, address string, active bool) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE verifiers SET active = $2 WHERE address = $1`, addr, active,
	)
	if err != nil {
		return fmt.Errorf("update verifier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: verifier %s", errdefs.ErrNotFound, addr)
	}
	return nil
}

// RegisterDevice implements Registry. The verifier activity check and the
// device insert run in one transaction so a concurrent deactivation cannot
// slip between them.
func (p *Postgres) RegisterDevice(ctx context.Context, deviceID, verifierAddress string, publicKey []byte) (*Device, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	addr, err := NormalizeAddress(verifierAddress)
	if err != nil {
		return nil, err
	}
	key, err := attest.ParsePublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrValidation, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var verifierActive bool
	err = tx.QueryRow(ctx,
		`SELECT active FROM verifiers WHERE address = $1 FOR SHARE`, addr,
	).Scan(&verifierActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: verifier %s", errdefs.ErrNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup verifier: %w", err)
	}
	if !verifierActive {
		return nil, fmt.Errorf("%w: verifier %s is inactive", errdefs.ErrUnauthorized, addr)
	}

	d := &Device{
		DeviceID:        id,
		VerifierAddress: addr,
		PublicKey:       append([]byte(nil), publicKey...),
		KeyAlgorithm:    key.Algorithm,
		Active:          true,
		RegisteredAt:    time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO devices (device_id, verifier_address, public_key, key_algorithm, active, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.DeviceID, d.VerifierAddress, d.PublicKey, d.KeyAlgorithm, d.Active, d.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: device %s", errdefs.ErrConflict, id)
	}
	if err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	p.logger.Info("device registered",
		zap.String("device_id", id),
		zap.String("verifier", addr),
		zap.String("key_algorithm", d.KeyAlgorithm),
	)
	return d, nil
}

// SetDeviceActive implements Registry.
func (p *Postgres) SetDeviceActive(ctx context.Context, deviceID string, active bool) error {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE devices SET active = $2 WHERE device_id = $1`, id, active,
	)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: device %s", errdefs.ErrNotFound, id)
	}
	return nil
}

// IsVerifierActive implements Registry.
func (p *Postgres) IsVerifierActive(ctx context.Context, address string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}

	var active bool
	err = p.pool.QueryRow(ctx,
		`SELECT active FROM verifiers WHERE address = $1`, addr,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup verifier: %w", err)
	}
	return active, nil
}

// IsDeviceActive implements Registry.
func (p *Postgres) IsDeviceActive(ctx context.Context, deviceID string) (bool, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return false, err
	}

	var active bool
	err = p.pool.QueryRow(ctx,
		`SELECT active FROM devices WHERE device_id = $1`, id,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup device: %w", err)
	}
	return active, nil
}

// Authorize implements Registry. One joined SELECT reads the device row and
// its verifier's active flag in a single statement snapshot, so concurrent
// activity updates cannot produce a device flag and a verifier flag from
// two different registry states.
func (p *Postgres) Authorize(ctx context.Context, deviceID string) (*Authorization, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	d := &Device{}
	auth := &Authorization{Device: d}
	err = p.pool.QueryRow(ctx,
		`SELECT d.device_id, d.verifier_address, d.public_key, d.key_algorithm, d.active, d.registered_at, v.active
		 FROM devices d
		 JOIN verifiers v ON v.address = d.verifier_address
		 WHERE d.device_id = $1`, id,
	).Scan(&d.DeviceID, &d.VerifierAddress, &d.PublicKey, &d.KeyAlgorithm, &d.Active, &d.RegisteredAt, &auth.VerifierActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: device %s", errdefs.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("authorize device: %w", err)
	}
	auth.DeviceActive = d.Active
	return auth, nil
}

// GetVerifier implements Registry.
func (p *Postgres) GetVerifier(ctx context.Context, address string) (*Verifier, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	v := &Verifier{}
	err = p.pool.QueryRow(ctx,
		`SELECT address, active, registered_at FROM verifiers WHERE address = $1`, addr,
	).Scan(&v.Address, &v.Active, &v.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: verifier %s", errdefs.ErrNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("get verifier: %w", err)
	}
	return v, nil
}

// GetDevice implements Registry.
func (p *Postgres) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	d := &Device{}
	err = p.pool.QueryRow(ctx,
		`SELECT device_id, verifier_address, public_key, key_algorithm, active, registered_at
		 FROM devices WHERE device_id = $1`, id,
	).Scan(&d.DeviceID, &d.VerifierAddress, &d.PublicKey, &d.KeyAlgorithm, &d.Active, &d.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: device %s", errdefs.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// GetDevicePublicKey implements Registry.
func (p *Postgres) GetDevicePublicKey(ctx context.Context, deviceID string) ([]byte, error) {
	d, err := p.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return d.PublicKey, nil
}

// ListVerifiers implements Registry.
func (p *Postgres) ListVerifiers(ctx context.Context) ([]*Verifier, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT address, active, registered_at FROM verifiers ORDER BY registered_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list verifiers: %w", err)
	}
	defer rows.Close()

	var out []*Verifier
	for rows.Next() {
		v := &Verifier{}
		if err := rows.Scan(&v.Address, &v.Active, &v.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan verifier: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListDevicesByVerifier implements Registry.
func (p *Postgres) ListDevicesByVerifier(ctx context.Context, address string) ([]*Device, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT device_id, verifier_address, public_key, key_algorithm, active, registered_at
		 FROM devices WHERE verifier_address = $1 ORDER BY registered_at ASC`, addr,
	)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d := &Device{}
		if err := rows.Scan(&d.DeviceID, &d.VerifierAddress, &d.PublicKey, &d.KeyAlgorithm, &d.Active, &d.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
