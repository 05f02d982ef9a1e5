// Package registry implements the trust registry: the source of truth for
// which verifiers and DSM devices are authorised to submit attested data.
//
// Two implementations of the Registry interface are provided:
//   - Memory: in-process, for testing and single-node deployments.
//   - Postgres: durable, for production use.
package registry

import "context"

// Authorization is the joint activity snapshot of a device and its owning
// verifier. Both flags come from one consistent read of the registry.
type Authorization struct {
	Device         *Device
	DeviceActive   bool
	VerifierActive bool
}

// Registry answers identity and activity queries for verifiers and devices,
// and owns their records. It is the sole authority consulted by the
// submission ledger before accepting a write.
type Registry interface {
	// RegisterVerifier creates a verifier in active state.
	// Fails errdefs.ErrConflict if the address is already registered.
	RegisterVerifier(ctx context.Context, address string) (*Verifier, error)

	// SetVerifierActive flips the verifier's active flag. Idempotent.
	// Fails errdefs.ErrNotFound for an unknown address.
	SetVerifierActive(ctx context.Context, address string, active bool) error

	// RegisterDevice binds a device and its public key to an active verifier.
	// Fails errdefs.ErrConflict on a duplicate device id, errdefs.ErrNotFound
	// for an unknown verifier, and errdefs.ErrUnauthorized for an inactive one.
	RegisterDevice(ctx context.Context, deviceID, verifierAddress string, publicKey []byte) (*Device, error)

	// SetDeviceActive flips the device's active flag. Idempotent.
	// Fails errdefs.ErrNotFound for an unknown device.
	SetDeviceActive(ctx context.Context, deviceID string, active bool) error

	// IsVerifierActive and IsDeviceActive are pure lookups: unknown
	// principals yield (false, nil), not an error.
	IsVerifierActive(ctx context.Context, address string) (bool, error)
	IsDeviceActive(ctx context.Context, deviceID string) (bool, error)

	// Authorize returns the device record together with its own and its
	// owning verifier's activity flags, read from one consistent snapshot:
	// a concurrent activity flip can land before or after the call, never
	// between the two reads. Fails errdefs.ErrNotFound for an unknown device.
	Authorize(ctx context.Context, deviceID string) (*Authorization, error)

	// GetVerifier, GetDevice, and GetDevicePublicKey fail errdefs.ErrNotFound
	// for unknown principals.
	GetVerifier(ctx context.Context, address string) (*Verifier, error)
	GetDevice(ctx context.Context, deviceID string) (*Device, error)
	GetDevicePublicKey(ctx context.Context, deviceID string) ([]byte, error)

	// ListVerifiers returns all verifiers in registration order.
	ListVerifiers(ctx context.Context) ([]*Verifier, error)

	// ListDevicesByVerifier returns the verifier's devices in registration
	// order; empty (not an error) when it has none.
	ListDevicesByVerifier(ctx context.Context, address string) ([]*Device, error)
}
