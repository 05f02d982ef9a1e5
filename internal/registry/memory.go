package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/physver/trustchain/internal/attest"
	"github.com/physver/trustchain/internal/errdefs"
)

// Memory is an in-memory, thread-safe Registry implementation.
type Memory struct {
	mu sync.RWMutex

	verifiers map[string]*Verifier
	devices   map[string]*Device

	// registration order, for stable listings
	verifierOrder []string
	deviceOrder   []string
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		verifiers: make(map[string]*Verifier),
		devices:   make(map[string]*Device),
	}
}

// RegisterVerifier implements Registry.
func (m *Memory) RegisterVerifier(_ context.Context, address string) (*Verifier, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.verifiers[addr]; ok {
		return nil, fmt.Errorf("%w: verifier %s", errdefs.ErrConflict, addr)
	}
	v := &Verifier{
		Address:      addr,
		Active:       true,
		RegisteredAt: time.Now().UTC(),
	}
	m.verifiers[addr] = v
	m.verifierOrder = append(m.verifierOrder, addr)
	return cloneVerifier(v), nil
}

// SetVerifierActive implements Registry.
func (m *Memory) SetVerifierActive(_ context.Context, address string, active bool) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verifiers[addr]
	if !ok {
		return fmt.Errorf("%w: verifier %s", errdefs.ErrNotFound, addr)
	}
	v.Active = active
	return nil
}

// RegisterDevice implements Registry.
func (m *Memory) RegisterDevice(_ context.Context, deviceID, verifierAddress string, publicKey []byte) (*Device, error) {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[id]; ok {
		return nil, fmt.Errorf("%w: device %s", errdefs.ErrConflict, id)
	}
	v, ok := m.verifiers[addr]
	if !ok {
		return nil, fmt.Errorf("%w: verifier %s", errdefs.ErrNotFound, addr)
	}
	if !v.Active {
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
	m.devices[id] = d
	m.deviceOrder = append(m.deviceOrder, id)
	return cloneDevice(d), nil
}

// SetDeviceActive implements Registry.
func (m *Memory) SetDeviceActive(_ context.Context, deviceID string, active bool) error {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return fmt.Errorf("%w: device %s", errdefs.ErrNotFound, id)
	}
	d.Active = active
	return nil
}

// IsVerifierActive implements Registry.
func (m *Memory) IsVerifierActive(_ context.Context, address string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verifiers[addr]
	return ok && v.Active, nil
}

// IsDeviceActive implements Registry.
func (m *Memory) IsDeviceActive(_ context.Context, deviceID string) (bool, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	return ok && d.Active, nil
}

// Authorize implements Registry. Device and verifier are read under one
// RLock, so the returned flags reflect a single registry state.
func (m *Memory) Authorize(_ context.Context, deviceID string) (*Authorization, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: device %s", errdefs.ErrNotFound, id)
	}
	auth := &Authorization{
		Device:       cloneDevice(d),
		DeviceActive: d.Active,
	}
	if v, ok := m.verifiers[d.VerifierAddress]; ok {
		auth.VerifierActive = v.Active
	}
	return auth, nil
}

// GetVerifier implements Registry.
func (m *Memory) GetVerifier(_ context.Context, address string) (*Verifier, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verifiers[addr]
	if !ok {
		return nil, fmt.Errorf("%w: verifier %s", errdefs.ErrNotFound, addr)
	}
	return cloneVerifier(v), nil
}

// GetDevice implements Registry.
func (m *Memory) GetDevice(_ context.Context, deviceID string) (*Device, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: device %s", errdefs.ErrNotFound, id)
	}
	return cloneDevice(d), nil
}

// GetDevicePublicKey implements Registry.
func (m *Memory) GetDevicePublicKey(ctx context.Context, deviceID string) ([]byte, error) {
	d, err := m.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return d.PublicKey, nil
}

// ListVerifiers implements Registry.
func (m *Memory) ListVerifiers(_ context.Context) ([]*Verifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Verifier, 0, len(m.verifierOrder))
	for _, addr := range m.verifierOrder {
		out = append(out, cloneVerifier(m.verifiers[addr]))
	}
	return out, nil
}

// ListDevicesByVerifier implements Registry.
func (m *Memory) ListDevicesByVerifier(_ context.Context, address string) ([]*Device, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Device
	for _, id := range m.deviceOrder {
		if d := m.devices[id]; d.VerifierAddress == addr {
			out = append(out, cloneDevice(d))
		}
	}
	return out, nil
}

// Clones keep callers from mutating store-owned records.

func cloneVerifier(v *Verifier) *Verifier {
	c := *v
	return &c
}

func cloneDevice(d *Device) *Device {
	c := *d
	c.PublicKey = append([]byte(nil), d.PublicKey...)
	return &c
}
