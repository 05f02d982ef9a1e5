package client

import (
	"context"
	"net/http"
	"net/url"
)

// Admin methods require a token set via WithAdminToken; without one the
// service responds 401 (or 403 when its admin surface is disabled).

// RegisterVerifier adds a verifier to the trust registry.
func (c *Client) RegisterVerifier(ctx context.Context, address string) (*Verifier, error) {
	var v Verifier
	in := map[string]string{"address": address}
	if err := c.do(ctx, http.MethodPost, "/verifiers", in, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVerifier fetches a verifier record.
func (c *Client) GetVerifier(ctx context.Context, address string) (*Verifier, error) {
	var v Verifier
	if err := c.do(ctx, http.MethodGet, "/verifiers/"+url.PathEscape(address), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVerifiers lists all registered verifiers.
func (c *Client) ListVerifiers(ctx context.Context) ([]*Verifier, error) {
	var resp struct {
		Verifiers []*Verifier `json:"verifiers"`
	}
	if err := c.do(ctx, http.MethodGet, "/verifiers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Verifiers, nil
}

// SetVerifierActive activates or deactivates a verifier.
func (c *Client) SetVerifierActive(ctx context.Context, address string, active bool) error {
	in := map[string]bool{"active": active}
	return c.do(ctx, http.MethodPatch, "/verifiers/"+url.PathEscape(address)+"/active", in, nil)
}

// ListVerifierDevices lists the devices bound to a verifier.
func (c *Client) ListVerifierDevices(ctx context.Context, address string) ([]*Device, error) {
	var resp struct {
		Devices []*Device `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, "/verifiers/"+url.PathEscape(address)+"/devices", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// RegisterDevice binds a DSM device and its public key to a verifier.
// publicKey is either a raw 32-byte Ed25519 key or a PKIX DER encoding.
func (c *Client) RegisterDevice(ctx context.Context, deviceID, verifierAddress string, publicKey []byte) (*Device, error) {
	var d Device
	in := map[string]any{
		"device_id":        deviceID,
		"verifier_address": verifierAddress,
		"public_key":       publicKey,
	}
	if err := c.do(ctx, http.MethodPost, "/devices", in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice fetches a device record.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	var d Device
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(deviceID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetDeviceActive activates or deactivates a device.
func (c *Client) SetDeviceActive(ctx context.Context, deviceID string, active bool) error {
	in := map[string]bool{"active": active}
	return c.do(ctx, http.MethodPatch, "/devices/"+url.PathEscape(deviceID)+"/active", in, nil)
}

// RepointRegistry swaps the trust registry backend the ledger consults.
func (c *Client) RepointRegistry(ctx context.Context, databaseURL string) error {
	in := map[string]string{"database_url": databaseURL}
	return c.do(ctx, http.MethodPut, "/registry", in, nil)
}
