package registry

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/physver/trustchain/internal/errdefs"
)

// Verifier is a principal that vouches for and manages a set of DSM devices.
// A device's authority to submit is transitively gated by its verifier's
// Active flag.
type Verifier struct {
	Address      string    `json:"address"       db:"address"`
	Active       bool      `json:"active"        db:"active"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// Device is a registered DSM (Device Security Module). PublicKey holds the
// key encoding exactly as registered; KeyAlgorithm records what it parsed as.
type Device struct {
	DeviceID        string    `json:"device_id"        db:"device_id"`
	VerifierAddress string    `json:"verifier_address" db:"verifier_address"`
	PublicKey       []byte    `json:"public_key"       db:"public_key"`
	KeyAlgorithm    string    `json:"key_algorithm"    db:"key_algorithm"`
	Active          bool      `json:"active"           db:"active"`
	RegisteredAt    time.Time `json:"registered_at"    db:"registered_at"`
}

// deviceIDLen is the hex length of a 32-byte device identifier.
const deviceIDLen = 64

// NormalizeDeviceID validates and canonicalises a 32-byte device identifier:
// optional 0x prefix stripped, lowercase hex, exactly 64 chars.
func NormalizeDeviceID(id string) (string, error) {
	id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
	if len(id) != deviceIDLen {
		return "", fmt.Errorf("%w: device id must be %d hex chars, got %d", errdefs.ErrValidation, deviceIDLen, len(id))
	}
	if _, err := hex.DecodeString(id); err != nil {
		return "", fmt.Errorf("%w: device id is not valid hex", errdefs.ErrValidation)
	}
	return id, nil
}

// NormalizeAddress canonicalises a verifier identity. Addresses are opaque
// beyond being non-empty; comparison is case-insensitive.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return "", fmt.Errorf("%w: verifier address is empty", errdefs.ErrValidation)
	}
	return addr, nil
}
