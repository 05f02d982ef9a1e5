package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/physver/trustchain/internal/errdefs"
)

// Submission is one immutable, content-addressed record of attested data.
// There is no update or delete path; once committed a submission only ever
// leaves the ledger by the ledger itself being destroyed.
type Submission struct {
	// DataHash is the Keccak-256 content address of the off-chain payload,
	// lowercase hex without prefix. It is the primary key and is never reused.
	DataHash string `json:"data_hash" db:"data_hash"`

	DeviceID string `json:"device_id" db:"device_id"`

	// VerifierAddress is the owning verifier captured at submission time.
	// Registry state may diverge afterwards; this field never changes.
	VerifierAddress string `json:"verifier_address" db:"verifier_address"`

	Signature []byte    `json:"signature" db:"signature"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	DataURI   string    `json:"data_uri"  db:"data_uri"`
	Metadata  string    `json:"metadata"  db:"metadata"`
	Verified  bool      `json:"verified"  db:"verified"`

	// SequenceNumber is the zero-based global insertion index. Audit ordering
	// relies on it, not on Timestamp, so clock skew cannot reorder history.
	SequenceNumber uint64 `json:"sequence_number" db:"sequence_number"`
}

// SubmitRequest carries the inputs of a submission attempt.
type SubmitRequest struct {
	DeviceID  string `json:"device_id"`
	DataHash  string `json:"data_hash"`
	Signature []byte `json:"signature"`
	DataURI   string `json:"data_uri"`
	Metadata  string `json:"metadata"`
}

// Event types emitted to external audit/monitoring subscribers.
const (
	EventDataSubmitted      = "data.submitted"
	EventSubmissionVerified = "submission.verified"
)

// DataSubmitted is emitted after a submission commits.
type DataSubmitted struct {
	DataHash        string    `json:"data_hash"`
	DeviceID        string    `json:"device_id"`
	VerifierAddress string    `json:"verifier_address"`
	Timestamp       time.Time `json:"timestamp"`
	DataURI         string    `json:"data_uri"`
	SequenceNumber  uint64    `json:"sequence_number"`
}

// SubmissionVerified is emitted after DataSubmitted and reports the outcome
// of the signature check that gated the commit.
type SubmissionVerified struct {
	DataHash string `json:"data_hash"`
	DeviceID string `json:"device_id"`
	IsValid  bool   `json:"is_valid"`
}

// dataHashLen is the hex length of a Keccak-256 content address.
const dataHashLen = 64

var zeroHash = strings.Repeat("0", dataHashLen)

// NormalizeDataHash validates and canonicalises a content address: optional
// 0x prefix stripped, lowercase, 64 hex chars, not the zero hash.
func NormalizeDataHash(h string) (string, error) {
	h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "0x"))
	if len(h) != dataHashLen {
		return "", fmt.Errorf("%w: data hash must be %d hex chars, got %d", errdefs.ErrValidation, dataHashLen, len(h))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("%w: data hash is not valid hex", errdefs.ErrValidation)
	}
	if h == zeroHash {
		return "", fmt.Errorf("%w: data hash is zero", errdefs.ErrValidation)
	}
	return h, nil
}

// HashContent computes the Keccak-256 content address of a payload,
// returned as lowercase hex without prefix.
func HashContent(data []byte) string {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}
