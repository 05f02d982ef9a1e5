package client

import "time"

// SubmitRequest is the payload for Submit. The signature covers the raw
// 32-byte data hash and must be produced by the device's registered key.
type SubmitRequest struct {
	DeviceID  string `json:"device_id"`
	DataHash  string `json:"data_hash"`
	Signature []byte `json:"signature"`
	DataURI   string `json:"data_uri"`
	Metadata  string `json:"metadata,omitempty"`
}

// Submission is a committed ledger record.
type Submission struct {
	DataHash        string    `json:"data_hash"`
	DeviceID        string    `json:"device_id"`
	VerifierAddress string    `json:"verifier_address"`
	Signature       []byte    `json:"signature"`
	Timestamp       time.Time `json:"timestamp"`
	DataURI         string    `json:"data_uri"`
	Metadata        string    `json:"metadata"`
	Verified        bool      `json:"verified"`
	SequenceNumber  uint64    `json:"sequence_number"`
}

// Verifier is a trust-registry verifier record.
type Verifier struct {
	Address      string    `json:"address"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Device is a trust-registry DSM device record.
type Device struct {
	DeviceID        string    `json:"device_id"`
	VerifierAddress string    `json:"verifier_address"`
	PublicKey       []byte    `json:"public_key"`
	KeyAlgorithm    string    `json:"key_algorithm"`
	Active          bool      `json:"active"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// SubmissionDetails joins a ledger record with the current registry snapshot
// of the device and verifier that produced it.
type SubmissionDetails struct {
	Submission *Submission `json:"submission"`
	Device     *Device     `json:"device,omitempty"`
	Verifier   *Verifier   `json:"verifier,omitempty"`
}

// HistoryPage is one page of the submission audit log.
type HistoryPage struct {
	Start  uint64   `json:"start"`
	Count  int      `json:"count"`
	Hashes []string `json:"hashes"`
}
