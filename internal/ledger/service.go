package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/attest"
	"github.com/physver/trustchain/internal/errdefs"
	"github.com/physver/trustchain/internal/registry"
)

// EventSink receives submission notifications. Implementations must not
// block the caller; delivery is best-effort and never gates a commit.
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload any)
}

// SubmissionDetails joins a ledger record with the *current* registry state
// of its device and verifier. The registry fields answer "what is true now";
// the submission's own VerifierAddress is the historical snapshot. Device or
// Verifier is nil when the current registry no longer knows the principal
// (possible after a registry repoint).
type SubmissionDetails struct {
	Submission *Submission        `json:"submission"`
	Device     *registry.Device   `json:"device,omitempty"`
	Verifier   *registry.Verifier `json:"verifier,omitempty"`
}

// Service is the submission ledger's operation surface. Writes are funneled
// through a single mutex spanning validation and commit, so the duplicate
// check, the authorization reads, and the insert act on one consistent
// state. Reads go straight to the store's last committed snapshot.
type Service struct {
	mu    sync.Mutex
	store Store
	reg   registry.Registry

	sink   EventSink // nil = no notifications
	logger *zap.Logger
}

// NewService creates a ledger service consulting the given registry.
// sink may be nil to disable notifications.
func NewService(store Store, reg registry.Registry, sink EventSink, logger *zap.Logger) *Service {
	return &Service{store: store, reg: reg, sink: sink, logger: logger}
}

// SetRegistry repoints the consulted trust registry. The swap happens under
// the write lock, so no in-flight submission observes a torn reference.
func (s *Service) SetRegistry(reg registry.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg
}

// Registry returns the currently consulted trust registry.
func (s *Service) Registry() registry.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg
}

// SubmitData validates, authorises, and atomically commits a submission.
// Preconditions are checked in a fixed order, first failure wins; every
// failure leaves the ledger untouched. On success the DataSubmitted and
// SubmissionVerified notifications are emitted, in that order.
func (s *Service) SubmitData(ctx context.Context, req SubmitRequest) (*Submission, error) {
	hash, err := NormalizeDataHash(req.DataHash)
	if err != nil {
		return nil, err
	}
	if len(req.Signature) == 0 {
		return nil, fmt.Errorf("%w: signature is empty", errdefs.ErrValidation)
	}
	if req.DataURI == "" {
		return nil, fmt.Errorf("%w: data URI is empty", errdefs.ErrValidation)
	}
	deviceID, err := registry.NormalizeDeviceID(req.DeviceID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if exists, err := s.store.Has(ctx, hash); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: submission %s", errdefs.ErrConflict, hash)
	}

	// One atomic registry read covers both activity flags; separate lookups
	// would let an admin flip land between them and authorize a submission
	// against a device/verifier pair that was never simultaneously active.
	auth, err := s.reg.Authorize(ctx, deviceID)
	if errors.Is(err, errdefs.ErrNotFound) {
		return nil, fmt.Errorf("%w: device %s is not active", errdefs.ErrUnauthorized, deviceID)
	}
	if err != nil {
		return nil, err
	}
	if !auth.DeviceActive {
		return nil, fmt.Errorf("%w: device %s is not active", errdefs.ErrUnauthorized, deviceID)
	}
	if !auth.VerifierActive {
		return nil, fmt.Errorf("%w: verifier %s is not active", errdefs.ErrUnauthorized, auth.Device.VerifierAddress)
	}
	device := auth.Device

	key, err := attest.ParsePublicKey(device.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: device key unusable: %v", errdefs.ErrIntegrity, err)
	}
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: data hash is not valid hex", errdefs.ErrValidation)
	}
	if !key.Verify(hashBytes, req.Signature) {
		return nil, fmt.Errorf("%w: signature does not match device %s key", errdefs.ErrIntegrity, deviceID)
	}

	sub := &Submission{
		DataHash:        hash,
		DeviceID:        deviceID,
		VerifierAddress: device.VerifierAddress,
		Signature:       append([]byte(nil), req.Signature...),
		Timestamp:       time.Now().UTC(),
		DataURI:         req.DataURI,
		Metadata:        req.Metadata,
		Verified:        true,
	}
	if err := s.store.Insert(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("submission accepted",
		zap.String("data_hash", sub.DataHash),
		zap.String("device_id", sub.DeviceID),
		zap.String("verifier", sub.VerifierAddress),
		zap.Uint64("sequence", sub.SequenceNumber),
	)

	if s.sink != nil {
		s.sink.Publish(ctx, EventDataSubmitted, DataSubmitted{
			DataHash:        sub.DataHash,
			DeviceID:        sub.DeviceID,
			VerifierAddress: sub.VerifierAddress,
			Timestamp:       sub.Timestamp,
			DataURI:         sub.DataURI,
			SequenceNumber:  sub.SequenceNumber,
		})
		s.sink.Publish(ctx, EventSubmissionVerified, SubmissionVerified{
			DataHash: sub.DataHash,
			DeviceID: sub.DeviceID,
			IsValid:  true,
		})
	}

	return cloneSubmission(sub), nil
}

// VerifySubmission returns the full record for a hash, read-only.
func (s *Service) VerifySubmission(ctx context.Context, dataHash string) (*Submission, error) {
	hash, err := NormalizeDataHash(dataHash)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, hash)
}

// VerifyDataIntegrity recomputes the content address of providedData and
// compares it with the recorded hash. Fails errdefs.ErrNotFound if the hash
// was never submitted; signature validity is not re-examined.
func (s *Service) VerifyDataIntegrity(ctx context.Context, dataHash string, providedData []byte) (bool, error) {
	hash, err := NormalizeDataHash(dataHash)
	if err != nil {
		return false, err
	}
	if _, err := s.store.Get(ctx, hash); err != nil {
		return false, err
	}
	return HashContent(providedData) == hash, nil
}

// GetDeviceSubmissions returns the device's hashes in insertion order.
func (s *Service) GetDeviceSubmissions(ctx context.Context, deviceID string) ([]string, error) {
	id, err := registry.NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	return s.store.ByDevice(ctx, id)
}

// GetVerifierSubmissions returns the verifier's hashes in insertion order.
func (s *Service) GetVerifierSubmissions(ctx context.Context, address string) ([]string, error) {
	addr, err := registry.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.ByVerifier(ctx, addr)
}

// GetSubmissionDetails joins the ledger record with the current registry
// snapshot of its device and verifier.
func (s *Service) GetSubmissionDetails(ctx context.Context, dataHash string) (*SubmissionDetails, error) {
	sub, err := s.VerifySubmission(ctx, dataHash)
	if err != nil {
		return nil, err
	}

	details := &SubmissionDetails{Submission: sub}
	reg := s.Registry()

	if device, err := reg.GetDevice(ctx, sub.DeviceID); err == nil {
		details.Device = device
		if verifier, err := reg.GetVerifier(ctx, device.VerifierAddress); err == nil {
			details.Verifier = verifier
		}
	}
	return details, nil
}

// HasSubmission reports whether a hash has been committed. It never fails:
// malformed hashes simply have no submission.
func (s *Service) HasSubmission(ctx context.Context, dataHash string) bool {
	hash, err := NormalizeDataHash(dataHash)
	if err != nil {
		return false
	}
	ok, err := s.store.Has(ctx, hash)
	return err == nil && ok
}

// TotalSubmissions returns the count of committed submissions.
func (s *Service) TotalSubmissions(ctx context.Context) (uint64, error) {
	return s.store.Total(ctx)
}

// GetSubmissionHistory returns the contiguous audit slice
// [start, min(start+count, total)) of the global insertion order.
// Fails errdefs.ErrRange when start >= total.
func (s *Service) GetSubmissionHistory(ctx context.Context, start, count uint64) ([]string, error) {
	return s.store.Slice(ctx, start, count)
}
