package ledger_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/errdefs"
	"github.com/physver/trustchain/internal/ledger"
	"github.com/physver/trustchain/internal/registry"
)

var ctx = context.Background()

const (
	verifierAddr = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"
	deviceID     = "aa00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
)

// fixture wires a memory registry + ledger with one active verifier and one
// active device whose Ed25519 key we hold.
type fixture struct {
	svc  *ledger.Service
	reg  *registry.Memory
	priv ed25519.PrivateKey
	sink *recordingSink
}

type sinkEvent struct {
	Type    string
	Payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (r *recordingSink) Publish(_ context.Context, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sinkEvent{Type: eventType, Payload: payload})
}

func (r *recordingSink) all() []sinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkEvent(nil), r.events...)
}

func setup(t *testing.T) *fixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	reg := registry.NewMemory()
	if _, err := reg.RegisterVerifier(ctx, verifierAddr); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.RegisterDevice(ctx, deviceID, verifierAddr, pub); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	svc := ledger.NewService(ledger.NewMemory(), reg, sink, zap.NewNop())
	return &fixture{svc: svc, reg: reg, priv: priv, sink: sink}
}

// submit signs the hash with the fixture device key and submits it.
func (f *fixture) submit(t *testing.T, data []byte, uri string) string {
	t.Helper()
	hash := ledger.HashContent(data)
	hashBytes, _ := hex.DecodeString(hash)
	sig := ed25519.Sign(f.priv, hashBytes)

	_, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID:  deviceID,
		DataHash:  hash,
		Signature: sig,
		DataURI:   uri,
		Metadata:  "{}",
	})
	if err != nil {
		t.Fatalf("SubmitData(%q): %v", uri, err)
	}
	return hash
}

func TestSubmitData_success(t *testing.T) {
	f := setup(t)

	data := []byte("sensor reading batch 42")
	hash := f.submit(t, data, "ipfs://x")

	if !f.svc.HasSubmission(ctx, hash) {
		t.Error("HasSubmission should be true after commit")
	}
	sub, err := f.svc.VerifySubmission(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Verified {
		t.Error("committed submission must have Verified=true")
	}
	if sub.SequenceNumber != 0 {
		t.Errorf("first submission sequence: got %d, want 0", sub.SequenceNumber)
	}
	if sub.VerifierAddress != verifierAddr {
		t.Errorf("verifier snapshot: got %q", sub.VerifierAddress)
	}

	total, err := f.svc.TotalSubmissions(ctx)
	if err != nil || total != 1 {
		t.Errorf("TotalSubmissions: got (%d, %v), want (1, nil)", total, err)
	}
}

func TestSubmitData_validationOrder(t *testing.T) {
	f := setup(t)
	valid := ledger.HashContent([]byte("payload"))
	sig := []byte("sig")

	cases := []struct {
		name string
		req  ledger.SubmitRequest
		want error
	}{
		{"zero hash", ledger.SubmitRequest{DeviceID: deviceID, DataHash: strings.Repeat("0", 64), Signature: sig, DataURI: "ipfs://x"}, errdefs.ErrValidation},
		{"malformed hash", ledger.SubmitRequest{DeviceID: deviceID, DataHash: "abc123", Signature: sig, DataURI: "ipfs://x"}, errdefs.ErrValidation},
		{"empty signature", ledger.SubmitRequest{DeviceID: deviceID, DataHash: valid, DataURI: "ipfs://x"}, errdefs.ErrValidation},
		{"empty data uri", ledger.SubmitRequest{DeviceID: deviceID, DataHash: valid, Signature: sig}, errdefs.ErrValidation},
		{"malformed device id", ledger.SubmitRequest{DeviceID: "nope", DataHash: valid, Signature: sig, DataURI: "ipfs://x"}, errdefs.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.SubmitData(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}

	total, _ := f.svc.TotalSubmissions(ctx)
	if total != 0 {
		t.Errorf("rejected submissions must not mutate state; total=%d", total)
	}
}

func TestSubmitData_duplicateHashIsConflict(t *testing.T) {
	f := setup(t)

	data := []byte("once only")
	hash := f.submit(t, data, "ipfs://x")

	hashBytes, _ := hex.DecodeString(hash)
	sig := ed25519.Sign(f.priv, hashBytes)

	// Same hash again — regardless of other arguments.
	_, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID:  deviceID,
		DataHash:  "0x" + hash, // prefixed form of the same hash
		Signature: sig,
		DataURI:   "ipfs://different",
		Metadata:  `{"other":"args"}`,
	})
	if !errors.Is(err, errdefs.ErrConflict) {
		t.Errorf("duplicate hash: got %v, want ErrConflict", err)
	}

	total, _ := f.svc.TotalSubmissions(ctx)
	if total != 1 {
		t.Errorf("total after rejected duplicate: got %d, want 1", total)
	}
}

func TestSubmitData_authorizationGating(t *testing.T) {
	f := setup(t)
	hash := ledger.HashContent([]byte("gated"))
	hashBytes, _ := hex.DecodeString(hash)
	sig := ed25519.Sign(f.priv, hashBytes)
	req := ledger.SubmitRequest{DeviceID: deviceID, DataHash: hash, Signature: sig, DataURI: "ipfs://x"}

	// Inactive device.
	_ = f.reg.SetDeviceActive(ctx, deviceID, false)
	if _, err := f.svc.SubmitData(ctx, req); !errors.Is(err, errdefs.ErrUnauthorized) {
		t.Errorf("inactive device: got %v, want ErrUnauthorized", err)
	}

	// Active device, inactive owning verifier.
	_ = f.reg.SetDeviceActive(ctx, deviceID, true)
	_ = f.reg.SetVerifierActive(ctx, verifierAddr, false)
	if _, err := f.svc.SubmitData(ctx, req); !errors.Is(err, errdefs.ErrUnauthorized) {
		t.Errorf("inactive verifier: got %v, want ErrUnauthorized", err)
	}

	// Unknown device.
	_ = f.reg.SetVerifierActive(ctx, verifierAddr, true)
	req.DeviceID = strings.Replace(deviceID, "aa", "bb", 1)
	if _, err := f.svc.SubmitData(ctx, req); !errors.Is(err, errdefs.ErrUnauthorized) {
		t.Errorf("unknown device: got %v, want ErrUnauthorized", err)
	}

	total, _ := f.svc.TotalSubmissions(ctx)
	if total != 0 {
		t.Errorf("no state may be written on authorization failure; total=%d", total)
	}
}

// mutatingRegistry simulates an admin racing an in-flight submission: after
// every authorization read it deactivates the device and reactivates the
// verifier. If the service read the two activity flags separately, the second
// read would see the mutated state and the pair would look active even though
// no single registry state ever had both active.
type mutatingRegistry struct {
	registry.Registry
	inner *registry.Memory
}

func (m *mutatingRegistry) flip() {
	_ = m.inner.SetDeviceActive(ctx, deviceID, false)
	_ = m.inner.SetVerifierActive(ctx, verifierAddr, true)
}

func (m *mutatingRegistry) Authorize(ctx context.Context, id string) (*registry.Authorization, error) {
	auth, err := m.Registry.Authorize(ctx, id)
	m.flip()
	return auth, err
}

func (m *mutatingRegistry) IsDeviceActive(ctx context.Context, id string) (bool, error) {
	active, err := m.Registry.IsDeviceActive(ctx, id)
	m.flip()
	return active, err
}

func (m *mutatingRegistry) GetDevice(ctx context.Context, id string) (*registry.Device, error) {
	d, err := m.Registry.GetDevice(ctx, id)
	m.flip()
	return d, err
}

func (m *mutatingRegistry) IsVerifierActive(ctx context.Context, addr string) (bool, error) {
	active, err := m.Registry.IsVerifierActive(ctx, addr)
	m.flip()
	return active, err
}

func TestSubmitData_authorizationIsNotTorn(t *testing.T) {
	f := setup(t)

	// Device active, verifier inactive: no registry state authorizes this
	// submission, no matter how the admin mutations interleave.
	_ = f.reg.SetVerifierActive(ctx, verifierAddr, false)
	f.svc.SetRegistry(&mutatingRegistry{Registry: f.reg, inner: f.reg})

	hash := ledger.HashContent([]byte("interleaved"))
	hashBytes, _ := hex.DecodeString(hash)
	sig := ed25519.Sign(f.priv, hashBytes)

	_, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID: deviceID, DataHash: hash, Signature: sig, DataURI: "ipfs://x",
	})
	if !errors.Is(err, errdefs.ErrUnauthorized) {
		t.Fatalf("device and verifier were never simultaneously active: got %v, want ErrUnauthorized", err)
	}
	if total, _ := f.svc.TotalSubmissions(ctx); total != 0 {
		t.Errorf("ledger must stay empty after refused submission; total=%d", total)
	}
}

func TestSubmitData_badSignatureIsIntegrityError(t *testing.T) {
	f := setup(t)
	hash := ledger.HashContent([]byte("tampered"))

	// Signature from a different key.
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	hashBytes, _ := hex.DecodeString(hash)
	sig := ed25519.Sign(otherPriv, hashBytes)

	_, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID: deviceID, DataHash: hash, Signature: sig, DataURI: "ipfs://x",
	})
	if !errors.Is(err, errdefs.ErrIntegrity) {
		t.Errorf("foreign signature: got %v, want ErrIntegrity", err)
	}
	if f.svc.HasSubmission(ctx, hash) {
		t.Error("failed signature check must write no state")
	}
	if len(f.sink.all()) != 0 {
		t.Error("no notifications on failed submission")
	}
}

func TestSubmitData_emitsEventsInOrder(t *testing.T) {
	f := setup(t)
	hash := f.submit(t, []byte("event payload"), "ipfs://x")

	events := f.sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != ledger.EventDataSubmitted {
		t.Errorf("first event: got %q", events[0].Type)
	}
	if events[1].Type != ledger.EventSubmissionVerified {
		t.Errorf("second event: got %q", events[1].Type)
	}

	ds, ok := events[0].Payload.(ledger.DataSubmitted)
	if !ok || ds.DataHash != hash || ds.SequenceNumber != 0 {
		t.Errorf("DataSubmitted payload: %+v", events[0].Payload)
	}
	sv, ok := events[1].Payload.(ledger.SubmissionVerified)
	if !ok || sv.DataHash != hash || !sv.IsValid {
		t.Errorf("SubmissionVerified payload: %+v", events[1].Payload)
	}
}

func TestRevocationIsForwardOnly(t *testing.T) {
	f := setup(t)
	hash := f.submit(t, []byte("pre-revocation"), "ipfs://x")

	before, err := f.svc.VerifySubmission(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}

	_ = f.reg.SetDeviceActive(ctx, deviceID, false)

	after, err := f.svc.VerifySubmission(ctx, hash)
	if err != nil {
		t.Fatalf("past submission must survive revocation: %v", err)
	}
	if after.DataHash != before.DataHash || after.SequenceNumber != before.SequenceNumber ||
		!after.Verified || after.VerifierAddress != before.VerifierAddress {
		t.Error("submission changed after device revocation")
	}
}

func TestVerifyDataIntegrity(t *testing.T) {
	f := setup(t)
	data := []byte("the real payload")
	hash := f.submit(t, data, "ipfs://x")

	ok, err := f.svc.VerifyDataIntegrity(ctx, hash, data)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("matching payload should verify")
	}

	ok, err = f.svc.VerifyDataIntegrity(ctx, hash, []byte("a forged payload"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("forged payload should not verify")
	}

	unknown := ledger.HashContent([]byte("never submitted"))
	if _, err := f.svc.VerifyDataIntegrity(ctx, unknown, data); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("unknown hash: got %v, want ErrNotFound", err)
	}
}

func TestIndexConsistency(t *testing.T) {
	f := setup(t)
	h1 := f.submit(t, []byte("one"), "ipfs://1")
	h2 := f.submit(t, []byte("two"), "ipfs://2")
	h3 := f.submit(t, []byte("three"), "ipfs://3")

	byDevice, err := f.svc.GetDeviceSubmissions(ctx, deviceID)
	if err != nil {
		t.Fatal(err)
	}
	byVerifier, err := f.svc.GetVerifierSubmissions(ctx, verifierAddr)
	if err != nil {
		t.Fatal(err)
	}
	total, _ := f.svc.TotalSubmissions(ctx)

	if uint64(len(byDevice)) != total || uint64(len(byVerifier)) != total {
		t.Errorf("index sizes %d/%d != total %d", len(byDevice), len(byVerifier), total)
	}

	want := []string{h1, h2, h3}
	for i, h := range want {
		if byDevice[i] != h {
			t.Errorf("device index[%d]: got %q, want %q", i, byDevice[i], h)
		}
		// Every indexed hash must resolve in the primary map.
		if _, err := f.svc.VerifySubmission(ctx, byDevice[i]); err != nil {
			t.Errorf("index entry %q not in primary map: %v", byDevice[i], err)
		}
	}
}

func TestGetSubmissionHistory_pagination(t *testing.T) {
	f := setup(t)
	var hashes []string
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		hashes = append(hashes, f.submit(t, []byte(d), "ipfs://"+d))
	}

	full, err := f.svc.GetSubmissionHistory(ctx, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(full) != 5 {
		t.Fatalf("full history: got %d entries", len(full))
	}
	for i := range hashes {
		if full[i] != hashes[i] {
			t.Errorf("history[%d]: got %q, want %q", i, full[i], hashes[i])
		}
	}

	// Count clamped at the tail.
	tail, err := f.svc.GetSubmissionHistory(ctx, 3, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0] != hashes[3] || tail[1] != hashes[4] {
		t.Errorf("tail slice: %v", tail)
	}

	// Start at the boundary fails.
	if _, err := f.svc.GetSubmissionHistory(ctx, 5, 1); !errors.Is(err, errdefs.ErrRange) {
		t.Errorf("start == total: got %v, want ErrRange", err)
	}
	if _, err := f.svc.GetSubmissionHistory(ctx, 99, 1); !errors.Is(err, errdefs.ErrRange) {
		t.Errorf("start > total: got %v, want ErrRange", err)
	}
}

func TestGetSubmissionHistory_emptyLedger(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.GetSubmissionHistory(ctx, 0, 1); !errors.Is(err, errdefs.ErrRange) {
		t.Errorf("empty ledger: got %v, want ErrRange", err)
	}
}

func TestGetSubmissionDetails_joinsCurrentRegistryState(t *testing.T) {
	f := setup(t)
	hash := f.submit(t, []byte("joined"), "ipfs://x")

	details, err := f.svc.GetSubmissionDetails(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if details.Device == nil || details.Device.DeviceID != deviceID {
		t.Fatal("details missing device")
	}
	if details.Verifier == nil || !details.Verifier.Active {
		t.Fatal("details missing active verifier")
	}

	// Deactivate: the join reflects *current* state, the snapshot does not move.
	_ = f.reg.SetVerifierActive(ctx, verifierAddr, false)
	details, err = f.svc.GetSubmissionDetails(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if details.Verifier.Active {
		t.Error("join should show the verifier as currently inactive")
	}
	if details.Submission.VerifierAddress != verifierAddr {
		t.Error("historical snapshot on the submission must not change")
	}
}

func TestGetSubmissionDetails_notFound(t *testing.T) {
	f := setup(t)
	unknown := ledger.HashContent([]byte("ghost"))
	if _, err := f.svc.GetSubmissionDetails(ctx, unknown); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSetRegistry_repointsAuthorization(t *testing.T) {
	f := setup(t)

	// A fresh registry that knows nothing: submissions must now be refused.
	f.svc.SetRegistry(registry.NewMemory())

	hash := ledger.HashContent([]byte("after repoint"))
	hashBytes, _ := hex.DecodeString(hash)
	sig := ed25519.Sign(f.priv, hashBytes)
	_, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID: deviceID, DataHash: hash, Signature: sig, DataURI: "ipfs://x",
	})
	if !errors.Is(err, errdefs.ErrUnauthorized) {
		t.Errorf("after repoint: got %v, want ErrUnauthorized", err)
	}
}

// End-to-end scenario from the trust-chain acceptance checklist.
func TestEndToEndScenario(t *testing.T) {
	f := setup(t)

	h1 := f.submit(t, []byte("reading 1"), "ipfs://x")
	if !f.svc.HasSubmission(ctx, h1) {
		t.Fatal("H1 should exist")
	}
	subs, _ := f.svc.GetDeviceSubmissions(ctx, deviceID)
	if len(subs) != 1 || subs[0] != h1 {
		t.Fatalf("device submissions after H1: %v", subs)
	}

	// Revoke the device: H2 must be refused and totals unchanged.
	_ = f.reg.SetDeviceActive(ctx, deviceID, false)
	h2 := ledger.HashContent([]byte("reading 2"))
	h2Bytes, _ := hex.DecodeString(h2)
	sig2 := ed25519.Sign(f.priv, h2Bytes)
	if _, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID: deviceID, DataHash: h2, Signature: sig2, DataURI: "ipfs://y", Metadata: "{}",
	}); !errors.Is(err, errdefs.ErrUnauthorized) {
		t.Fatalf("revoked device: got %v", err)
	}
	if total, _ := f.svc.TotalSubmissions(ctx); total != 1 {
		t.Fatalf("total after refused H2: %d", total)
	}

	// Reinstate and resubmit H2.
	_ = f.reg.SetDeviceActive(ctx, deviceID, true)
	if _, err := f.svc.SubmitData(ctx, ledger.SubmitRequest{
		DeviceID: deviceID, DataHash: h2, Signature: sig2, DataURI: "ipfs://y", Metadata: "{}",
	}); err != nil {
		t.Fatalf("H2 after reinstatement: %v", err)
	}

	subs, _ = f.svc.GetDeviceSubmissions(ctx, deviceID)
	if len(subs) != 2 || subs[0] != h1 || subs[1] != h2 {
		t.Fatalf("device submissions: %v", subs)
	}
	history, err := f.svc.GetSubmissionHistory(ctx, 0, 2)
	if err != nil || len(history) != 2 || history[0] != h1 || history[1] != h2 {
		t.Fatalf("history: %v (%v)", history, err)
	}
	if _, err := f.svc.GetSubmissionHistory(ctx, 2, 1); !errors.Is(err, errdefs.ErrRange) {
		t.Fatalf("history(2,1): got %v, want ErrRange", err)
	}
}

func TestHashContent_keccak256(t *testing.T) {
	// Keccak-256 of the empty string is a well-known constant.
	const emptyKeccak = "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := ledger.HashContent(nil); got != emptyKeccak {
		t.Errorf("Keccak-256(\"\"): got %s", got)
	}
}
