package api_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/api"
	"github.com/physver/trustchain/internal/identity"
	"github.com/physver/trustchain/internal/ledger"
	"github.com/physver/trustchain/internal/registry"
)

type adminEnv struct {
	router *gin.Engine
	token  string
}

func newAdminEnv(t *testing.T, factory api.RegistryFactory) *adminEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer := identity.NewAdminIssuer([]byte("test-admin-secret"), "http://localhost", time.Hour)
	tok, err := issuer.Issue("test-operator")
	if err != nil {
		t.Fatal(err)
	}

	svc := ledger.NewService(ledger.NewMemory(), registry.NewMemory(), nil, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	api.NewAdminHandler(svc, issuer, factory, zap.NewNop()).Register(v1)

	return &adminEnv{router: r, token: tok}
}

func (e *adminEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAdmin_requiresToken(t *testing.T) {
	e := newAdminEnv(t, nil)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/verifiers"},
		{http.MethodGet, "/api/v1/verifiers"},
		{http.MethodPost, "/api/v1/devices"},
		{http.MethodPut, "/api/v1/registry"},
	}
	for _, p := range paths {
		w := e.do(t, p.method, p.path, map[string]string{}, false)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: got %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestAdmin_verifierLifecycle(t *testing.T) {
	e := newAdminEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/v1/verifiers", map[string]string{"address": verifierAddr}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("register verifier: got %d: %s", w.Code, w.Body.String())
	}

	// Duplicate.
	w = e.do(t, http.MethodPost, "/api/v1/verifiers", map[string]string{"address": verifierAddr}, true)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate verifier: got %d, want 409", w.Code)
	}

	// Deactivate.
	w = e.do(t, http.MethodPatch, "/api/v1/verifiers/"+verifierAddr+"/active", map[string]bool{"active": false}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate: got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/v1/verifiers/"+verifierAddr, nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("get verifier: got %d", w.Code)
	}
	var v registry.Verifier
	json.Unmarshal(w.Body.Bytes(), &v)
	if v.Active {
		t.Error("verifier should be inactive")
	}

	// Unknown verifier.
	w = e.do(t, http.MethodPatch, "/api/v1/verifiers/ghost/active", map[string]bool{"active": true}, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown verifier: got %d, want 404", w.Code)
	}
}

func TestAdmin_deviceLifecycle(t *testing.T) {
	e := newAdminEnv(t, nil)
	e.do(t, http.MethodPost, "/api/v1/verifiers", map[string]string{"address": verifierAddr}, true)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodPost, "/api/v1/devices", map[string]any{
		"device_id":        deviceID,
		"verifier_address": verifierAddr,
		"public_key":       pub,
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("register device: got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPatch, "/api/v1/devices/"+deviceID+"/active", map[string]bool{"active": false}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate device: got %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/api/v1/verifiers/"+verifierAddr+"/devices", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("list devices: got %d", w.Code)
	}
	var list struct {
		Devices []*registry.Device `json:"devices"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Devices) != 1 || list.Devices[0].Active {
		t.Errorf("device list: %+v", list.Devices)
	}
}

func TestAdmin_repointUnavailableWithoutFactory(t *testing.T) {
	e := newAdminEnv(t, nil)

	w := e.do(t, http.MethodPut, "/api/v1/registry", map[string]string{"database_url": "postgres://x"}, true)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("repoint without factory: got %d, want 501", w.Code)
	}
}

func TestAdmin_repointSwapsRegistry(t *testing.T) {
	fresh := registry.NewMemory()
	var gotDSN string
	factory := func(_ context.Context, dsn string) (registry.Registry, error) {
		gotDSN = dsn
		return fresh, nil
	}
	e := newAdminEnv(t, factory)

	w := e.do(t, http.MethodPut, "/api/v1/registry", map[string]string{"database_url": "postgres://replacement"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("repoint: got %d: %s", w.Code, w.Body.String())
	}
	if gotDSN != "postgres://replacement" {
		t.Errorf("factory DSN: got %q", gotDSN)
	}

	// The new registry is empty, so reads against it now 404.
	w = e.do(t, http.MethodGet, "/api/v1/verifiers/"+verifierAddr, nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("read after repoint: got %d, want 404", w.Code)
	}
}
