package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/cryptox"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/metrics"
	"github.com/dmitrijs2005/tors/internal/server/auth"
	"github.com/dmitrijs2005/tors/internal/server/models"
	"github.com/dmitrijs2005/tors/internal/server/services"
	"github.com/dmitrijs2005/tors/internal/server/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeAccounts struct {
	registerErr error
	authErr     error
}

func (f *fakeAccounts) Register(_ context.Context, userName, _ string) (*models.Account, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &models.Account{ID: "id-" + userName, UserName: userName}, nil
}

func (f *fakeAccounts) Authenticate(_ context.Context, userName, _ string) (*models.Account, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &models.Account{ID: "id-" + userName, UserName: userName}, nil
}

type fakeTokens struct {
	validateErr error
}

func (f *fakeTokens) Issue(_ context.Context, accountID string) (*models.AuthToken, error) {
	return &models.AuthToken{Value: "tok-" + accountID, AccountID: accountID, ExpiresAt: time.Unix(1_700_000_000, 0).UTC()}, nil
}

func (f *fakeTokens) Validate(_ context.Context, token string) (string, error) {
	if f.validateErr != nil {
		return "", f.validateErr
	}
	return strings.TrimPrefix(token, "tok-"), nil
}

type fakeKeys struct {
	pub ed25519.PublicKey
	err error
}

func (f fakeKeys) PublicKey() (ed25519.PublicKey, error) { return f.pub, f.err }

// --- helpers ---

func newTestServer(a Accounts, tk Tokens, k PublicKeys) *Server {
	return NewServer(":0", logging.NewNopLogger(), a, tk, k, nil, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

// --- tests ---

func TestRegister_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       string
		wantStatus int
		wantError  string
	}{
		{"created", nil, `{"user":"alice","password":"pw"}`, http.StatusCreated, ""},
		{"conflict", common.ErrConflict, `{"user":"alice","password":"pw"}`, http.StatusConflict, "user already exists"},
		{"invalid", common.ErrInvalidInput, `{"user":"","password":"pw"}`, http.StatusBadRequest, "invalid input"},
		{"malformed", nil, `{"user":`, http.StatusBadRequest, "malformed request"},
		{"unknown field", nil, `{"username":"a","password":"b"}`, http.StatusBadRequest, "malformed request"},
		{"storage", common.ErrStorageUnavailable, `{"user":"alice","password":"pw"}`, http.StatusInternalServerError, "internal error"},
		{"hashing", common.ErrHashingFailure, `{"user":"alice","password":"pw"}`, http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeAccounts{registerErr: tt.err}, &fakeTokens{}, fakeKeys{})
			rec := do(t, s.Handler(), http.MethodPost, "/api/register", tt.body, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decodeBody(t, rec)
			if tt.wantError == "" {
				assert.Equal(t, "id-alice", body["id"])
			} else {
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(&fakeAccounts{}, &fakeTokens{}, fakeKeys{})
	rec := do(t, s.Handler(), http.MethodPost, "/api/login", `{"user":"alice","password":"pw"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "tok-id-alice", body["token"])
	assert.Equal(t, "2023-11-14T22:13:20Z", body["expires_at"])

	s = newTestServer(&fakeAccounts{authErr: common.ErrorUnauthorized}, &fakeTokens{}, fakeKeys{})
	rec = do(t, s.Handler(), http.MethodPost, "/api/login", `{"user":"alice","password":"bad"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWhoAmI(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"ok", "Bearer tok-acc-1", nil, http.StatusOK, "acc-1"},
		{"missing", "", nil, http.StatusUnauthorized, "missing token"},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized, "missing token"},
		{"invalid", "Bearer x", common.ErrInvalidToken, http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer x", common.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeAccounts{}, &fakeTokens{validateErr: tt.err}, fakeKeys{})
			header := map[string]string{}
			if tt.header != "" {
				header[common.AuthorizationHeaderName] = tt.header
			}
			rec := do(t, s.Handler(), http.MethodGet, "/api/whoami", "", header)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, body["id"])
			} else {
				assert.Equal(t, tt.wantBody, body["error"])
			}
		})
	}
}

func TestPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s := newTestServer(&fakeAccounts{}, &fakeTokens{}, fakeKeys{pub: pub})
	rec := do(t, s.Handler(), http.MethodGet, "/api/keys/public", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "EdDSA", body["alg"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(pub), body["public_key"])

	s = newTestServer(&fakeAccounts{}, &fakeTokens{}, fakeKeys{err: errors.New("not loaded")})
	rec = do(t, s.Handler(), http.MethodGet, "/api/keys/public", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "not loaded")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := NewServer(":0", logging.NewNopLogger(), &fakeAccounts{}, &fakeTokens{}, fakeKeys{}, m, reg)

	do(t, s.Handler(), http.MethodPost, "/api/register", `{"user":"a","password":"b"}`, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tors_http_requests_total{method="POST",route="/api/register",status_code="201"} 1`)
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "tors.db"), logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.EnsureSchema(ctx))

	km := auth.NewKeyManager(st, nil, logging.NewNopLogger())
	require.NoError(t, km.Initialize(ctx))

	hasher := cryptox.NewPasswordHasher(cryptox.Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	accounts := services.NewAccountService(st, hasher, logging.NewNopLogger(), nil)
	tokens := services.NewTokenService(km, "tors", time.Minute, logging.NewNopLogger(), nil)
	h := NewServer(":0", logging.NewNopLogger(), accounts, tokens, km, nil, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/register", `{"user":"alice","password":"secret123"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["id"]

	rec = do(t, h, http.MethodPost, "/api/register", `{"user":"alice","password":"other"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/login", `{"user":"alice","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decodeBody(t, rec)["token"].(string)

	rec = do(t, h, http.MethodGet, "/api/whoami", "", map[string]string{
		common.AuthorizationHeaderName: common.BearerPrefix + token,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["id"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	s := newTestServer(&fakeAccounts{}, &fakeTokens{}, fakeKeys{})
	listen, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listen) }()

	resp, err := http.Post("http://"+listen.Addr().String()+"/api/register", "application/json",
		bytes.NewBufferString(`{"user":"a","password":"b"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
