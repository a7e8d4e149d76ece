package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/common"
	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/RightsTracker/NuGetGallery/internal/server/auth"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/RightsTracker/NuGetGallery/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeUploader struct {
	validateRes *services.OperationResult
	validateErr error
	createRes   *services.OperationResult
	createErr   error

	gotUser    *models.User
	gotBody    []byte
	createdFor *models.Package
}

func (f *fakeUploader) ValidateUploadedSymbolsPackage(ctx context.Context, stream services.PackageStream, user *models.User) (*services.OperationResult, error) {
	f.gotUser = user
	f.gotBody, _ = io.ReadAll(stream)
	return f.validateRes, f.validateErr
}

func (f *fakeUploader) CreateAndUploadSymbolsPackage(ctx context.Context, pkg *models.Package, stream io.ReadSeeker) (*services.OperationResult, error) {
	f.createdFor = pkg
	return f.createRes, f.createErr
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func newTestServer(t *testing.T, up Uploader, opts Options) *Server {
	t.Helper()
	opts.SecretKey = secret
	if opts.SpoolDir == "" {
		opts.SpoolDir = t.TempDir()
	}
	return NewServer(opts, up, logging.NewNopLogger())
}

func token(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(&models.User{ID: "u1", Username: "alice"}, []byte(secret), ttl)
	require.NoError(t, err)
	return tok
}

func put(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/v2/symbolpackage", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	return r
}

func TestUpload_Created(t *testing.T) {
	pkg := &models.Package{ID: "Contoso.Utils", NormalizedVersion: "1.0.0"}
	up := &fakeUploader{
		validateRes: &services.OperationResult{Code: services.ResultOK, Success: true, Package: pkg},
		createRes:   &services.OperationResult{Code: services.ResultCreated, Success: true, Package: pkg},
	}
	h := newTestServer(t, up, Options{}).Handler()

	rec := put(t, h, "archive-bytes", map[string]string{common.AuthorizationHeaderName: "Bearer " + token(t, time.Hour)})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", decode(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, "alice", up.gotUser.Username)
	assert.Equal(t, "archive-bytes", string(up.gotBody))
	assert.Same(t, pkg, up.createdFor)
}

func TestUpload_ApiKeyHeader(t *testing.T) {
	up := &fakeUploader{validateRes: &services.OperationResult{Code: services.ResultNotFound, Message: "missing package"}}
	h := newTestServer(t, up, Options{}).Handler()

	rec := put(t, h, "x", map[string]string{common.ApiKeyHeaderName: token(t, time.Hour)})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing package", decode(t, rec).Message)
	assert.Nil(t, up.createdFor, "create is skipped after a rejection")
}

func TestUpload_ResultStatusMapping(t *testing.T) {
	tests := []struct {
		code services.ResultCode
		want int
	}{
		{services.ResultBadRequest, http.StatusBadRequest},
		{services.ResultUnauthorized, http.StatusUnauthorized},
		{services.ResultNotFound, http.StatusNotFound},
		{services.ResultConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			up := &fakeUploader{validateRes: &services.OperationResult{Code: tt.code}}
			rec := put(t, newTestServer(t, up, Options{}).Handler(), "x", map[string]string{common.ApiKeyHeaderName: token(t, time.Hour)})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, http.StatusOK, StatusForResult(services.ResultOK))
	assert.Equal(t, http.StatusInternalServerError, StatusForResult(services.ResultCode(42)))
}

func TestUpload_ConflictFromCreate(t *testing.T) {
	up := &fakeUploader{
		validateRes: &services.OperationResult{Code: services.ResultOK, Success: true, Package: &models.Package{}},
		createRes:   &services.OperationResult{Code: services.ResultConflict, Message: "already validating"},
	}
	rec := put(t, newTestServer(t, up, Options{}).Handler(), "x", map[string]string{common.ApiKeyHeaderName: token(t, time.Hour)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already validating", decode(t, rec).Message)
}

func TestUpload_InternalErrors(t *testing.T) {
	ok := &services.OperationResult{Code: services.ResultOK, Success: true, Package: &models.Package{}}
	for name, up := range map[string]*fakeUploader{
		"validate": {validateErr: errors.New("db down")},
		"create":   {validateRes: ok, createErr: errors.New("commit failed")},
	} {
		t.Run(name, func(t *testing.T) {
			rec := put(t, newTestServer(t, up, Options{}).Handler(), "x", map[string]string{common.ApiKeyHeaderName: token(t, time.Hour)})
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.NotContains(t, rec.Body.String(), "db down")
		})
	}
}

func TestUpload_Auth(t *testing.T) {
	up := &fakeUploader{}
	h := newTestServer(t, up, Options{}).Handler()

	tests := []struct {
		name    string
		headers map[string]string
		msg     string
	}{
		{name: "missing", headers: nil, msg: "missing token"},
		{name: "wrong scheme", headers: map[string]string{common.AuthorizationHeaderName: "Basic abc"}, msg: "missing token"},
		{name: "garbage", headers: map[string]string{common.ApiKeyHeaderName: "nope"}, msg: "invalid token"},
		{name: "expired", headers: map[string]string{common.ApiKeyHeaderName: token(t, -time.Minute)}, msg: "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := put(t, h, "x", tt.headers)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec).Message)
		})
	}
	assert.Nil(t, up.gotUser)
}

func TestUpload_BodyLimits(t *testing.T) {
	up := &fakeUploader{}
	h := newTestServer(t, up, Options{MaxUploadBytes: 4}).Handler()
	hdr := map[string]string{common.ApiKeyHeaderName: token(t, time.Hour)}

	rec := put(t, h, "12345", hdr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = put(t, h, "", hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, up.gotUser)
}

func TestUpload_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeUploader{}, Options{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/symbolpackage", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	for name, tc := range map[string]struct {
		pinger Pinger
		want   int
	}{
		"no pinger": {nil, http.StatusOK},
		"healthy":   {fakePinger{}, http.StatusOK},
		"down":      {fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			h := newTestServer(t, &fakeUploader{}, Options{Health: tc.pinger}).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "symbols_push_total", Help: "pushes"})
	reg.MustRegister(c)
	c.Inc()

	h := newTestServer(t, &fakeUploader{}, Options{Gatherer: reg}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "symbols_push_total 1")
}

func TestRequestID_Propagated(t *testing.T) {
	h := newTestServer(t, &fakeUploader{}, Options{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeUploader{}, Options{Address: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ListenError(t *testing.T) {
	s := newTestServer(t, &fakeUploader{}, Options{Address: "bad-address"})
	require.Error(t, s.Run(context.Background()))
}

func TestUserFromContext_Empty(t *testing.T) {
	assert.Nil(t, UserFromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
