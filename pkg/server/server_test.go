package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedgate/seedgate/pkg/client"
	"github.com/seedgate/seedgate/pkg/manager"
)

type fakeService struct {
	sweeps   []bool
	sweepCtx context.Context
	accept   bool
	reason   string
	checkErr error

	gotClient  string
	gotTracker string
	gotSize    int64
}

func (f *fakeService) Manage(ctx context.Context, remove bool) (manager.Report, error) {
	f.sweeps = append(f.sweeps, remove)
	f.sweepCtx = ctx
	return manager.Report{Delete: remove}, nil
}

func (f *fakeService) Check(_ context.Context, clientName string, trackerName string, size int64) (bool, string, error) {
	f.gotClient, f.gotTracker, f.gotSize = clientName, trackerName, size
	return f.accept, f.reason, f.checkErr
}

func do(t *testing.T, h http.Handler, method string, target string, body string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	b, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(b)
}

func TestServer_ManageOutlivesRequest(t *testing.T) {
	svc := &fakeService{}
	h := New(":0", svc).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/?delete=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.sweepCtx)
	assert.NoError(t, svc.sweepCtx.Err())
	assert.Equal(t, []bool{true}, svc.sweeps)
}

func TestServer_Manage(t *testing.T) {
	svc := &fakeService{}
	h := New(":0", svc).Handler()

	status, body := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK\n", body)

	status, _ = do(t, h, http.MethodGet, "/?delete=1", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, h, http.MethodGet, "/?delete=true", "")
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, []bool{false, true, false}, svc.sweeps)
}

func TestServer_Check(t *testing.T) {
	tests := []struct {
		name       string
		svc        *fakeService
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "accepted",
			svc:        &fakeService{accept: true, reason: "OK"},
			body:       `{"client":"qbit","tracker":"red","size":1073741824}`,
			wantStatus: http.StatusOK,
			wantBody:   "OK\n",
		},
		{
			name:       "rejected",
			svc:        &fakeService{reason: "Download slots exceeded: 3/3."},
			body:       `{"client":"qbit","tracker":"red","size":1}`,
			wantStatus: http.StatusForbidden,
			wantBody:   "NOK: Download slots exceeded: 3/3.\n",
		},
		{
			name:       "missing_size",
			svc:        &fakeService{},
			body:       `{"client":"qbit","tracker":"red"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Required parameters: tracker, size, client.\n",
		},
		{
			name:       "malformed_json",
			svc:        &fakeService{},
			body:       `{"client":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Required parameters: tracker, size, client.\n",
		},
		{
			name:       "fractional_size",
			svc:        &fakeService{},
			body:       `{"client":"qbit","tracker":"red","size":1.5}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Size must be a positive integer.\n",
		},
		{
			name:       "string_size",
			svc:        &fakeService{},
			body:       `{"client":"qbit","tracker":"red","size":"100"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Size must be a positive integer.\n",
		},
		{
			name:       "zero_size",
			svc:        &fakeService{},
			body:       `{"client":"qbit","tracker":"red","size":0}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Size must be a positive integer.\n",
		},
		{
			name:       "unknown_tracker",
			svc:        &fakeService{checkErr: fmt.Errorf("%w: unknown tracker: ops", manager.ErrInvalidArgument)},
			body:       `{"client":"qbit","tracker":"ops","size":1}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Invalid parameters: invalid argument: unknown tracker: ops\n",
		},
		{
			name:       "backend_unavailable",
			svc:        &fakeService{checkErr: fmt.Errorf("check qbit: %w", client.ErrBackendUnavailable)},
			body:       `{"client":"qbit","tracker":"red","size":1}`,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "Backend unavailable: check qbit: backend unavailable\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, New(":0", tt.svc).Handler(), http.MethodPost, "/", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestServer_CheckPassesArguments(t *testing.T) {
	svc := &fakeService{accept: true}
	status, _ := do(t, New(":0", svc).Handler(), http.MethodPost, "/", `{"client":"qbit","tracker":"red","size":42}`)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "qbit", svc.gotClient)
	assert.Equal(t, "red", svc.gotTracker)
	assert.Equal(t, int64(42), svc.gotSize)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	status, _ := do(t, New(":0", &fakeService{}).Handler(), http.MethodDelete, "/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _ = do(t, New(":0", &fakeService{}).Handler(), http.MethodGet, "/other", "")
	assert.Equal(t, http.StatusNotFound, status)
}
