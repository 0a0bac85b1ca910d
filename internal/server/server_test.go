package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/leapstack-labs/wellplan/internal/protocols/glycerol"
	"github.com/leapstack-labs/wellplan/internal/state"
	"github.com/leapstack-labs/wellplan/internal/testutil"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, withStore bool) (*Server, *state.SQLiteStore) {
	t.Helper()
	cfg := Config{
		Logger: testutil.NewTestLogger(t),
		Params: func(name string) map[string]any {
			if name == "glycerol" {
				return map[string]any{"num_samples": 2}
			}
			return map[string]any{}
		},
	}
	var store *state.SQLiteStore
	if withStore {
		store = state.NewSQLiteStore(testutil.NewTestLogger(t))
		require.NoError(t, store.Open(":memory:"))
		require.NoError(t, store.Migrate())
		t.Cleanup(func() { _ = store.Close() })
		cfg.Store = store
	}
	return New(cfg), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Protocols(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/protocols/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []protocolView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.NotEmpty(t, list)

	rec = do(t, h, http.MethodGet, "/api/protocols/glycerol", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view protocolView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.EqualValues(t, 2, view.Defaults["num_samples"], "configured parameters override defaults")
	assert.EqualValues(t, 500, view.Defaults["glycerol_volume"])

	rec = do(t, h, http.MethodGet, "/api/protocols/miniprep", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Generate(t *testing.T) {
	s, store := newTestServer(t, true)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/protocols/glycerol/plan", `{"params": {"repeats": 2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Protocol     string         `json:"protocol"`
		Params       map[string]any `json:"params"`
		ParamsDigest string         `json:"params_digest"`
		Layout       []struct {
			Slot int `json:"slot"`
		} `json:"layout"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "glycerol", res.Protocol)
	assert.EqualValues(t, 2, res.Params["num_samples"])
	assert.EqualValues(t, 2, res.Params["repeats"])
	require.NotEmpty(t, res.Layout)
	assert.Equal(t, 11, res.Layout[0].Slot)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, res.ParamsDigest, runs[0].ParamsDigest)
}

func TestServer_GenerateSlots(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec := do(t, s.Handler(), http.MethodPost, "/api/protocols/glycerol/plan", `{"params": {"repeats": 1}, "slots": [3, 2, 1, 4]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"slot":3`)
}

func TestServer_GenerateErrors(t *testing.T) {
	s, store := newTestServer(t, true)
	h := s.Handler()

	tests := []struct {
		name, path, body string
		status           int
		contains         string
	}{
		{"unknown protocol", "/api/protocols/miniprep/plan", `{}`, http.StatusNotFound, `unknown protocol \"miniprep\"`},
		{"bad body", "/api/protocols/glycerol/plan", `{"params": [`, http.StatusBadRequest, "invalid request body"},
		{"invalid params", "/api/protocols/glycerol/plan", `{"params": {"repeats": 0}}`, http.StatusUnprocessableEntity, "repeats: must be positive"},
		{"deck too small", "/api/protocols/glycerol/plan", `{"params": {"repeats": 1}, "slots": [1]}`, http.StatusUnprocessableEntity, "deck exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}

	// Only the two generation failures reach the ledger.
	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, core.RunStatusFailed, r.Status)
		assert.NotEmpty(t, r.ParamsDigest)
	}
}

func TestServer_Runs(t *testing.T) {
	s, _ := newTestServer(t, true)
	h := s.Handler()

	for range 2 {
		rec := do(t, h, http.MethodPost, "/api/protocols/glycerol/plan", `{"params": {"repeats": 1}}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/runs/?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []runView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	rec = do(t, h, http.MethodGet, "/api/runs/?params="+runs[0].ParamsDigest, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var same []runView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &same))
	assert.Len(t, same, 2)

	rec = do(t, h, http.MethodGet, "/api/runs/"+runs[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		ID           string `json:"id"`
		Reproducible bool   `json:"reproducible"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, runs[0].ID, detail.ID)
	assert.True(t, detail.Reproducible)

	rec = do(t, h, http.MethodGet, "/api/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RunsWithoutLedger(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	for _, path := range []string{"/api/runs/", "/api/runs/events", "/api/runs/abc"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "no run ledger configured")
	}
}

func TestServer_RunEvents(t *testing.T) {
	s, _ := newTestServer(t, true)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/protocols/glycerol/plan", `{"params": {"repeats": 1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/runs/events", http.NoBody).WithContext(ctx)
	events := &firstWrite{ResponseRecorder: httptest.NewRecorder(), wrote: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(events, req)
	}()

	select {
	case <-events.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("no event written")
	}
	assert.Equal(t, 1, s.feed.len())
	cancel()
	<-done

	body := events.Body.String()
	assert.Contains(t, body, "glycerol")
	assert.Contains(t, body, "runs")
	assert.Equal(t, 0, s.feed.len())
}

// firstWrite signals when the handler first writes a body.
type firstWrite struct {
	*httptest.ResponseRecorder
	once  sync.Once
	wrote chan struct{}
}

func (w *firstWrite) Write(p []byte) (int, error) {
	n, err := w.ResponseRecorder.Write(p)
	w.once.Do(func() { close(w.wrote) })
	return n, err
}

func TestServer_Healthz(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_ServeShutsDown(t *testing.T) {
	s, _ := newTestServer(t, false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
