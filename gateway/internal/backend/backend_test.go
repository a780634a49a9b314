package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/stationlink/gateway/internal/config"
	"github.com/hydrolab/stationlink/pkg/types"
)

// fakeBackend issues numbered tokens and records metrics pushes.
type fakeBackend struct {
	logins      atomic.Int32
	logouts     atomic.Int32
	failLogins  atomic.Int32 // reject this many logins with 503
	metricsHits atomic.Int32
	rejectWith  atomic.Int32 // status returned by /metrics when non-zero

	logoutGate chan struct{} // when set, DELETE /session blocks until closed

	mu       sync.Mutex
	token    string
	received []pushBody
	ids      []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/session", fb.session)
	mux.HandleFunc("/metrics", fb.metrics)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if fb.failLogins.Load() > 0 {
			fb.failLogins.Add(-1)
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username != "station" || req.Password != "s3cret" {
			http.Error(w, "bad credentials", http.StatusForbidden)
			return
		}
		n := fb.logins.Add(1)
		fb.mu.Lock()
		fb.token = "tok-" + string(rune('0'+n))
		tok := fb.token
		fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(loginResponse{Token: tok})
	case http.MethodDelete:
		if fb.logoutGate != nil {
			<-fb.logoutGate
		}
		fb.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fb *fakeBackend) metrics(w http.ResponseWriter, r *http.Request) {
	fb.metricsHits.Add(1)
	if code := fb.rejectWith.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+fb.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var body pushBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fb.received = append(fb.received, body)
	fb.ids = append(fb.ids, r.Header.Get("X-Request-ID"))
	w.WriteHeader(http.StatusOK)
}

func (fb *fakeBackend) pushes() []pushBody {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]pushBody(nil), fb.received...)
}

func testBackendConfig(t *testing.T, endpoint string) config.BackendConfig {
	t.Helper()
	t.Setenv("TEST_BACKEND_PASSWORD", "s3cret")
	return config.BackendConfig{
		Endpoint:    endpoint,
		Username:    "station",
		PasswordEnv: "TEST_BACKEND_PASSWORD",
		Timeout:     2 * time.Second,
		LoginRetry:  5 * time.Millisecond,
		BufferSize:  4,
	}
}

func makeBatch(v float64) types.Batch {
	return types.Batch{
		WorkstationName: "ws-1",
		Metrics:         []types.Metric{{Measurement: "pressure", Field: "C1", Value: v}},
		CollectedAt:     time.Now(),
	}
}

func TestLogin_RetriesUntilSuccess(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.failLogins.Store(3)
	p := New(testBackendConfig(t, srv.URL), "ws-1")

	require.NoError(t, p.Session().Login(context.Background()))
	assert.Equal(t, "tok-1", p.Session().Token())
	assert.EqualValues(t, 0, fb.failLogins.Load())
}

func TestLogin_StopsOnCancel(t *testing.T) {
	_, srv := newFakeBackend(t)
	cfg := testBackendConfig(t, srv.URL)
	cfg.Username = "wrong"
	p := New(cfg, "ws-1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Session().Login(ctx))
	assert.Empty(t, p.Session().Token())
}

func TestPush_Success(t *testing.T) {
	fb, srv := newFakeBackend(t)
	p := New(testBackendConfig(t, srv.URL), "ws-1")
	p.newID = func() string { return "req-1" }
	require.NoError(t, p.Session().Login(context.Background()))

	require.NoError(t, p.Push(context.Background(), makeBatch(1013.2)))

	got := fb.pushes()
	require.Len(t, got, 1)
	assert.Equal(t, "ws-1", got[0].WorkstationName)
	assert.Equal(t, []types.Metric{{Measurement: "pressure", Field: "C1", Value: 1013.2}}, got[0].Metrics)
	assert.Equal(t, []string{"req-1"}, fb.ids)
	assert.EqualValues(t, 1, p.Stats().Pushed)
}

func TestPush_NotAuthenticated(t *testing.T) {
	fb, srv := newFakeBackend(t)
	p := New(testBackendConfig(t, srv.URL), "ws-1")

	assert.ErrorIs(t, p.Push(context.Background(), makeBatch(1)), ErrNotAuthenticated)
	assert.Zero(t, fb.metricsHits.Load())
}

func TestPush_UnauthorizedReauthenticatesOnceWithoutResend(t *testing.T) {
	fb, srv := newFakeBackend(t)
	p := New(testBackendConfig(t, srv.URL), "ws-1")
	require.NoError(t, p.Session().Login(context.Background()))

	fb.rejectWith.Store(http.StatusUnauthorized)
	err := p.Push(context.Background(), makeBatch(1))

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.EqualValues(t, 1, fb.metricsHits.Load(), "batch is not resent")
	assert.EqualValues(t, 2, fb.logins.Load())
	assert.EqualValues(t, 1, fb.logouts.Load())
	assert.EqualValues(t, 1, p.Stats().Reauths)
	assert.Equal(t, "tok-2", p.Session().Token())
}

func TestPush_OtherStatusIsError(t *testing.T) {
	fb, srv := newFakeBackend(t)
	p := New(testBackendConfig(t, srv.URL), "ws-1")
	require.NoError(t, p.Session().Login(context.Background()))

	fb.rejectWith.Store(http.StatusInternalServerError)
	err := p.Push(context.Background(), makeBatch(1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionExpired))
	assert.EqualValues(t, 1, fb.logins.Load(), "no reauthentication on 5xx")
	assert.EqualValues(t, 1, p.Stats().Failed)
}

func TestReauthenticate_SharedBetweenCallers(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.logoutGate = make(chan struct{})
	p := New(testBackendConfig(t, srv.URL), "ws-1")
	require.NoError(t, p.Session().Login(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Session().Reauthenticate(context.Background()))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(fb.logoutGate)
	wg.Wait()

	assert.EqualValues(t, 1, fb.logouts.Load())
	assert.EqualValues(t, 2, fb.logins.Load())
}

func TestShip_EvictsOldest(t *testing.T) {
	cfg := testBackendConfig(t, "http://unused")
	cfg.BufferSize = 2
	p := New(cfg, "ws-1")

	p.Ship(makeBatch(1))
	p.Ship(makeBatch(2))
	p.Ship(makeBatch(3))

	assert.EqualValues(t, 1, p.Stats().Evicted)
	assert.Equal(t, 2.0, (<-p.buf).Metrics[0].Value)
	assert.Equal(t, 3.0, (<-p.buf).Metrics[0].Value)
}

func TestRun_LogsInAndDrains(t *testing.T) {
	fb, srv := newFakeBackend(t)
	p := New(testBackendConfig(t, srv.URL), "ws-1")

	p.Ship(makeBatch(1))
	p.Ship(makeBatch(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(fb.pushes()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.EqualValues(t, 1, fb.logouts.Load(), "logout on shutdown")
	assert.Empty(t, p.Session().Token())
}
