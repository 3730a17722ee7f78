package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-client/internal/session"
	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
	"github.com/jwalitptl/booking-client/pkg/kvstore"
	"github.com/jwalitptl/booking-client/pkg/logger"
	"github.com/jwalitptl/booking-client/pkg/metrics"
)

type navRecorder struct {
	mu        sync.Mutex
	redirects []string
}

func (n *navRecorder) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, path)
}

func (n *navRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}

type fixedLoc struct {
	path string
}

func (l *fixedLoc) CurrentPath() string {
	return l.path
}

type harness struct {
	client  *Client
	kv      kvstore.Store
	session *session.Store
	nav     *navRecorder
	loc     *fixedLoc
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kv := kvstore.NewMemory()
	sess := session.NewStore(kv, logger.Nop())
	nav := &navRecorder{}
	loc := &fixedLoc{path: "/patient/appointments"}

	client := New(Config{
		BaseURL:    srv.URL,
		AuthPrefix: "/auth/",
		LoginPath:  "/auth/login",
	}, Deps{
		KV:      kv,
		Session: sess,
		Nav:     nav,
		Loc:     loc,
		Metrics: metrics.New("test", prometheus.NewRegistry()),
		Logger:  logger.Nop(),
	})
	return &harness{client: client, kv: kv, session: sess, nav: nav, loc: loc}
}

func TestBearerTokenIsInjected(t *testing.T) {
	var gotAuth string
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	require.NoError(t, h.kv.Set(context.Background(), session.KeyToken, "tok-1"))

	require.NoError(t, h.client.Get(context.Background(), "/doctors", nil, nil))
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestSentinelTokensAttachNoCredential(t *testing.T) {
	for _, sentinel := range []string{"undefined", "null"} {
		var gotAuth string
		h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{}`))
		}))
		require.NoError(t, h.kv.Set(context.Background(), session.KeyToken, sentinel))

		require.NoError(t, h.client.Get(context.Background(), "/doctors", nil, nil))
		assert.Empty(t, gotAuth, sentinel)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	var gotID string
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{}`))
	}))
	require.NoError(t, h.client.Get(context.Background(), "/doctors", nil, nil))
	assert.NotEmpty(t, gotID)
}

func TestForbiddenClearsSessionAndRedirects(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	ctx := context.Background()
	require.NoError(t, h.session.Set(ctx, "tok-1", "PATIENT", nil))

	err := h.client.Get(ctx, "/appointments/patient", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsSessionExpired(err))

	// Both in-memory and persisted state are gone.
	assert.False(t, h.session.Authenticated())
	_, kvErr := h.kv.Get(ctx, session.KeyToken)
	assert.ErrorIs(t, kvErr, kvstore.ErrNotFound)
	_, kvErr = h.kv.Get(ctx, session.KeyRole)
	assert.ErrorIs(t, kvErr, kvstore.ErrNotFound)
	_, kvErr = h.kv.Get(ctx, session.KeyUser)
	assert.ErrorIs(t, kvErr, kvstore.ErrNotFound)

	redirects := h.nav.all()
	require.Len(t, redirects, 1)
	assert.Equal(t, "/auth/login?redirect=%2Fpatient%2Fappointments", redirects[0])
}

func TestUnauthorizedBehavesLikeForbidden(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	err := h.client.Get(context.Background(), "/appointments/patient", nil, nil)
	assert.True(t, apperrors.IsSessionExpired(err))
	assert.Len(t, h.nav.all(), 1)
}

func TestNoRedirectWhileOnAuthRoute(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.loc.path = "/auth/login"

	err := h.client.Post(context.Background(), "/auth/login", map[string]string{}, nil)
	require.Error(t, err)
	assert.Empty(t, h.nav.all())
}

func TestErrorStillPropagatesAfterRedirect(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"token expired"}`))
	}))
	err := h.client.Get(context.Background(), "/appointments/patient", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "token expired", apperrors.Message(err))
	assert.Len(t, h.nav.all(), 1)
}

func TestServerMessageIsExtracted(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"slot already booked"}`))
	}))
	err := h.client.Post(context.Background(), "/appointments", map[string]string{}, nil)
	require.Error(t, err)

	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeHTTP, e.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, e.Status)
	assert.Equal(t, "slot already booked", e.Message)
}

func TestMissingServerMessageFallsBack(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	err := h.client.Get(context.Background(), "/doctors", nil, nil)
	assert.Equal(t, apperrors.GenericMessage, apperrors.Message(err))
}

func TestNetworkErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h := newHarness(t, http.NotFoundHandler())
	// Point the client at a closed server.
	srv.Close()
	h.client.baseURL = srv.URL

	err := h.client.Get(context.Background(), "/doctors", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
}

func TestParamsAndBodyAreSent(t *testing.T) {
	var gotQuery, gotBody, gotContentType string
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		var buf [256]byte
		n, _ := r.Body.Read(buf[:])
		gotBody = string(buf[:n])
		w.Write([]byte(`{"ok":true}`))
	}))

	params := map[string][]string{"page": {"2"}, "status": {"PENDING"}}
	var result json.RawMessage
	require.NoError(t, h.client.Send(context.Background(), http.MethodPost, "/appointments",
		params, map[string]string{"doctorId": "d1"}, &result))

	assert.Contains(t, gotQuery, "page=2")
	assert.Contains(t, gotQuery, "status=PENDING")
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"doctorId":"d1"}`, gotBody)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}
