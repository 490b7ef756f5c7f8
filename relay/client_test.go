package relay

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostmsg/ghostcore/identity"
)

type fakeRelay struct {
	mu         sync.Mutex
	registered map[string]ed25519.PublicKey
	requests   []string
	rejectAll  bool
	acked      [][]string
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{registered: make(map[string]ed25519.PublicKey)}
}

func (f *fakeRelay) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)

		id := r.Header.Get(HeaderID)
		tsStr := r.Header.Get(HeaderTimestamp)
		sigHex := r.Header.Get(HeaderSignature)
		require.NotEmpty(t, id)
		require.NotEmpty(t, tsStr)
		require.NotEmpty(t, sigHex)

		if r.URL.Path == "/register" {
			var body struct {
				ID         string `json:"id"`
				SigningKey string `json:"signingKey"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			raw, err := hex.DecodeString(body.SigningKey)
			require.NoError(t, err)
			f.registered[body.ID] = ed25519.PublicKey(raw)
			w.WriteHeader(http.StatusOK)
			return
		}

		key, known := f.registered[id]
		if !known || f.rejectAll {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		// Verify the detached signature over the canonical line.
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		require.NoError(t, err)
		sig, err := hex.DecodeString(sigHex)
		require.NoError(t, err)
		line := SignRequestLine(id, ts, r.Method, r.URL.Path)
		require.True(t, ed25519.Verify(key, []byte(line), sig), "bad request signature")

		switch r.URL.Path {
		case "/ack":
			var body struct {
				MessageIDs []string `json:"messageIds"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.acked = append(f.acked, body.MessageIDs)
			w.WriteHeader(http.StatusOK)
		case "/status/batch":
			json.NewEncoder(w).Encode(map[string]Presence{
				"AAAAAAAAAAAA": {IsOnline: true, LastSeen: 1700000000000},
			})
		default:
			if r.Method == http.MethodGet {
				w.Write([]byte("[]"))
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	})
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	session := identity.NewSession(identity.NewFileStore(filepath.Join(t.TempDir(), "identity.key")))
	_, err := session.Create()
	require.NoError(t, err)
	return NewClient(url, session)
}

func TestRegisterAndSignedRequests(t *testing.T) {
	relay := newFakeRelay()
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx))

	deliveries, err := c.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, deliveries)

	require.NoError(t, c.Ack(ctx, []string{"d1", "d2"}))
	relay.mu.Lock()
	assert.Equal(t, [][]string{{"d1", "d2"}}, relay.acked)
	relay.mu.Unlock()
}

func TestAckEmptyBatchSkipsRequest(t *testing.T) {
	relay := newFakeRelay()
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Ack(context.Background(), nil))

	relay.mu.Lock()
	assert.Empty(t, relay.requests)
	relay.mu.Unlock()
}

func TestUnknownIDTriggersReRegistration(t *testing.T) {
	relay := newFakeRelay()
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	// Never registered: the first poll gets a 401, the client must
	// register once and retry.
	_, err := c.Check(ctx)
	require.NoError(t, err)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	ident, _ := c.session.Identity()
	path := "GET /check/" + ident.ID
	assert.Equal(t, []string{path, "POST /register", path}, relay.requests)
}

func TestPersistentRejectionSurfaces(t *testing.T) {
	relay := newFakeRelay()
	relay.rejectAll = true
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Check(context.Background())
	assert.Error(t, err, "a second rejection after re-registration is surfaced")
}

func TestStatusBatch(t *testing.T) {
	relay := newFakeRelay()
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.Register(ctx))

	statuses, err := c.StatusBatch(ctx, []string{"AAAAAAAAAAAA"})
	require.NoError(t, err)
	require.Contains(t, statuses, "AAAAAAAAAAAA")
	assert.True(t, statuses["AAAAAAAAAAAA"].IsOnline)

	// Empty input makes no network call.
	statuses, err = c.StatusBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestRelayUnreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Check(context.Background())
	assert.Error(t, err)
}
