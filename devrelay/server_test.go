package devrelay

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostmsg/ghostcore/identity"
	"github.com/ghostmsg/ghostcore/relay"
)

func newPeer(t *testing.T, url string) (*relay.Client, *identity.Identity) {
	t.Helper()
	session := identity.NewSession(identity.NewFileStore(filepath.Join(t.TempDir(), "identity.key")))
	ident, err := session.Create()
	require.NoError(t, err)

	c := relay.NewClient(url, session)
	require.NoError(t, c.Register(context.Background()))
	return c, ident
}

func TestQueueLifecycle(t *testing.T) {
	srv := httptest.NewServer(NewServer().Handler())
	defer srv.Close()
	ctx := context.Background()

	alice, aliceID := newPeer(t, srv.URL)
	bob, bobID := newPeer(t, srv.URL)

	require.NoError(t, alice.Send(ctx, bobID.ID, "b2xhLWNpcGhlcnRleHQ="))

	deliveries, err := bob.Check(ctx)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "b2xhLWNpcGhlcnRleHQ=", deliveries[0].Content)
	assert.NotEmpty(t, deliveries[0].ID)

	// Unacked messages are redelivered.
	again, err := bob.Check(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, deliveries[0].ID, again[0].ID)

	require.NoError(t, bob.Ack(ctx, []string{deliveries[0].ID}))
	empty, err := bob.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Acking never exposes another account's queue.
	_, err = alice.Check(ctx)
	require.NoError(t, err)
	_ = aliceID
}

func TestFriendRequestReplacedPerSender(t *testing.T) {
	srv := httptest.NewServer(NewServer().Handler())
	defer srv.Close()
	ctx := context.Background()

	alice, _ := newPeer(t, srv.URL)
	bob, bobID := newPeer(t, srv.URL)

	require.NoError(t, alice.SendFriendRequest(ctx, bobID.ID, "Zmlyc3Q="))
	require.NoError(t, alice.SendFriendRequest(ctx, bobID.ID, "c2Vjb25k"))

	queued, err := bob.FriendRequests(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1, "a re-sent request replaces the pending one")
	assert.Equal(t, "c2Vjb25k", queued[0].Content)

	require.NoError(t, bob.RemoveFriendRequest(ctx, queued[0].From))
	queued, err = bob.FriendRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestPresence(t *testing.T) {
	srv := httptest.NewServer(NewServer().Handler())
	defer srv.Close()
	ctx := context.Background()

	alice, _ := newPeer(t, srv.URL)
	_, bobID := newPeer(t, srv.URL)

	require.NoError(t, alice.Ping(ctx))

	statuses, err := alice.StatusBatch(ctx, []string{bobID.ID, "UNKNOWNPEER0"})
	require.NoError(t, err)
	require.Contains(t, statuses, bobID.ID)
	assert.True(t, statuses[bobID.ID].IsOnline, "registration counts as a recent sighting")
	assert.NotContains(t, statuses, "UNKNOWNPEER0")
	assert.WithinDuration(t, time.Now(),
		time.UnixMilli(statuses[bobID.ID].LastSeen), 5*time.Second)
}

func TestDeleteAccountForgetsEverything(t *testing.T) {
	srv := httptest.NewServer(NewServer().Handler())
	defer srv.Close()
	ctx := context.Background()

	alice, _ := newPeer(t, srv.URL)
	bob, bobID := newPeer(t, srv.URL)

	require.NoError(t, alice.Send(ctx, bobID.ID, "cGVuZGluZw=="))
	require.NoError(t, bob.DeleteAccount(ctx))

	// The client auto-re-registers after the 401, so the call succeeds
	// but the old queue is gone.
	deliveries, err := bob.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}
