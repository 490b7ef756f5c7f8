// Package relay is the HTTP client for the ferrying server. The relay
// is untrusted: it only ever sees opaque ciphertext, opaque recipient
// IDs, and the signed request headers.
package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/crypto"
	"github.com/ghostmsg/ghostcore/identity"
)

// Authentication header names. The signature is a detached Ed25519
// signature over "{id}:{timestamp}:{METHOD}:{path}".
const (
	HeaderID        = "X-Ghost-ID"
	HeaderTimestamp = "X-Ghost-Timestamp"
	HeaderSignature = "X-Ghost-Signature"
)

// Delivery is one queued envelope returned by a poll.
type Delivery struct {
	ID      string `json:"id"`
	Content string `json:"content"` // base64 envelope
}

// Presence is one entry of a batch status response.
type Presence struct {
	IsOnline bool  `json:"isOnline"`
	LastSeen int64 `json:"lastSeen"` // unix milliseconds
}

// FriendRequest is a queued contact request.
type FriendRequest struct {
	From    string `json:"from"`
	Content string `json:"content"` // base64 anonymous envelope
}

// Client talks to one relay server on behalf of one identity.
type Client struct {
	base    string
	http    *http.Client
	session *identity.Session
	now     func() time.Time
}

// NewClient creates a relay client. base is the server URL without a
// trailing slash.
func NewClient(base string, session *identity.Session) *Client {
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: 15 * time.Second},
		session: session,
		now:     time.Now,
	}
}

// SignRequestLine produces the canonical string covered by the request
// signature.
func SignRequestLine(id string, timestamp int64, method, path string) string {
	return fmt.Sprintf("%s:%d:%s:%s", id, timestamp, method, path)
}

func (c *Client) sign(req *http.Request, path string) error {
	ident, err := c.session.Identity()
	if err != nil {
		return err
	}

	ts := c.now().UnixMilli()
	line := SignRequestLine(ident.ID, ts, req.Method, path)
	sig, err := crypto.Sign([]byte(line), ident.Signing.Private)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(HeaderID, ident.ID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig[:]))
	return nil
}

// do issues one signed JSON request. An unauthorized response triggers
// a single automatic re-registration and retry; the relay forgets IDs
// it has never seen or has expired.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	err := c.doOnce(ctx, method, path, body, out)
	if err == nil || !isUnknownID(err) {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "do",
		"path":     path,
	}).Info("Relay rejected ID, re-registering once")

	if err := c.Register(ctx); err != nil {
		return fmt.Errorf("re-registration failed: %w", err)
	}
	return c.doOnce(ctx, method, path, body, out)
}

type statusError struct {
	code int
	path string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay returned %d for %s", e.code, e.path)
}

func isUnknownID(err error) bool {
	se, ok := err.(*statusError)
	return ok && (se.code == http.StatusUnauthorized || se.code == http.StatusForbidden)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.sign(req, path); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, path: path}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode relay response: %w", err)
		}
	}
	return nil
}

// Register announces our ID, box public key and signing public key.
func (c *Client) Register(ctx context.Context) error {
	ident, err := c.session.Identity()
	if err != nil {
		return err
	}

	body := map[string]string{
		"id":         ident.ID,
		"publicKey":  hex.EncodeToString(ident.KeyPair.Public[:]),
		"signingKey": hex.EncodeToString(ident.Signing.Public),
	}
	return c.doOnce(ctx, http.MethodPost, "/register", body, nil)
}

// Check polls for queued deliveries.
func (c *Client) Check(ctx context.Context) ([]Delivery, error) {
	ident, err := c.session.Identity()
	if err != nil {
		return nil, err
	}

	var out []Delivery
	if err := c.do(ctx, http.MethodGet, "/check/"+ident.ID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ack acknowledges a processed batch so it is not redelivered.
// Duplicate acks are harmless.
func (c *Client) Ack(ctx context.Context, deliveryIDs []string) error {
	if len(deliveryIDs) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/ack", map[string][]string{"messageIds": deliveryIDs}, nil)
}

// Send queues an envelope for a recipient ID.
func (c *Client) Send(ctx context.Context, to, contentB64 string) error {
	body := map[string]string{"to": to, "encryptedContent": contentB64}
	return c.do(ctx, http.MethodPost, "/send", body, nil)
}

// SendFriendRequest queues an anonymous handshake envelope.
func (c *Client) SendFriendRequest(ctx context.Context, to, contentB64 string) error {
	ident, err := c.session.Identity()
	if err != nil {
		return err
	}
	body := map[string]string{"to": to, "from": ident.ID, "content": contentB64}
	return c.do(ctx, http.MethodPost, "/friend-request", body, nil)
}

// FriendRequests lists queued contact requests for us.
func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	ident, err := c.session.Identity()
	if err != nil {
		return nil, err
	}

	var out []FriendRequest
	if err := c.do(ctx, http.MethodGet, "/friend-requests/"+ident.ID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveFriendRequest clears a handled request from the relay queue.
func (c *Client) RemoveFriendRequest(ctx context.Context, fromID string) error {
	ident, err := c.session.Identity()
	if err != nil {
		return err
	}
	body := map[string]string{"userId": ident.ID, "fromId": fromID}
	return c.do(ctx, http.MethodPost, "/friend-request/remove", body, nil)
}

// Ping is the presence heartbeat.
func (c *Client) Ping(ctx context.Context) error {
	ident, err := c.session.Identity()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/ping", map[string]string{"id": ident.ID}, nil)
}

// StatusBatch fetches presence for a set of contact IDs.
func (c *Client) StatusBatch(ctx context.Context, ids []string) (map[string]Presence, error) {
	if len(ids) == 0 {
		return map[string]Presence{}, nil
	}

	var out map[string]Presence
	if err := c.do(ctx, http.MethodPost, "/status/batch", map[string][]string{"ids": ids}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAccount asks the relay to forget us. Best-effort: the local
// wipe proceeds whether or not this succeeds.
func (c *Client) DeleteAccount(ctx context.Context) error {
	ident, err := c.session.Identity()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/delete-account", map[string]string{"id": ident.ID}, nil)
}
