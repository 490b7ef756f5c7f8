// Package devrelay is an in-memory relay server for development and
// end-to-end tests. It implements the full relay surface the client
// speaks: registration, message queues, contact-request queues,
// presence, and account deletion. Nothing is persisted and nothing is
// decrypted; content is queued and ferried as the opaque base64 blobs
// the client submits.
package devrelay

import (
	"crypto/ed25519"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/relay"
)

// onlineWindow is how recently a client must have pinged to count as
// online.
const onlineWindow = 45 * time.Second

type account struct {
	publicKey  string
	signingKey ed25519.PublicKey
	lastSeen   time.Time
}

type queuedMessage struct {
	id      string
	content string
}

type queuedRequest struct {
	from    string
	content string
}

// Server is the in-memory relay state plus its HTTP surface.
type Server struct {
	mu       sync.Mutex
	accounts map[string]*account
	queues   map[string][]queuedMessage
	requests map[string][]queuedRequest
	now      func() time.Time
}

// NewServer creates an empty relay.
func NewServer() *Server {
	return &Server{
		accounts: make(map[string]*account),
		queues:   make(map[string][]queuedMessage),
		requests: make(map[string][]queuedRequest),
		now:      time.Now,
	}
}

// Handler builds the HTTP routing for the relay surface.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/register", s.handleRegister)

	auth := r.Group("/", s.requireSignature)
	auth.GET("/check/:id", s.handleCheck)
	auth.POST("/ack", s.handleAck)
	auth.POST("/send", s.handleSend)
	auth.POST("/friend-request", s.handleFriendRequest)
	auth.GET("/friend-requests/:id", s.handleFriendRequests)
	auth.POST("/friend-request/remove", s.handleRemoveFriendRequest)
	auth.POST("/ping", s.handlePing)
	auth.POST("/status/batch", s.handleStatusBatch)
	auth.POST("/delete-account", s.handleDeleteAccount)

	return r
}

// requireSignature authenticates a request against the registered
// signing key for the claimed ID. An unknown ID gets 401, which tells
// the client to re-register.
func (s *Server) requireSignature(c *gin.Context) {
	id := c.GetHeader(relay.HeaderID)
	tsStr := c.GetHeader(relay.HeaderTimestamp)
	sigHex := c.GetHeader(relay.HeaderSignature)
	if id == "" || tsStr == "" || sigHex == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
		return
	}

	s.mu.Lock()
	acct, known := s.accounts[id]
	s.mu.Unlock()
	if !known {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown id"})
		return
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "bad timestamp"})
		return
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "bad signature encoding"})
		return
	}

	line := relay.SignRequestLine(id, ts, c.Request.Method, c.Request.URL.Path)
	if !ed25519.Verify(acct.signingKey, []byte(line), sig) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signature mismatch"})
		return
	}

	c.Next()
}

func (s *Server) handleRegister(c *gin.Context) {
	var body struct {
		ID         string `json:"id" binding:"required"`
		PublicKey  string `json:"publicKey" binding:"required"`
		SigningKey string `json:"signingKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, err := hex.DecodeString(body.SigningKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signing key"})
		return
	}

	s.mu.Lock()
	s.accounts[body.ID] = &account{
		publicKey:  body.PublicKey,
		signingKey: ed25519.PublicKey(raw),
		lastSeen:   s.now(),
	}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleRegister",
		"ghost_id": body.ID,
	}).Info("Client registered")
	c.Status(http.StatusOK)
}

func (s *Server) handleCheck(c *gin.Context) {
	id := c.Param("id")
	if id != c.GetHeader(relay.HeaderID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "id mismatch"})
		return
	}

	s.mu.Lock()
	queued := s.queues[id]
	s.mu.Unlock()

	out := make([]relay.Delivery, 0, len(queued))
	for _, m := range queued {
		out = append(out, relay.Delivery{ID: m.id, Content: m.content})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAck(c *gin.Context) {
	var body struct {
		MessageIDs []string `json:"messageIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	acked := make(map[string]bool, len(body.MessageIDs))
	for _, id := range body.MessageIDs {
		acked[id] = true
	}

	owner := c.GetHeader(relay.HeaderID)
	s.mu.Lock()
	kept := s.queues[owner][:0]
	for _, m := range s.queues[owner] {
		if !acked[m.id] {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(s.queues, owner)
	} else {
		s.queues[owner] = kept
	}
	s.mu.Unlock()

	c.Status(http.StatusOK)
}

func (s *Server) handleSend(c *gin.Context) {
	var body struct {
		To      string `json:"to" binding:"required"`
		Content string `json:"encryptedContent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.queues[body.To] = append(s.queues[body.To], queuedMessage{
		id:      uuid.NewString(),
		content: body.Content,
	})
	s.mu.Unlock()

	c.Status(http.StatusOK)
}

func (s *Server) handleFriendRequest(c *gin.Context) {
	var body struct {
		To      string `json:"to" binding:"required"`
		From    string `json:"from" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	// One pending request per sender; a re-send replaces the old one.
	kept := s.requests[body.To][:0]
	for _, r := range s.requests[body.To] {
		if r.from != body.From {
			kept = append(kept, r)
		}
	}
	s.requests[body.To] = append(kept, queuedRequest{from: body.From, content: body.Content})
	s.mu.Unlock()

	c.Status(http.StatusOK)
}

func (s *Server) handleFriendRequests(c *gin.Context) {
	id := c.Param("id")
	if id != c.GetHeader(relay.HeaderID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "id mismatch"})
		return
	}

	s.mu.Lock()
	queued := s.requests[id]
	s.mu.Unlock()

	out := make([]relay.FriendRequest, 0, len(queued))
	for _, r := range queued {
		out = append(out, relay.FriendRequest{From: r.from, Content: r.content})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRemoveFriendRequest(c *gin.Context) {
	var body struct {
		UserID string `json:"userId" binding:"required"`
		FromID string `json:"fromId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.UserID != c.GetHeader(relay.HeaderID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "id mismatch"})
		return
	}

	s.mu.Lock()
	kept := s.requests[body.UserID][:0]
	for _, r := range s.requests[body.UserID] {
		if r.from != body.FromID {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.requests, body.UserID)
	} else {
		s.requests[body.UserID] = kept
	}
	s.mu.Unlock()

	c.Status(http.StatusOK)
}

func (s *Server) handlePing(c *gin.Context) {
	id := c.GetHeader(relay.HeaderID)

	s.mu.Lock()
	if acct, ok := s.accounts[id]; ok {
		acct.lastSeen = s.now()
	}
	s.mu.Unlock()

	c.Status(http.StatusOK)
}

func (s *Server) handleStatusBatch(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := s.now()
	out := make(map[string]relay.Presence, len(body.IDs))

	s.mu.Lock()
	for _, id := range body.IDs {
		acct, ok := s.accounts[id]
		if !ok {
			continue
		}
		out[id] = relay.Presence{
			IsOnline: now.Sub(acct.lastSeen) <= onlineWindow,
			LastSeen: acct.lastSeen.UnixMilli(),
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	id := c.GetHeader(relay.HeaderID)

	s.mu.Lock()
	delete(s.accounts, id)
	delete(s.queues, id)
	delete(s.requests, id)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleDeleteAccount",
		"ghost_id": id,
	}).Info("Account deleted")
	c.Status(http.StatusOK)
}
