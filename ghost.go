package ghostcore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/contact"
	"github.com/ghostmsg/ghostcore/envelope"
	"github.com/ghostmsg/ghostcore/identity"
	"github.com/ghostmsg/ghostcore/messaging"
	"github.com/ghostmsg/ghostcore/pinlock"
	"github.com/ghostmsg/ghostcore/protocol"
	"github.com/ghostmsg/ghostcore/relay"
	"github.com/ghostmsg/ghostcore/retention"
	"github.com/ghostmsg/ghostcore/storage"
)

// Storage record keys owned by the facade.
const (
	privacyKey = "privacy"
	profileKey = "profile"
)

// Default background cadences.
const (
	DefaultPollInterval     = 3 * time.Second
	DefaultPresenceInterval = 15 * time.Second
)

// Options configures a Ghost instance.
type Options struct {
	// DataDir holds the identity key file, the encrypted database, and
	// received media. Created if absent.
	DataDir string

	// RelayURL is the base URL of the message relay, without a trailing
	// slash.
	RelayURL string

	// PollInterval is the delivery poll cadence; zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// PresenceInterval is the heartbeat/status cadence; zero means
	// DefaultPresenceInterval.
	PresenceInterval time.Duration

	// SweepInterval is the ephemeral retention cadence; zero means
	// retention.DefaultInterval.
	SweepInterval time.Duration
}

// PrivacySettings are the local outbound-signal toggles. They control
// what we emit, never what we accept.
type PrivacySettings struct {
	SendReadReceipts      bool `json:"sendReadReceipts"`
	SendScreenshotNotices bool `json:"sendScreenshotNotices"`
}

// Profile is our own display identity, shared with contacts on change.
type Profile struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// IncomingRequest is a pending contact request awaiting a user decision.
type IncomingRequest struct {
	Payload     contact.AddPayload
	Observation contact.KeyObservation
}

// Ghost is the client core: identity, trust store, message history,
// relay transport, and the background loops that tie them together.
// All state lives in the encrypted storage engine under DataDir; the
// relay only ever sees ciphertext.
type Ghost struct {
	opts     Options
	session  *identity.Session
	engine   *storage.Engine
	contacts *contact.Store
	messages *messaging.Store
	pin      *pinlock.Lock
	relay    *relay.Client
	dispatch *protocol.Dispatcher
	sweeper  *retention.Sweeper

	events chan protocol.Event

	mu     sync.Mutex
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// New opens (or initializes) the data directory and wires the client
// core. The storage engine starts locked; call CreateIdentity or Open
// before anything that touches persisted state.
func New(opts Options) (*Ghost, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if opts.RelayURL == "" {
		return nil, errors.New("relay URL is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := storage.OpenDB(filepath.Join(opts.DataDir, "ghost.db"))
	if err != nil {
		return nil, err
	}
	engine, err := storage.NewEngine(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	session := identity.NewSession(identity.NewFileStore(filepath.Join(opts.DataDir, "identity.key")))
	contacts := contact.NewStore(engine)
	messages := messaging.NewStore(engine)

	g := &Ghost{
		opts:     opts,
		session:  session,
		engine:   engine,
		contacts: contacts,
		messages: messages,
		pin:      pinlock.NewLock(engine),
		relay:    relay.NewClient(opts.RelayURL, session),
		dispatch: protocol.NewDispatcher(contacts, messages, filepath.Join(opts.DataDir, "media")),
		sweeper:  retention.NewSweeper(messages, opts.SweepInterval),
		events:   make(chan protocol.Event, 64),
	}

	// UI code subscribes to events instead of watching the poll loop;
	// a lagging subscriber loses events rather than stalling dispatch.
	g.dispatch.SetNotify(func(e protocol.Event) {
		select {
		case g.events <- e:
		default:
		}
	})
	return g, nil
}

// Events is the inbound event stream: one entry per applied inbound
// mutation (chat, signal, media). The channel is never closed.
func (g *Ghost) Events() <-chan protocol.Event { return g.events }

// CreateIdentity generates a fresh identity and unlocks storage with
// it. Fails if an identity already exists; existing installations use
// Open.
func (g *Ghost) CreateIdentity() (*identity.Identity, error) {
	ident, err := g.session.Create()
	if err != nil {
		return nil, err
	}
	g.engine.Unlock(ident.KeyPair.Private)
	return ident, nil
}

// Open loads the stored identity and unlocks the storage engine.
func (g *Ghost) Open() (*identity.Identity, error) {
	ident, err := g.session.Identity()
	if err != nil {
		return nil, err
	}
	g.engine.Unlock(ident.KeyPair.Private)
	return ident, nil
}

// Identity returns the current identity tuple.
func (g *Ghost) Identity() (*identity.Identity, error) {
	return g.session.Identity()
}

// Contacts exposes the trust store.
func (g *Ghost) Contacts() *contact.Store { return g.contacts }

// Messages exposes the conversation history store.
func (g *Ghost) Messages() *messaging.Store { return g.messages }

// PinLock exposes the local unlock gate.
func (g *Ghost) PinLock() *pinlock.Lock { return g.pin }

// Relay exposes the transport client.
func (g *Ghost) Relay() *relay.Client { return g.relay }

// Start registers with the relay and launches the background loops:
// delivery polling, presence, and the retention sweep. Starting twice
// is a no-op.
func (g *Ghost) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return nil
	}

	if err := g.relay.Register(ctx); err != nil {
		return fmt.Errorf("relay registration failed: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.sweeper.Start()
	g.loops.Add(2)
	go g.pollLoop(loopCtx)
	go g.presenceLoop(loopCtx)

	logrus.WithField("function", "Start").Info("Client core started")
	return nil
}

// Stop halts the background loops. Storage stays unlocked; use Logout
// to drop key material.
func (g *Ghost) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	g.loops.Wait()
	g.sweeper.Stop()
}

func (g *Ghost) pollLoop(ctx context.Context) {
	defer g.loops.Done()

	interval := g.opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Poll(ctx); err != nil && ctx.Err() == nil {
				logrus.WithFields(logrus.Fields{
					"function": "pollLoop",
					"error":    err.Error(),
				}).Warn("Delivery poll failed")
			}
		}
	}
}

func (g *Ghost) presenceLoop(ctx context.Context) {
	defer g.loops.Done()

	interval := g.opts.PresenceInterval
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.RefreshPresence(ctx); err != nil && ctx.Err() == nil {
				logrus.WithFields(logrus.Fields{
					"function": "presenceLoop",
					"error":    err.Error(),
				}).Debug("Presence refresh failed")
			}
		}
	}
}

// Poll runs one delivery cycle: fetch queued envelopes, route them,
// and acknowledge the whole batch. Safe to call alongside the
// background loop.
func (g *Ghost) Poll(ctx context.Context) error {
	ident, err := g.session.Identity()
	if err != nil {
		return err
	}

	deliveries, err := g.relay.Check(ctx)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		return nil
	}

	items := make([]protocol.Inbound, 0, len(deliveries))
	acks := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		raw, err := base64.StdEncoding.DecodeString(d.Content)
		if err != nil {
			// Nothing to route; still acknowledged below.
			acks = append(acks, d.ID)
			continue
		}
		items = append(items, protocol.Inbound{DeliveryID: d.ID, Envelope: raw})
	}

	acks = append(acks, g.dispatch.ProcessBatch(ident, items)...)
	return g.relay.Ack(ctx, acks)
}

// sendSealed encrypts a payload for a contact and queues it on the
// relay.
func (g *Ghost) sendSealed(ctx context.Context, contactID string, plaintext []byte) error {
	ident, err := g.session.Identity()
	if err != nil {
		return err
	}

	c, ok, err := g.contacts.Get(contactID)
	if err != nil {
		return err
	}
	if !ok {
		return contact.ErrNotFound
	}
	peerPK, err := c.PublicKey()
	if err != nil {
		return err
	}

	env, err := envelope.Seal(plaintext, peerPK, ident.KeyPair.Private)
	if err != nil {
		return err
	}
	return g.relay.Send(ctx, contactID, base64.StdEncoding.EncodeToString(env))
}

// SendText sends a chat message and records it in the local history.
// The stored copy starts as "sending" and flips to "sent" once the
// relay accepts it; a relay failure leaves it visible in the sending
// state for retry by the caller.
func (g *Ghost) SendText(ctx context.Context, contactID, text string) (messaging.Message, error) {
	m := messaging.Message{
		ID:        messaging.NewID(time.Now()),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		IsMe:      true,
		Status:    messaging.StatusSending,
	}
	if err := g.messages.Append(contactID, m); err != nil {
		return messaging.Message{}, err
	}

	if err := g.sendSealed(ctx, contactID, []byte(text)); err != nil {
		return m, err
	}

	m.Status = messaging.StatusSent
	if err := g.messages.SetStatus(contactID, m.ID, messaging.StatusSent); err != nil {
		return m, err
	}
	return m, nil
}

// SendMedia validates, encrypts and sends an inline media attachment.
func (g *Ghost) SendMedia(ctx context.Context, contactID, mediaType string, data []byte, caption string) (messaging.Message, error) {
	payload, err := protocol.EncodeMedia(mediaType, data, caption)
	if err != nil {
		return messaging.Message{}, err
	}

	m := messaging.Message{
		ID:        messaging.NewID(time.Now()),
		Text:      caption,
		Timestamp: time.Now().UnixMilli(),
		IsMe:      true,
		Status:    messaging.StatusSending,
		MediaType: mediaType,
	}
	if err := g.messages.Append(contactID, m); err != nil {
		return messaging.Message{}, err
	}

	if err := g.sendSealed(ctx, contactID, payload); err != nil {
		return m, err
	}

	m.Status = messaging.StatusSent
	if err := g.messages.SetStatus(contactID, m.ID, messaging.StatusSent); err != nil {
		return m, err
	}
	return m, nil
}

// MarkRead records the local read position and, when the privacy
// toggle allows, tells the peer via a read receipt.
func (g *Ghost) MarkRead(ctx context.Context, contactID string) error {
	now := time.Now().UnixMilli()
	if err := g.messages.SetLastRead(contactID, now); err != nil {
		return err
	}

	settings, err := g.Privacy()
	if err != nil {
		return err
	}
	if !settings.SendReadReceipts {
		return nil
	}

	payload, err := protocol.EncodeReadReceipt(protocol.ReadReceipt{UpTo: now})
	if err != nil {
		return err
	}
	return g.sendSealed(ctx, contactID, payload)
}

// NotifyScreenshot tells the peer a screenshot was taken, when the
// privacy toggle allows.
func (g *Ghost) NotifyScreenshot(ctx context.Context, contactID string) error {
	settings, err := g.Privacy()
	if err != nil {
		return err
	}
	if !settings.SendScreenshotNotices {
		return nil
	}
	return g.sendSealed(ctx, contactID, protocol.EncodeScreenshot())
}

// Privacy returns the outbound-signal toggles. Both default to on
// until explicitly changed.
func (g *Ghost) Privacy() (PrivacySettings, error) {
	raw, ok, err := g.engine.Get(privacyKey)
	if err != nil {
		return PrivacySettings{}, err
	}
	if !ok {
		return PrivacySettings{SendReadReceipts: true, SendScreenshotNotices: true}, nil
	}
	var settings PrivacySettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return PrivacySettings{}, fmt.Errorf("failed to decode privacy settings: %w", err)
	}
	return settings, nil
}

// SetPrivacy persists the outbound-signal toggles.
func (g *Ghost) SetPrivacy(settings PrivacySettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return g.engine.Put(privacyKey, raw)
}

// MyProfile returns our stored display profile.
func (g *Ghost) MyProfile() (Profile, error) {
	raw, ok, err := g.engine.Get(profileKey)
	if err != nil || !ok {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, nil
}

// SetProfile stores our display profile and pushes the update to every
// non-blocked contact. Delivery is best-effort per contact.
func (g *Ghost) SetProfile(ctx context.Context, p Profile) error {
	if len(p.Name) > contact.MaxNameLength {
		return errors.New("profile name too long")
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := g.engine.Put(profileKey, raw); err != nil {
		return err
	}

	payload, err := protocol.EncodeProfileUpdate(protocol.ProfileUpdate{Name: p.Name, Avatar: p.Avatar})
	if err != nil {
		return err
	}

	all, err := g.contacts.All()
	if err != nil {
		return err
	}
	for _, c := range all {
		if c.IsBlocked || c.IsSelf {
			continue
		}
		if err := g.sendSealed(ctx, c.ID, payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SetProfile",
				"ghost_id": c.ID,
				"error":    err.Error(),
			}).Warn("Profile push failed")
		}
	}
	return nil
}

// ExportAddPayload builds the QR / share payload describing our own
// identity.
func (g *Ghost) ExportAddPayload() (contact.AddPayload, error) {
	ident, err := g.session.Identity()
	if err != nil {
		return contact.AddPayload{}, err
	}
	profile, err := g.MyProfile()
	if err != nil {
		return contact.AddPayload{}, err
	}
	return protocol.EncodeSelfHandshake(ident.KeyPair, ident.ID, profile.Name, profile.Avatar)
}

// AddContact validates a scanned or pasted add payload and records the
// contact. Trust is established here, on first use.
func (g *Ghost) AddContact(data []byte) (*contact.Contact, error) {
	p, err := contact.ParseAddPayload(data)
	if err != nil {
		return nil, err
	}
	c := p.Contact()
	if err := g.contacts.Add(c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SendContactRequest records the peer locally and queues an anonymous
// handshake so they learn who we are. The local add happens first:
// their accept arrives as a known-sender envelope and must already be
// decryptable.
func (g *Ghost) SendContactRequest(ctx context.Context, data []byte) error {
	c, err := g.AddContact(data)
	if err != nil && !errors.Is(err, contact.ErrExists) {
		return err
	}
	if c == nil {
		p, perr := contact.ParseAddPayload(data)
		if perr != nil {
			return perr
		}
		tmp := p.Contact()
		c = &tmp
	}

	self, err := g.ExportAddPayload()
	if err != nil {
		return err
	}
	payload, err := protocol.EncodeHandshakeAccept(self)
	if err != nil {
		return err
	}

	ident, err := g.session.Identity()
	if err != nil {
		return err
	}
	peerPK, err := c.PublicKey()
	if err != nil {
		return err
	}
	env, err := envelope.SealAnonymous(payload, peerPK, ident.KeyPair)
	if err != nil {
		return err
	}
	return g.relay.SendFriendRequest(ctx, c.ID, base64.StdEncoding.EncodeToString(env))
}

// PollFriendRequests fetches and validates queued contact requests.
// Invalid envelopes are dropped from the queue; valid ones are returned
// for an explicit accept/reject decision.
func (g *Ghost) PollFriendRequests(ctx context.Context) ([]IncomingRequest, error) {
	ident, err := g.session.Identity()
	if err != nil {
		return nil, err
	}

	queued, err := g.relay.FriendRequests(ctx)
	if err != nil {
		return nil, err
	}

	var out []IncomingRequest
	for _, fr := range queued {
		raw, err := base64.StdEncoding.DecodeString(fr.Content)
		if err != nil {
			g.discardRequest(ctx, fr.From)
			continue
		}
		req, err := g.dispatch.ProcessFriendRequest(ident, raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PollFriendRequests",
				"error":    err.Error(),
			}).Warn("Dropped invalid contact request")
			g.discardRequest(ctx, fr.From)
			continue
		}
		out = append(out, IncomingRequest{Payload: req.Payload, Observation: req.Observation})
	}
	return out, nil
}

func (g *Ghost) discardRequest(ctx context.Context, fromID string) {
	if err := g.relay.RemoveFriendRequest(ctx, fromID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "discardRequest",
			"error":    err.Error(),
		}).Debug("Failed to clear request from relay")
	}
}

// AcceptFriendRequest trusts the requester, replies with our own
// handshake so both histories line up, and clears the relay queue
// entry. A staged key rotation (Observation == KeyMismatch) is NOT
// applied here; it waits for ApprovePendingKey.
func (g *Ghost) AcceptFriendRequest(ctx context.Context, req IncomingRequest) error {
	if req.Observation == contact.KeyUnknown {
		if err := g.contacts.Add(req.Payload.Contact()); err != nil && !errors.Is(err, contact.ErrExists) {
			return err
		}
	}

	self, err := g.ExportAddPayload()
	if err != nil {
		return err
	}
	payload, err := protocol.EncodeHandshakeAccept(self)
	if err != nil {
		return err
	}
	if err := g.sendSealed(ctx, req.Payload.ID, payload); err != nil {
		return err
	}

	g.discardRequest(ctx, req.Payload.ID)
	return nil
}

// RejectFriendRequest clears the queue entry without trusting anyone.
func (g *Ghost) RejectFriendRequest(ctx context.Context, req IncomingRequest) error {
	return g.relay.RemoveFriendRequest(ctx, req.Payload.ID)
}

// DeleteContact removes a contact and every trace of the conversation.
// The peer is told best-effort; local removal proceeds regardless.
func (g *Ghost) DeleteContact(ctx context.Context, contactID string) error {
	if err := g.sendSealed(ctx, contactID, protocol.EncodeDelete()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeleteContact",
			"ghost_id": contactID,
			"error":    err.Error(),
		}).Warn("Delete signal not delivered")
	}

	if err := g.messages.Forget(contactID); err != nil {
		return err
	}
	err := g.contacts.Remove(contactID)
	if errors.Is(err, contact.ErrNotFound) {
		return nil
	}
	return err
}

// SafetyNumber returns the out-of-band verification fingerprint for a
// contact.
func (g *Ghost) SafetyNumber(contactID string) (string, error) {
	ident, err := g.session.Identity()
	if err != nil {
		return "", err
	}
	return g.contacts.SafetyNumber(ident.KeyPair.Public, contactID)
}

// RefreshPresence sends our heartbeat and pulls peer statuses into the
// trust store.
func (g *Ghost) RefreshPresence(ctx context.Context) error {
	if err := g.relay.Ping(ctx); err != nil {
		return err
	}

	all, err := g.contacts.All()
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(all))
	for _, c := range all {
		if !c.IsSelf {
			ids = append(ids, c.ID)
		}
	}

	statuses, err := g.relay.StatusBatch(ctx, ids)
	if err != nil {
		return err
	}
	for id, st := range statuses {
		if err := g.contacts.SetPresence(id, st.IsOnline, st.LastSeen); err != nil && !errors.Is(err, contact.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Logout stops the loops and drops all key material from memory. The
// encrypted database and the identity file stay on disk.
func (g *Ghost) Logout() {
	g.Stop()
	g.session.Invalidate()
	g.engine.Lock()
}

// Wipe destroys the account: best-effort relay deletion, then the
// encrypted database, received media, and the identity key. The relay
// call failing never blocks the local wipe.
func (g *Ghost) Wipe(ctx context.Context) error {
	g.Stop()

	if err := g.relay.DeleteAccount(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Wipe",
			"error":    err.Error(),
		}).Warn("Relay account deletion failed, proceeding with local wipe")
	}

	if err := g.engine.Wipe(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(g.opts.DataDir, "media")); err != nil {
		return fmt.Errorf("failed to remove media directory: %w", err)
	}
	return g.session.Destroy()
}

// Close releases the database. The instance is unusable afterwards.
func (g *Ghost) Close() error {
	g.Stop()
	return g.engine.Close()
}
