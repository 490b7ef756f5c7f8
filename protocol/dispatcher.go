package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/contact"
	"github.com/ghostmsg/ghostcore/envelope"
	"github.com/ghostmsg/ghostcore/identity"
	"github.com/ghostmsg/ghostcore/messaging"
)

// Inbound is one relay delivery: the server-assigned delivery ID and
// the raw envelope bytes.
type Inbound struct {
	DeliveryID string
	Envelope   []byte
}

// FriendRequest is a validated anonymous handshake awaiting a user
// decision.
type FriendRequest struct {
	Payload     contact.AddPayload
	SenderKey   [32]byte
	Observation contact.KeyObservation
}

// Event describes one applied inbound mutation. Subscribers use it to
// refresh without re-reading everything; whether delivery is pulled or
// pushed is invisible above this boundary.
type Event struct {
	ContactID string
	Kind      Kind
	MessageID string
}

// Dispatcher routes opened envelopes to the trust store and message
// store.
type Dispatcher struct {
	contacts *contact.Store
	messages *messaging.Store
	mediaDir string
	now      func() time.Time
	notify   func(Event)
}

// NewDispatcher wires a dispatcher to its stores. mediaDir is where
// validated inbound media lands.
func NewDispatcher(contacts *contact.Store, messages *messaging.Store, mediaDir string) *Dispatcher {
	return &Dispatcher{
		contacts: contacts,
		messages: messages,
		mediaDir: mediaDir,
		now:      time.Now,
	}
}

// ProcessBatch opens and routes one poll batch. It returns every
// delivery ID for acknowledgment: redelivery cannot fix a malformed or
// unaddressed payload, so dropped items are acknowledged too. Duplicate
// deliveries are harmless; message storage deduplicates by ID.
func (d *Dispatcher) ProcessBatch(ident *identity.Identity, items []Inbound) []string {
	acks := make([]string, 0, len(items))
	for _, item := range items {
		acks = append(acks, item.DeliveryID)
		d.processOne(ident, item)
	}
	return acks
}

func (d *Dispatcher) processOne(ident *identity.Identity, item Inbound) {
	candidates, err := d.contacts.Candidates()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "processOne",
			"error":    err.Error(),
		}).Error("Failed to load candidate keys")
		return
	}

	keys := make([][32]byte, len(candidates))
	for i, c := range candidates {
		keys[i] = c.Key
	}

	plaintext, senderPK, err := envelope.Open(item.Envelope, ident.KeyPair.Private, keys)
	if err != nil {
		// Expected noise for broadcast-style polling; drop silently.
		logrus.WithFields(logrus.Fields{
			"function":    "processOne",
			"delivery_id": item.DeliveryID,
		}).Debug("Envelope did not open under any known key")
		return
	}

	var senderID string
	for _, c := range candidates {
		if c.Key == senderPK {
			senderID = c.ID
			break
		}
	}

	d.route(senderID, senderPK, item.DeliveryID, plaintext)
}

func (d *Dispatcher) route(senderID string, senderPK [32]byte, deliveryID string, plaintext []byte) {
	kind, payload := Classify(plaintext)

	var err error
	switch kind {
	case KindChat:
		err = d.handleChat(senderID, deliveryID, string(plaintext))
	case KindMedia:
		err = d.handleMedia(senderID, deliveryID, payload)
	case KindHandshakeAccept:
		err = d.handleHandshakeAccept(senderPK, payload)
	case KindProfileUpdate:
		err = d.handleProfileUpdate(senderID, payload)
	case KindReadReceipt:
		err = d.handleReadReceipt(senderID, payload)
	case KindDelete:
		err = d.handleDelete(senderID)
	case KindScreenshot:
		err = d.handleScreenshot(senderID, deliveryID)
	}

	if err != nil {
		// Malformed signals are rejected whole, never partially applied.
		logrus.WithFields(logrus.Fields{
			"function": "route",
			"ghost_id": senderID,
			"kind":     kind,
			"error":    err.Error(),
		}).Warn("Dropped invalid inbound payload")
		return
	}

	if d.notify != nil {
		d.notify(Event{ContactID: senderID, Kind: kind, MessageID: deliveryID})
	}
}

// SetNotify installs the event callback. Must be set before the first
// ProcessBatch; the callback must not block.
func (d *Dispatcher) SetNotify(fn func(Event)) { d.notify = fn }

func (d *Dispatcher) handleChat(senderID, deliveryID, text string) error {
	return d.messages.Append(senderID, messaging.Message{
		ID:        deliveryID,
		Text:      text,
		Timestamp: d.now().UnixMilli(),
		IsMe:      false,
	})
}

func (d *Dispatcher) handleMedia(senderID, deliveryID string, payload []byte) error {
	p, data, err := decodeMedia(payload)
	if err != nil {
		return err
	}

	path, err := saveMedia(d.mediaDir, p.Type, data)
	if err != nil {
		return err
	}

	return d.messages.Append(senderID, messaging.Message{
		ID:        deliveryID,
		Text:      p.Caption,
		Timestamp: d.now().UnixMilli(),
		IsMe:      false,
		LocalURI:  path,
		MediaType: p.Type,
	})
}

// handleHandshakeAccept records the peer that accepted our contact
// request. An accept claiming a known ID under a different key is the
// key-rotation path: it is staged by ObserveKey, never applied.
func (d *Dispatcher) handleHandshakeAccept(senderPK [32]byte, payload []byte) error {
	p, err := ParseHandshake(payload, senderPK)
	if err != nil {
		return err
	}

	obs, err := d.contacts.ObserveKey(p.ID, senderPK)
	if err != nil {
		return err
	}

	switch obs {
	case contact.KeyUnknown:
		if err := d.contacts.Add(p.Contact()); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"function": "handleHandshakeAccept",
			"ghost_id": p.ID,
		}).Info("Handshake accepted, contact trusted")
	case contact.KeyMatches:
		// Re-sent accept; refresh profile fields only.
		return d.contacts.ApplyProfile(p.ID, p.Name, p.Avatar)
	case contact.KeyMismatch:
		// Staged with a security warning by ObserveKey.
	}
	return nil
}

func (d *Dispatcher) handleProfileUpdate(senderID string, payload []byte) error {
	var p ProfileUpdate
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return d.contacts.ApplyProfile(senderID, p.Name, p.Avatar)
}

func (d *Dispatcher) handleReadReceipt(senderID string, payload []byte) error {
	var r ReadReceipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return err
	}
	return d.messages.MarkOutgoingRead(senderID, r.UpTo)
}

// handleDelete prunes local state for a peer that removed us.
func (d *Dispatcher) handleDelete(senderID string) error {
	if err := d.messages.Forget(senderID); err != nil {
		return err
	}
	err := d.contacts.Remove(senderID)
	if errors.Is(err, contact.ErrNotFound) {
		return nil
	}
	return err
}

// handleScreenshot stores a synthetic system message; it is the only
// control signal rendered in the conversation.
func (d *Dispatcher) handleScreenshot(senderID, deliveryID string) error {
	return d.messages.Append(senderID, messaging.Message{
		ID:        deliveryID,
		Text:      "Screenshot taken",
		Timestamp: d.now().UnixMilli(),
		IsMe:      false,
		System:    true,
	})
}

// ProcessFriendRequest opens an anonymous handshake envelope and
// validates its payload. The caller surfaces the result for an explicit
// accept/reject decision; nothing is trusted here.
func (d *Dispatcher) ProcessFriendRequest(ident *identity.Identity, env []byte) (*FriendRequest, error) {
	plaintext, senderPK, err := envelope.OpenAnonymous(env, ident.KeyPair.Private)
	if err != nil {
		return nil, err
	}

	kind, payload := Classify(plaintext)
	if kind != KindHandshakeAccept {
		return nil, envelope.ErrMalformed
	}

	p, err := ParseHandshake(payload, senderPK)
	if err != nil {
		return nil, err
	}

	obs, err := d.contacts.ObserveKey(p.ID, senderPK)
	if err != nil {
		return nil, err
	}

	return &FriendRequest{
		Payload:     *p,
		SenderKey:   senderPK,
		Observation: obs,
	}, nil
}
