// Package ghostcore implements the client core of the Ghost messaging
// protocol.
//
// Ghost is an end-to-end encrypted messenger built around a dumb,
// untrusted relay: the server queues opaque ciphertext and ferries it
// between short hash-derived identifiers. Identity, trust, message
// history and privacy state all live on the client, and this package
// provides the facade that integrates all of it: identity
// derivation, envelope encryption, the TOFU contact trust model,
// encrypted local storage, the control-signal protocol, PIN locking,
// and ephemeral message retention.
//
// # Getting Started
//
// Create a Ghost instance over a data directory and a relay URL, then
// establish an identity and start the background loops:
//
//	g, err := ghostcore.New(ghostcore.Options{
//	    DataDir:  "/home/alice/.ghostc",
//	    RelayURL: "http://127.0.0.1:8080",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Close()
//
//	ident, err := g.CreateIdentity() // first run; later runs use g.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("my ghost id:", ident.ID)
//
//	ctx := context.Background()
//	if err := g.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Stop()
//
// # Contacts and Trust
//
// Contacts are exchanged out of band as a JSON payload (typically a QR
// code) and trusted on first use:
//
//	payload, _ := g.ExportAddPayload()   // share this
//	g.SendContactRequest(ctx, scanned)   // trust the scanned peer, request contact
//
//	pending, _ := g.PollFriendRequests(ctx)
//	for _, req := range pending {
//	    g.AcceptFriendRequest(ctx, req)
//	}
//
// A key change for a known contact is never applied silently: it is
// staged on the contact record with a security warning, and waits for
// an explicit decision via the trust store's ApprovePendingKey or
// RejectPendingKey. Safety numbers support out-of-band verification:
//
//	number, _ := g.SafetyNumber(contactID)
//
// # Messaging
//
// Messages are sealed per recipient and queued on the relay; the
// background poll loop routes inbound envelopes into per-conversation
// histories:
//
//	m, err := g.SendText(ctx, contactID, "hello")
//	history, _ := g.Messages().List(contactID)
//	g.MarkRead(ctx, contactID)
//
// # Local Protection
//
// All persisted state is encrypted with a key derived from the
// identity secret; Logout drops the key material and leaves only
// ciphertext on disk. A PIN lock with persistent exponential lockout
// gates interactive access:
//
//	g.PinLock().Setup("492817", pinlock.KindPIN)
//	result, _ := g.PinLock().Verify(entered)
//
// # Integration Architecture
//
// This package orchestrates:
//
//   - [crypto]: key pairs, box/secretbox encryption, Ghost ID and
//     safety-number derivation
//   - [identity]: secret-key persistence and identity derivation
//   - [storage]: the encrypted key/value engine over bolt
//   - [envelope]: the known-sender and anonymous wire formats
//   - [contact]: the TOFU trust store with staged key rotation
//   - [messaging]: conversation histories and retention rules
//   - [protocol]: control-signal classification and inbound dispatch
//   - [pinlock]: the local unlock gate
//   - [retention]: the ephemeral sweep timer
//   - [relay]: the signed HTTP transport client
//
// The cmd/ghostc CLI exercises the full surface against the
// cmd/ghost-relay development server.
package ghostcore
