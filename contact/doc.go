// Package contact implements the trust-on-first-use contact store.
//
// A peer's key is trusted when first recorded (handshake accept or
// explicit add). If later traffic for the same contact ID decrypts
// under a different key, the new key is staged as PendingNewKey with a
// security warning; it never replaces the trusted key until the user
// explicitly approves it. Approval also resets out-of-band
// verification, since a key change invalidates any prior attestation.
package contact
