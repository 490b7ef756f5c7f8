// Package identity manages the long-term device identity: the NaCl box
// key pair, the derived request-signing key pair, and the short public
// Ghost ID.
//
// All identity state lives in an explicit Session object constructed at
// startup and passed to the components that need it. There are no
// package-level singletons; Invalidate tears the cached key material
// down on logout.
package identity
