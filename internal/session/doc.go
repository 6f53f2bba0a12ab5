// Package session reconstructs delegated session configurations from the
// session-key module's on-chain events and answers policy questions about
// them. The chain owns the authoritative state; this package only ever holds
// a read-only, normalized copy.
package session
