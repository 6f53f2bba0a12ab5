// Package codec implements the byte-level encoding primitives used by the
// session wallet: hex/word helpers, the head/tail ABI parameter encoder and
// the narrow EIP-712 typed-data hasher. All encoders are pure functions over
// immutable inputs, so concurrent use requires no locking.
package codec
