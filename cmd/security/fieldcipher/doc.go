// Package fieldcipher encrypts individual record fields with AES-256-GCM.
//
// Two modes share one envelope format, hex(nonce):hex(tag):hex(body):
//   - Encrypt uses a fresh random nonce, so equal plaintexts never produce
//     equal envelopes.
//   - DeterministicEncrypt derives the nonce from a keyed digest of the
//     plaintext, so equal plaintexts produce equal envelopes and the envelope
//     can serve as an equality lookup key (the account email index).
//
// Deterministic mode leaks plaintext equality by construction and must only be
// used for fields that need to be looked up.
package fieldcipher
