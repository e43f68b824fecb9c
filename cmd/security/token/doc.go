// Package token hashes refresh tokens for server-side storage.
//
// Only the digest of the most recently issued refresh token is persisted, so a
// leaked table row cannot be replayed as a bearer token.
package token
