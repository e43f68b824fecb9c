// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format so cost parameters travel with the hash and
// can be raised without invalidating stored credentials. Stored hashes are
// treated as untrusted input on Verify.
package password
