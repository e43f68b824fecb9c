package fieldcipher

import "errors"

var (
	// ErrConfig reports a missing or malformed master key. It is fatal at startup.
	ErrConfig = errors.New("fieldcipher: invalid key configuration")
	// ErrEncryption reports a failure to seal a field.
	ErrEncryption = errors.New("fieldcipher: encryption failed")
	// ErrDecryption covers malformed envelopes and authentication failures alike.
	ErrDecryption = errors.New("fieldcipher: decryption failed")
)
