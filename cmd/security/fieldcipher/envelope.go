package fieldcipher

import (
	"encoding/hex"
	"strings"
)

const sep = ":"

func formatEnvelope(nonce, tag, body []byte) string {
	// GCM over an empty plaintext has an empty body; keep the segment non-empty.
	if len(body) == 0 {
		return hex.EncodeToString(nonce) + sep + hex.EncodeToString(tag) + sep + emptyBody
	}
	return hex.EncodeToString(nonce) + sep + hex.EncodeToString(tag) + sep + hex.EncodeToString(body)
}

// emptyBody marks a zero-length ciphertext. It is not valid hex, so it cannot
// collide with an encoded body.
const emptyBody = "-"

// parseEnvelope accepts exactly three non-empty hex segments with a
// well-sized nonce and tag.
func parseEnvelope(s string) (nonce, tag, body []byte, err error) {
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return nil, nil, nil, ErrDecryption
	}
	for _, p := range parts {
		if p == "" {
			return nil, nil, nil, ErrDecryption
		}
	}

	if nonce, err = hex.DecodeString(parts[0]); err != nil || len(nonce) != nonceSize {
		return nil, nil, nil, ErrDecryption
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != tagSize {
		return nil, nil, nil, ErrDecryption
	}
	if parts[2] == emptyBody {
		return nonce, tag, nil, nil
	}
	if body, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, ErrDecryption
	}
	return nonce, tag, body, nil
}
