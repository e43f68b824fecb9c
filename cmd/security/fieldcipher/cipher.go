package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the master key length in bytes (AES-256).
	KeySize = 32

	nonceSize = 12
	tagSize   = 16

	nonceKeyInfo = "linkup/fieldcipher/deterministic-nonce/v1"
)

// Cipher seals and opens field envelopes. It is safe for concurrent use.
type Cipher struct {
	aead     cipher.AEAD
	nonceKey []byte
	rand     io.Reader
}

// New builds a Cipher from a hex-encoded 32-byte master key.
func New(keyHex string) (*Cipher, error) {
	keyHex = strings.TrimSpace(keyHex)
	if keyHex == "" {
		return nil, fmt.Errorf("%w: key is missing", ErrConfig)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not hex", ErrConfig)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrConfig, KeySize, len(key))
	}
	return newCipher(key, rand.Reader)
}

func newCipher(key []byte, random io.Reader) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	nonceKey := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(nonceKeyInfo)), nonceKey); err != nil {
		return nil, fmt.Errorf("%w: derive nonce key: %v", ErrConfig, err)
	}

	return &Cipher{aead: aead, nonceKey: nonceKey, rand: random}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}
	return c.seal(nonce, plaintext), nil
}

// DeterministicEncrypt seals plaintext under a nonce derived from it, so the
// same plaintext always yields the same envelope.
func (c *Cipher) DeterministicEncrypt(plaintext string) (string, error) {
	m := hmac.New(sha256.New, c.nonceKey)
	_, _ = m.Write([]byte(plaintext))
	return c.seal(m.Sum(nil)[:nonceSize], plaintext), nil
}

// Decrypt opens an envelope produced by either mode.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	nonce, tag, body, err := parseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}

func (c *Cipher) seal(nonce []byte, plaintext string) string {
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return formatEnvelope(nonce, tag, body)
}
