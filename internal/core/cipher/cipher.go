// Package cipher encrypts short strings (login passwords) under an ephemeral
// symmetric key handed out by the key-exchange endpoint.
//
// Payloads travel as "<ivHex>:<cipherHex>". The IV is always 16 random bytes,
// so repeated encryptions of the same plaintext under the same key differ.
//
// The default mode is AES-256-GCM, which appends a 16-byte tag to the cipher
// half. Clients that send plain AES-256-CTR payloads with no tag must run
// against a service configured with AUTH_CIPHER_MODE=ctr.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the IV (nonce) length in bytes.
	IVSize = 16

	separator = ":"
)

// Sentinel errors. Neither is ever wrapped around the underlying cause so
// callers cannot learn which part of a payload was rejected.
var (
	// ErrEncryption indicates the key was malformed or the cipher failed.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption indicates a malformed payload, a wrong key or any
	// cipher-level fault.
	ErrDecryption = errors.New("decryption failed")
)

// Mode selects the block cipher mode used under the payload format.
type Mode string

const (
	// ModeGCM is AES-256-GCM with a 16-byte nonce. The cipher half carries
	// the authentication tag, so tampering or a wrong key is detected.
	ModeGCM Mode = "gcm"

	// ModeCTR is AES-256-CTR without an integrity tag. A wrong key
	// decrypts to garbage rather than failing.
	ModeCTR Mode = "ctr"
)

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeGCM, "":
		return ModeGCM, nil
	case ModeCTR:
		return ModeCTR, nil
	default:
		return "", fmt.Errorf("unknown cipher mode %q", s)
	}
}

// Cipher is a stateless encrypter for a fixed Mode. The zero value uses GCM.
type Cipher struct {
	mode Mode
}

// New returns a Cipher using the given mode.
func New(mode Mode) *Cipher {
	return &Cipher{mode: mode}
}

// Mode reports the cipher mode in use.
func (c *Cipher) Mode() Mode {
	if c == nil || c.mode == "" {
		return ModeGCM
	}
	return c.mode
}

// GenerateKey returns 32 cryptographically random bytes, hex-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Encrypt encrypts plaintext under keyHex with a fresh random IV and returns
// "<ivHex>:<cipherHex>".
func (c *Cipher) Encrypt(plaintext, keyHex string) (string, error) {
	block, err := newBlock(keyHex)
	if err != nil {
		return "", ErrEncryption
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", ErrEncryption
	}

	var out []byte
	switch c.Mode() {
	case ModeCTR:
		out = make([]byte, len(plaintext))
		stdcipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))
	default:
		aead, err := stdcipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return "", ErrEncryption
		}
		out = aead.Seal(nil, iv, []byte(plaintext), nil)
	}

	return hex.EncodeToString(iv) + separator + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Every failure returns ErrDecryption.
func (c *Cipher) Decrypt(payload, keyHex string) (string, error) {
	if !IsValidEncryptedFormat(payload) {
		return "", ErrDecryption
	}
	ivHex, dataHex, _ := strings.Cut(payload, separator)

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", ErrDecryption
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", ErrDecryption
	}

	block, err := newBlock(keyHex)
	if err != nil {
		return "", ErrDecryption
	}

	switch c.Mode() {
	case ModeCTR:
		out := make([]byte, len(data))
		stdcipher.NewCTR(block, iv).XORKeyStream(out, data)
		return string(out), nil
	default:
		aead, err := stdcipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return "", ErrDecryption
		}
		out, err := aead.Open(nil, iv, data, nil)
		if err != nil {
			return "", ErrDecryption
		}
		return string(out), nil
	}
}

// IsValidEncryptedFormat performs a structural check only: exactly one ':',
// a 32-character hex IV and a hex cipher half. It never decrypts.
func IsValidEncryptedFormat(payload string) bool {
	if strings.Count(payload, separator) != 1 {
		return false
	}
	ivHex, dataHex, _ := strings.Cut(payload, separator)
	if len(ivHex) != IVSize*2 || !isHex(ivHex) {
		return false
	}
	return len(dataHex)%2 == 0 && isHex(dataHex)
}

func newBlock(keyHex string) (stdcipher.Block, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return aes.NewCipher(key)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

var defaultCipher = New(ModeGCM)

// Encrypt encrypts with the default (GCM) cipher.
func Encrypt(plaintext, keyHex string) (string, error) {
	return defaultCipher.Encrypt(plaintext, keyHex)
}

// Decrypt decrypts with the default (GCM) cipher.
func Decrypt(payload, keyHex string) (string, error) {
	return defaultCipher.Decrypt(payload, keyHex)
}
