// Package token encodes and verifies session tokens.
//
// Wire format:
//
//	base64(json(claims)) + "." + hex(hmac_sha256(secret, base64Part))
//
// The signature covers the transmitted base64 segment itself, never a
// re-encoding of the parsed claims. Tokens carry no expiry: liveness is
// decided by the key-value store copy.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/duynhne/session-service/internal/core/domain"
)

const separator = "."

var (
	// ErrMalformedToken indicates the token is not two non-empty segments or
	// the claims segment does not decode.
	ErrMalformedToken = errors.New("malformed token")

	// ErrBadSignature indicates the signature does not match the claims segment.
	ErrBadSignature = errors.New("bad token signature")

	// ErrWrongTokenType indicates the token is of a different class than expected.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrEmptySecret indicates the signing secret is empty.
	ErrEmptySecret = errors.New("token secret is empty")

	// ErrEmptyUserID indicates claims without a user id were passed to Issue.
	ErrEmptyUserID = errors.New("claims missing user id")
)

// Issue signs claims with secret and returns the token string.
func Issue(claims domain.SessionClaims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	if claims.UserID == "" {
		return "", ErrEmptyUserID
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}

	payload := base64.StdEncoding.EncodeToString(raw)
	return payload + separator + sign(payload, secret), nil
}

// ParseAndVerify checks the signature and class of tokenString and returns
// its claims. The signature is checked before the claims are decoded.
func ParseAndVerify(tokenString string, secret []byte, expected domain.TokenType) (*domain.SessionClaims, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	parts := strings.Split(tokenString, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformedToken
	}
	payload, signature := parts[0], parts[1]

	if !hmac.Equal([]byte(sign(payload, secret)), []byte(signature)) {
		return nil, ErrBadSignature
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode claims: %w", ErrMalformedToken)
	}

	var claims domain.SessionClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", ErrMalformedToken)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("claims missing user id: %w", ErrMalformedToken)
	}

	if claims.Type != expected {
		return nil, ErrWrongTokenType
	}

	return &claims, nil
}

func sign(payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
