// Package token provides compact signed tokens carrying a JSON payload,
// used for magic links delivered over WhatsApp.
//
// Format: base64url(payload).base64url(signature), where the signature is
// an HMAC-SHA256 truncated to 8 bytes. That keeps links short enough for a
// message while being strong enough for tokens that live minutes, not days.
// Single-use bookkeeping is the caller's job; this package only proves the
// payload was issued by us and was not modified.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrMalformed indicates the token does not have the expected
	// payload.signature shape or is not valid base64.
	ErrMalformed = errors.New("token.malformed")

	// ErrSignature indicates the signature does not match the payload.
	ErrSignature = errors.New("token.signature_mismatch")
)

const signatureLength = 8

// Generate signs the JSON-encoded payload with the secret and returns the
// encoded token string.
func Generate[T any](payload T, secret string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	payloadEnc := base64.RawURLEncoding.EncodeToString(data)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	sig := h.Sum(nil)[:signatureLength]

	return payloadEnc + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Parse verifies the token signature and decodes the payload into T.
// The signature check is constant-time.
func Parse[T any](tok string, secret string) (T, error) {
	var payload T

	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return payload, ErrMalformed
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return payload, errors.Join(ErrMalformed, err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return payload, errors.Join(ErrMalformed, err)
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	expected := h.Sum(nil)[:signatureLength]

	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return payload, ErrSignature
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrMalformed, err)
	}

	return payload, nil
}
