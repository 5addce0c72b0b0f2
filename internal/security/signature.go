package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignatureVerifier authenticates webhook payloads against the provider's
// shared-salt scheme: sha256(base64(body) + saltKey) hex, suffixed with
// "###" and the salt index.
type SignatureVerifier struct {
	saltKey   string
	saltIndex string
}

func NewSignatureVerifier(saltKey, saltIndex string) *SignatureVerifier {
	if saltIndex == "" {
		saltIndex = "1"
	}
	return &SignatureVerifier{saltKey: saltKey, saltIndex: saltIndex}
}

// Sign computes the signature for a raw payload. Used for outbound
// provider requests, which carry the same header scheme.
func (v *SignatureVerifier) Sign(rawBody []byte) string {
	encoded := base64.StdEncoding.EncodeToString(rawBody)
	return v.SignEncoded(encoded)
}

// SignEncoded signs an already base64-encoded payload.
func (v *SignatureVerifier) SignEncoded(encoded string) string {
	sum := sha256.Sum256([]byte(encoded + v.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + v.saltIndex
}

// Verify reports whether the provided header value matches the payload.
// It never returns an error; a missing or malformed signature is simply
// a mismatch.
func (v *SignatureVerifier) Verify(rawBody []byte, provided string) bool {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected := v.Sign(rawBody)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// VerifyEncoded checks a signature over a payload the provider delivered
// already base64-encoded.
func (v *SignatureVerifier) VerifyEncoded(encoded, provided string) bool {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected := v.SignEncoded(encoded)
	return hmac.Equal([]byte(expected), []byte(provided))
}
