package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer signs and verifies device payloads with HMAC-SHA256.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign signs the JSON encoding of payload
func (s *Signer) Sign(payload interface{}) (string, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.SignString(string(jsonBytes)), nil
}

// Verify checks a signature produced by Sign
func (s *Signer) Verify(payload interface{}, signature string) error {
	expected, err := s.Sign(payload)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignString signs a string directly
func (s *Signer) SignString(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifyString verifies a string signature
func (s *Signer) VerifyString(data, signature string) error {
	if !hmac.Equal([]byte(signature), []byte(s.SignString(data))) {
		return ErrInvalidSignature
	}
	return nil
}
