// Package crypto implements the agent fabric's challenge-response
// authentication and one-shot ticket signing, both built on the same two
// stdlib primitives: HKDF-SHA256 for per-message key derivation and
// AES-CTR for the symmetric encryption the protocol calls for. Every
// derivation is deterministic in its inputs so the controller can
// recompute what it expects and compare, without needing to decrypt
// anything the agent sends back.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

const (
	// ChallengeSize is the length in bytes of an agent authentication challenge.
	ChallengeSize = 32

	// TokenSize is the length in bytes of a one-shot upload ticket token.
	TokenSize = 16
)

// GenerateChallenge returns a fresh random challenge for a new agent
// connection.
func GenerateChallenge() ([]byte, error) {
	b := make([]byte, ChallengeSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	return b, nil
}

// GenerateToken returns a fresh random one-shot upload ticket token.
func GenerateToken() ([]byte, error) {
	b := make([]byte, TokenSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return b, nil
}

// deriveStreamKeyIV derives a unique AES-256 key and CTR IV for a given
// (secret, message) pair via HKDF-SHA256. Because the derivation is keyed
// on the message itself, encrypting the same message under the same secret
// always reproduces the same ciphertext, which is what lets the controller
// recompute the expected response instead of decrypting the agent's.
func deriveStreamKeyIV(secret, message []byte) (key, iv []byte, err error) {
	derived, err := hkdf.Key(sha256.New, secret, nil, string(message), 32+aes.BlockSize)
	if err != nil {
		return nil, nil, fmt.Errorf("derive stream key: %w", err)
	}
	return derived[:32], derived[32:], nil
}

// EncryptChallenge encrypts challenge under the pre-shared secret using a
// key/IV pair derived uniquely from (secret, challenge). secret must be
// non-empty; any length is accepted since HKDF absorbs it as keying
// material.
func EncryptChallenge(secret, challenge []byte) ([]byte, error) {
	key, iv, err := deriveStreamKeyIV(secret, challenge)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	out := make([]byte, len(challenge))
	cipher.NewCTR(block, iv).XORKeyStream(out, challenge)
	return out, nil
}

// VerifyChallengeResponse reports whether response is the ciphertext an
// agent holding secret would produce for challenge, comparing in constant
// time to avoid leaking how much of the response matched.
func VerifyChallengeResponse(secret, challenge, response []byte) (bool, error) {
	expected, err := EncryptChallenge(secret, challenge)
	if err != nil {
		return false, err
	}
	if len(expected) != len(response) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(expected, response) == 1, nil
}

// SignToken computes the HMAC-SHA256 of token under secret — the
// signature an agent presents to redeem a one-shot upload ticket.
func SignToken(secret, token []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(token)
	return mac.Sum(nil)
}

// VerifyTokenSignature reports whether sig is the correct HMAC-SHA256 of
// token under secret, in constant time.
func VerifyTokenSignature(secret, token, sig []byte) bool {
	expected := SignToken(secret, token)
	return hmac.Equal(expected, sig)
}
