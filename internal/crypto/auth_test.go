package crypto

import "testing"

func TestChallengeResponse_RoundTrip(t *testing.T) {
	secret := []byte("a-pre-shared-secret-of-any-length")
	challenge, err := GenerateChallenge()
	if err != nil {
		t.Fatalf("generate challenge: %v", err)
	}
	if len(challenge) != ChallengeSize {
		t.Fatalf("expected %d-byte challenge, got %d", ChallengeSize, len(challenge))
	}

	response, err := EncryptChallenge(secret, challenge)
	if err != nil {
		t.Fatalf("encrypt challenge: %v", err)
	}

	ok, err := VerifyChallengeResponse(secret, challenge, response)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected correct response to verify")
	}
}

func TestChallengeResponse_DeterministicForSameInputs(t *testing.T) {
	secret := []byte("secret")
	challenge := []byte("0123456789abcdef0123456789abcdef")

	r1, err := EncryptChallenge(secret, challenge)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := EncryptChallenge(secret, challenge)
	if err != nil {
		t.Fatal(err)
	}
	if string(r1) != string(r2) {
		t.Error("expected the same (secret, challenge) pair to produce identical ciphertext")
	}
}

func TestChallengeResponse_WrongSecretFails(t *testing.T) {
	challenge, _ := GenerateChallenge()
	response, err := EncryptChallenge([]byte("correct-secret"), challenge)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := VerifyChallengeResponse([]byte("wrong-secret"), challenge, response)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected verification with the wrong secret to fail")
	}
}

func TestChallengeResponse_TamperedResponseFails(t *testing.T) {
	secret := []byte("secret")
	challenge, _ := GenerateChallenge()
	response, err := EncryptChallenge(secret, challenge)
	if err != nil {
		t.Fatal(err)
	}
	response[0] ^= 0xFF

	ok, err := VerifyChallengeResponse(secret, challenge, response)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected tampered response to fail verification")
	}
}

func TestTokenSignature_RoundTrip(t *testing.T) {
	secret := []byte("ticket-secret")
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if len(token) != TokenSize {
		t.Fatalf("expected %d-byte token, got %d", TokenSize, len(token))
	}

	sig := SignToken(secret, token)
	if !VerifyTokenSignature(secret, token, sig) {
		t.Error("expected correct signature to verify")
	}
}

func TestTokenSignature_WrongTokenFails(t *testing.T) {
	secret := []byte("ticket-secret")
	token1, _ := GenerateToken()
	token2, _ := GenerateToken()

	sig := SignToken(secret, token1)
	if VerifyTokenSignature(secret, token2, sig) {
		t.Error("expected signature for a different token to fail")
	}
}
