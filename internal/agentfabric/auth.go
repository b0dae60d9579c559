// Package agentfabric implements the controller side of §4.4: letting a
// controller node use remote "agent" nodes as extensions of its own
// filesystem, and letting agent nodes authenticate and federate in.
//
// Design note (resolves spec.md §9's open question on the shared secret):
// the same pre-shared symmetric secret is used for two different
// constructions — AES-CTR encryption of the connection challenge
// (internal/crypto.EncryptChallenge) and HMAC-SHA256 signing of one-shot
// ticket tokens (internal/crypto.SignToken). This dual use is deliberate,
// not an oversight: both derive their actual key material independently
// (HKDF-SHA256 keyed on the message being authenticated, per
// internal/crypto's doc comment), so the two constructions never share an
// underlying key even though they share the same root secret. An operator
// configures exactly one secret per agent.
package agentfabric

import (
	"time"

	"github.com/overlayd/overlayd/internal/crypto"
	"github.com/overlayd/overlayd/internal/errs"
)

const (
	// challengeTTL and ticketTTL are both 60s per §4.4.
	challengeTTL = 60 * time.Second
	ticketTTL    = 60 * time.Second
)

// ticketKind distinguishes the two one-shot ticket flows sharing the same
// cache: a share-catalog upload and a single-file upload both mint a
// 128-bit token the agent must sign to redeem.
type ticketKind int

const (
	ticketShareUpload ticketKind = iota
	ticketFileUpload
)

type ticketRecord struct {
	kind      ticketKind
	agentName string
}

// BeginChallenge mints a fresh challenge for a newly-accepted connection,
// cached under connID for 60s (§4.4 "Authentication").
func (f *Fabric) BeginChallenge(connID string) ([]byte, error) {
	challenge, err := crypto.GenerateChallenge()
	if err != nil {
		return nil, err
	}
	f.challenges.put(connID, challenge, challengeTTL)
	return challenge, nil
}

// Login verifies an agent's encrypted challenge response and, on success,
// registers it under agentName, replacing any prior registration for that
// name (§4.4). On failure the connection is deregistered.
func (f *Fabric) Login(connID, agentName string, response []byte) error {
	raw, ok := f.challenges.consume(connID)
	if !ok {
		return errs.New(errs.Timeout, "no outstanding challenge for connection")
	}
	challenge := raw.([]byte)

	ok, err := crypto.VerifyChallengeResponse(f.cfg.Secret, challenge, response)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "verify challenge response")
	}
	if !ok {
		f.registry.deregisterConn(connID)
		f.publishAgentEvent(agentName, "auth_failed")
		return errs.New(errs.Unauthorized, "challenge response did not verify")
	}

	if displaced := f.registry.register(agentName, connID); displaced != "" {
		f.waits.CancelPeer(agentName)
	}
	f.publishAgentEvent(agentName, "connected")
	return nil
}

// BeginShareUpload issues a one-shot 128-bit token for an agent's share
// catalog upload (§4.4 "One-shot credentials").
func (f *Fabric) BeginShareUpload(agentName string) ([]byte, error) {
	return f.issueTicket(agentName, ticketShareUpload)
}

// BeginFileUpload issues a one-shot token for a single requested file
// upload.
func (f *Fabric) BeginFileUpload(agentName string) ([]byte, error) {
	return f.issueTicket(agentName, ticketFileUpload)
}

func (f *Fabric) issueTicket(agentName string, kind ticketKind) ([]byte, error) {
	token, err := crypto.GenerateToken()
	if err != nil {
		return nil, err
	}
	f.tickets.put(string(token), ticketRecord{kind: kind, agentName: agentName}, ticketTTL)
	return token, nil
}

// ValidateTicket consumes the ticket registered under token — regardless of
// whether sig verifies, the cache entry is gone after this call, so a
// token can never be redeemed twice (§4.4 "removed on the first validation
// attempt regardless of outcome").
func (f *Fabric) ValidateTicket(token, sig []byte) (agentName string, kind ticketKind, err error) {
	raw, ok := f.tickets.consume(string(token))
	if !ok {
		return "", 0, errs.New(errs.Unauthorized, "ticket unknown or expired")
	}
	rec := raw.(ticketRecord)

	if !crypto.VerifyTokenSignature(f.cfg.Secret, token, sig) {
		return "", 0, errs.New(errs.Unauthorized, "ticket signature did not verify")
	}
	return rec.agentName, rec.kind, nil
}
