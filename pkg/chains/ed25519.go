package chains

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"

	"meshnode/pkg/logger"
)

// Ed25519Verifier checks Solana-style signatures: the sender address is the
// hex-encoded ed25519 public key and the signature field is a JSON envelope
// carrying the hex signature plus the signer's public key.
type Ed25519Verifier struct{}

type ed25519Sig struct {
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// Verify decodes the signature envelope and checks it against the payload.
// A malformed envelope or a signer that does not match the sender is
// inauthentic, never an error: bad input from the network is a verdict.
func (Ed25519Verifier) Verify(_ context.Context, sender string, payload []byte, signature string) (Verdict, error) {
	var sig ed25519Sig
	if err := json.Unmarshal([]byte(signature), &sig); err != nil {
		logger.Debug("ed25519_sig_envelope_invalid", "sender", sender, "error", err)
		return Inauthentic, nil
	}
	if sig.PublicKey != sender {
		logger.Debug("ed25519_sig_sender_mismatch", "sender", sender, "signer", sig.PublicKey)
		return Inauthentic, nil
	}
	pub, err := hex.DecodeString(sig.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return Inauthentic, nil
	}
	raw, err := hex.DecodeString(sig.Signature)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return Inauthentic, nil
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, raw) {
		return Inauthentic, nil
	}
	return Authentic, nil
}
