package chains

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// RecoverFunc recovers the signer address from a 32-byte message hash and a
// 65-byte [R || S || V] signature. secp256k1 recovery is delegated to the
// deployment rather than implemented here.
type RecoverFunc func(hash [32]byte, sig []byte) (address string, err error)

// EthereumVerifier checks personal-sign (EIP-191) signatures. The sender
// address must equal the recovered signer, compared case-insensitively.
type EthereumVerifier struct {
	Recover RecoverFunc
}

// PersonalHash computes keccak256 over the prefixed payload, the digest
// wallets sign for personal messages.
func PersonalHash(payload []byte) [32]byte {
	prefixed := append([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(payload))), payload...)
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(prefixed)
	copy(out[:], h.Sum(nil))
	return out
}

func (v EthereumVerifier) Verify(_ context.Context, sender string, payload []byte, signature string) (Verdict, error) {
	if v.Recover == nil {
		// no recovery capability wired for this deployment yet
		return Indeterminate, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(raw) != 65 {
		return Inauthentic, nil
	}
	addr, err := v.Recover(PersonalHash(payload), raw)
	if err != nil {
		return Inauthentic, nil
	}
	if !strings.EqualFold(addr, sender) {
		return Inauthentic, nil
	}
	return Authentic, nil
}
