package chains

import (
	"context"

	"meshnode/pkg/models"
)

// Verdict is the three-way result of a chain signature check. Indeterminate
// means the verifier cannot currently decide (e.g. it is waiting on chain
// data) and the candidate should be retried later.
type Verdict int

const (
	Inauthentic Verdict = iota
	Authentic
	Indeterminate
)

func (v Verdict) String() string {
	switch v {
	case Authentic:
		return "authentic"
	case Indeterminate:
		return "indeterminate"
	}
	return "inauthentic"
}

// Verifier is the per-chain capability that checks a (sender, payload,
// signature) triple. Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, sender string, payload []byte, signature string) (Verdict, error)
}

// VerificationBuffer builds the canonical byte string that chains sign:
// chain, sender, type and item_hash joined by newlines.
func VerificationBuffer(m *models.Message) []byte {
	return []byte(m.Chain + "\n" + m.Sender + "\n" + string(m.Type) + "\n" + m.ItemHash)
}
