package chains

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
)

func TestEthereumVerifyNoRecoverIsIndeterminate(t *testing.T) {
	v := EthereumVerifier{}
	verdict, err := v.Verify(context.Background(), "0xabc", []byte("p"), "0x"+strings.Repeat("00", 65))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != Indeterminate {
		t.Fatalf("missing recovery capability must defer, got %s", verdict)
	}
}

func TestEthereumVerifyRecoveredAddress(t *testing.T) {
	const signer = "0xAbCd00000000000000000000000000000000Ef12"
	var gotHash [32]byte
	v := EthereumVerifier{Recover: func(hash [32]byte, sig []byte) (string, error) {
		gotHash = hash
		return signer, nil
	}}
	payload := []byte("hello")
	sig := "0x" + strings.Repeat("11", 65)

	verdict, err := v.Verify(context.Background(), strings.ToLower(signer), payload, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict != Authentic {
		t.Fatalf("case-insensitive address match must be authentic, got %s", verdict)
	}
	if gotHash != PersonalHash(payload) {
		t.Fatalf("recover must receive the personal-sign digest")
	}

	verdict, _ = v.Verify(context.Background(), "0x0000000000000000000000000000000000000000", payload, sig)
	if verdict != Inauthentic {
		t.Fatalf("address mismatch must be inauthentic, got %s", verdict)
	}
}

func TestEthereumVerifyBadSignatureEncoding(t *testing.T) {
	v := EthereumVerifier{Recover: func([32]byte, []byte) (string, error) {
		t.Fatalf("recover must not be called for malformed signatures")
		return "", nil
	}}
	for _, sig := range []string{"", "0x1234", "zzzz"} {
		verdict, err := v.Verify(context.Background(), "0xabc", []byte("p"), sig)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if verdict != Inauthentic {
			t.Fatalf("expected inauthentic for %q, got %s", sig, verdict)
		}
	}
}

func TestPersonalHashPrefix(t *testing.T) {
	// digest must differ from the raw keccak of the payload because of the
	// EIP-191 prefix
	a := PersonalHash([]byte("abc"))
	b := PersonalHash([]byte("abd"))
	if a == b {
		t.Fatalf("distinct payloads must hash differently")
	}
	if hex.EncodeToString(a[:]) == "" {
		t.Fatalf("empty digest")
	}
}
