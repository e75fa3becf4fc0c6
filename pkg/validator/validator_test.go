package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"meshnode/pkg/chains"
	"meshnode/pkg/models"
	"meshnode/pkg/resolver"
)

type staticVerifier struct {
	verdict chains.Verdict
	err     error
}

func (s staticVerifier) Verify(context.Context, string, []byte, string) (chains.Verdict, error) {
	return s.verdict, s.err
}

type mapBlobs map[string][]byte

func (m mapBlobs) Fetch(_ context.Context, hash string) ([]byte, error) {
	b, ok := m[hash]
	if !ok {
		return nil, resolver.ErrUnavailable
	}
	return b, nil
}

func (m mapBlobs) Pin(context.Context, string) error { return nil }

func newValidator(verdict chains.Verdict, blobs mapBlobs) *Validator {
	reg := chains.NewRegistry()
	reg.Register("ETH", staticVerifier{verdict: verdict})
	if blobs == nil {
		blobs = mapBlobs{}
	}
	res := resolver.New(blobs, resolver.Options{MaxAttempts: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	return New(reg, res)
}

func inlineMsg(typ models.MessageType, content string) *models.Message {
	sum := sha256.Sum256([]byte(content))
	return &models.Message{
		Type:        typ,
		Channel:     "TEST",
		Time:        100,
		Sender:      "0xabc",
		Chain:       "ETH",
		Signature:   "sig",
		ItemHash:    hex.EncodeToString(sum[:]),
		ItemType:    models.ItemInline,
		HashType:    models.HashSHA256,
		ItemContent: content,
	}
}

func TestValidateAcceptsWellFormedPost(t *testing.T) {
	v := newValidator(chains.Authentic, nil)
	m := inlineMsg(models.TypePost, `{"type":"blog","body":"hi"}`)

	out, content := v.Validate(context.Background(), m)
	if out.Classification != models.Accepted {
		t.Fatalf("expected accepted, got %+v", out)
	}
	if string(content) != m.ItemContent {
		t.Fatalf("accepted validation must return the resolved bytes")
	}
	if out.Hash != m.ItemHash {
		t.Fatalf("outcome must echo the item hash")
	}
}

func TestValidateSchemaErrors(t *testing.T) {
	v := newValidator(chains.Authentic, nil)
	base := inlineMsg(models.TypePost, `{"type":"blog"}`)

	cases := []struct {
		name   string
		mutate func(*models.Message)
		reason string
	}{
		{"missing sender", func(m *models.Message) { m.Sender = "" }, models.ReasonSchema},
		{"missing chain", func(m *models.Message) { m.Chain = "" }, models.ReasonSchema},
		{"missing time", func(m *models.Message) { m.Time = 0 }, models.ReasonSchema},
		{"missing hash", func(m *models.Message) { m.ItemHash = "" }, models.ReasonSchema},
		{"inline without content", func(m *models.Message) { m.ItemContent = "" }, models.ReasonSchema},
		{"bad type", func(m *models.Message) { m.Type = "FORGET" }, models.ReasonUnsupportedField},
		{"bad item type", func(m *models.Message) { m.ItemType = "CARRIER-PIGEON" }, models.ReasonUnsupportedField},
		{"bad hash type", func(m *models.Message) { m.HashType = "MD5" }, models.ReasonUnsupportedField},
	}
	for _, tc := range cases {
		m := *base
		tc.mutate(&m)
		out, _ := v.Validate(context.Background(), &m)
		if out.Classification != models.Rejected || out.Reason != tc.reason {
			t.Fatalf("%s: expected rejection %s, got %+v", tc.name, tc.reason, out)
		}
	}
}

func TestValidateStoreInlineRejected(t *testing.T) {
	v := newValidator(chains.Authentic, nil)
	m := inlineMsg(models.TypeStore, `raw bytes`)

	out, _ := v.Validate(context.Background(), m)
	if out.Classification != models.Rejected || out.Reason != models.ReasonInvalidStoreInline {
		t.Fatalf("STORE must require content addressing, got %+v", out)
	}
}

func TestValidateUnknownChain(t *testing.T) {
	v := newValidator(chains.Authentic, nil)
	m := inlineMsg(models.TypePost, `{"type":"blog"}`)
	m.Chain = "DOGE"

	out, _ := v.Validate(context.Background(), m)
	if out.Classification != models.Rejected || out.Reason != models.ReasonUnknownChain {
		t.Fatalf("expected unknown-chain rejection, got %+v", out)
	}
}

func TestValidateInvalidSignature(t *testing.T) {
	v := newValidator(chains.Inauthentic, nil)
	m := inlineMsg(models.TypePost, `{"type":"blog"}`)

	out, _ := v.Validate(context.Background(), m)
	if out.Classification != models.Rejected || out.Reason != models.ReasonInvalidSignature {
		t.Fatalf("expected invalid-signature rejection, got %+v", out)
	}
}

func TestValidateVerifierPendingDefers(t *testing.T) {
	for _, v := range []*Validator{
		newValidator(chains.Indeterminate, nil),
	} {
		m := inlineMsg(models.TypePost, `{"type":"blog"}`)
		out, _ := v.Validate(context.Background(), m)
		if out.Classification != models.Deferred || out.Reason != models.ReasonVerifierPending {
			t.Fatalf("expected verifier-pending deferral, got %+v", out)
		}
	}
}

func TestValidateVerifierErrorDefers(t *testing.T) {
	reg := chains.NewRegistry()
	reg.Register("ETH", staticVerifier{err: errors.New("rpc down")})
	v := New(reg, resolver.New(mapBlobs{}, resolver.DefaultOptions()))
	m := inlineMsg(models.TypePost, `{"type":"blog"}`)

	out, _ := v.Validate(context.Background(), m)
	if out.Classification != models.Deferred || out.Reason != models.ReasonVerifierPending {
		t.Fatalf("verifier error must defer, got %+v", out)
	}
}

func TestValidateHashMismatchRejected(t *testing.T) {
	v := newValidator(chains.Authentic, nil)
	m := inlineMsg(models.TypePost, `{"type":"blog"}`)
	m.ItemHash = "0000000000000000000000000000000000000000000000000000000000000000"

	out, _ := v.Validate(context.Background(), m)
	if out.Classification != models.Rejected || out.Reason != models.ReasonHashMismatch {
		t.Fatalf("digest mismatch must reject permanently, got %+v", out)
	}
}

func TestValidateUnavailableContentDefers(t *testing.T) {
	v := newValidator(chains.Authentic, mapBlobs{})
	m := inlineMsg(models.TypeStore, "")
	m.ItemType = models.ItemIPFS
	m.ItemContent = ""
	m.ItemHash = "1111111111111111111111111111111111111111111111111111111111111111"

	out, _ := v.Validate(context.Background(), m)
	if out.Classification != models.Deferred || out.Reason != models.ReasonContentUnavailable {
		t.Fatalf("missing blob must defer, got %+v", out)
	}
}

func TestValidateFetchedStoreContent(t *testing.T) {
	payload := []byte("opaque file bytes")
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	v := newValidator(chains.Authentic, mapBlobs{hash: payload})

	m := &models.Message{
		Type: models.TypeStore, Channel: "T", Time: 1, Sender: "a", Chain: "ETH",
		ItemHash: hash, ItemType: models.ItemIPFS, HashType: models.HashSHA256,
	}
	out, content := v.Validate(context.Background(), m)
	if out.Classification != models.Accepted {
		t.Fatalf("expected accepted, got %+v", out)
	}
	if string(content) != string(payload) {
		t.Fatalf("resolved bytes lost")
	}
}

func TestValidateContentShape(t *testing.T) {
	v := newValidator(chains.Authentic, nil)

	agg := inlineMsg(models.TypeAggregate, `["not","a","mapping"]`)
	out, _ := v.Validate(context.Background(), agg)
	if out.Classification != models.Rejected || out.Reason != models.ReasonInvalidContent {
		t.Fatalf("non-mapping aggregate content must reject, got %+v", out)
	}

	empty := inlineMsg(models.TypeAggregate, `{}`)
	out, _ = v.Validate(context.Background(), empty)
	if out.Classification != models.Rejected || out.Reason != models.ReasonInvalidContent {
		t.Fatalf("empty aggregate mapping must reject, got %+v", out)
	}

	post := inlineMsg(models.TypePost, `{"body":"no type tag"}`)
	out, _ = v.Validate(context.Background(), post)
	if out.Classification != models.Rejected || out.Reason != models.ReasonInvalidContent {
		t.Fatalf("post without type must reject, got %+v", out)
	}
}
