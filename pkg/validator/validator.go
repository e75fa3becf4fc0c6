package validator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"meshnode/pkg/chains"
	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/resolver"
	"meshnode/pkg/utils"
)

// Validator classifies candidate envelopes as accepted, permanently
// rejected or deferred for retry. It has no side effects beyond invoking
// the verifier registry and the content resolver; classification is a pure
// function of the candidate and the collaborators' current state.
type Validator struct {
	registry *chains.Registry
	resolver *resolver.Resolver

	// Timeout bounds one verifier call plus content resolution so a slow
	// collaborator surfaces as Deferred, never as a silent hang.
	Timeout time.Duration
}

// New builds a validator over the given collaborators.
func New(registry *chains.Registry, res *resolver.Resolver) *Validator {
	return &Validator{registry: registry, resolver: res, Timeout: 30 * time.Second}
}

// Validate runs the full check sequence. On acceptance the resolved,
// digest-verified content bytes are returned alongside the outcome.
func (v *Validator) Validate(ctx context.Context, m *models.Message) (models.Outcome, []byte) {
	if reason, ok := v.checkSchema(m); !ok {
		return rejected(m, reason), nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	if out, ok := v.checkAuthenticity(ctx, m); !ok {
		return out, nil
	}

	content, err := v.resolver.Resolve(ctx, m.ItemType, m.ItemHash, m.HashType, m.ItemContent)
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrHashMismatch):
			// permanent fraud signal, never retried
			return rejected(m, models.ReasonHashMismatch), nil
		case errors.Is(err, utils.ErrUnsupportedHashType):
			return rejected(m, models.ReasonUnsupportedField), nil
		default:
			return deferredOutcome(m, models.ReasonContentUnavailable), nil
		}
	}

	if reason, ok := v.checkContentShape(m, content); !ok {
		return rejected(m, reason), nil
	}

	return models.Outcome{Classification: models.Accepted, Hash: m.ItemHash}, content
}

// checkSchema enforces required fields and the registered enums.
func (v *Validator) checkSchema(m *models.Message) (string, bool) {
	if m.ItemHash == "" || m.Sender == "" || m.Chain == "" || m.Time == 0 {
		return models.ReasonSchema, false
	}
	if !m.Type.Valid() {
		return models.ReasonUnsupportedField, false
	}
	if !m.ItemType.Valid() || !m.HashType.Valid() {
		return models.ReasonUnsupportedField, false
	}
	if m.ItemType == models.ItemInline && m.ItemContent == "" {
		return models.ReasonSchema, false
	}
	// STORE content-addressing is mandatory
	if m.Type == models.TypeStore && m.ItemType == models.ItemInline {
		return models.ReasonInvalidStoreInline, false
	}
	return "", true
}

// checkAuthenticity dispatches to the chain's verifier.
func (v *Validator) checkAuthenticity(ctx context.Context, m *models.Message) (models.Outcome, bool) {
	verifier, err := v.registry.Lookup(m.Chain)
	if err != nil {
		return rejected(m, models.ReasonUnknownChain), false
	}
	verdict, err := verifier.Verify(ctx, m.Sender, chains.VerificationBuffer(m), m.Signature)
	if err != nil {
		// the verifier could not decide; retry later
		logger.Debug("verifier_error", "chain", m.Chain, "hash", m.ItemHash, "error", err)
		return deferredOutcome(m, models.ReasonVerifierPending), false
	}
	switch verdict {
	case chains.Authentic:
		return models.Outcome{}, true
	case chains.Indeterminate:
		return deferredOutcome(m, models.ReasonVerifierPending), false
	default:
		return rejected(m, models.ReasonInvalidSignature), false
	}
}

// checkContentShape enforces the structural requirements per message type:
// AGGREGATE content is a key->value mapping, POST content carries its
// post_type tag. STORE content is opaque.
func (v *Validator) checkContentShape(m *models.Message, content []byte) (string, bool) {
	switch m.Type {
	case models.TypeAggregate:
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(content, &entries); err != nil || len(entries) == 0 {
			return models.ReasonInvalidContent, false
		}
	case models.TypePost:
		var body struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(content, &body); err != nil || body.Type == "" {
			return models.ReasonInvalidContent, false
		}
	}
	return "", true
}

func rejected(m *models.Message, reason string) models.Outcome {
	logger.Info("message_rejected", "hash", m.ItemHash, "reason", reason)
	return models.Outcome{Classification: models.Rejected, Reason: reason, Hash: m.ItemHash}
}

func deferredOutcome(m *models.Message, reason string) models.Outcome {
	logger.Debug("message_deferred", "hash", m.ItemHash, "reason", reason)
	return models.Outcome{Classification: models.Deferred, Reason: reason, Hash: m.ItemHash}
}
