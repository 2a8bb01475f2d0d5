package provider

import (
	"strings"

	"bridge-orchestrator/internal/core/domain"
)

// Vocabulary maps provider-specific status words to canonical payment statuses.
// Keys are lowercase. Unknown or empty words resolve to PENDING so an
// unrecognized provider state never terminates a leg by accident.
type Vocabulary map[string]domain.PaymentStatus

// DefaultVocabulary covers the rails currently integrated. New providers are
// added through config overrides, not code changes.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"success":   domain.PaymentStatusCompleted,
		"succeeded": domain.PaymentStatusCompleted,
		"completed": domain.PaymentStatusCompleted,
		"complete":  domain.PaymentStatusCompleted,
		"paid":      domain.PaymentStatusCompleted,
		"failed":    domain.PaymentStatusFailed,
		"declined":  domain.PaymentStatusFailed,
		"rejected":  domain.PaymentStatusFailed,
		"error":     domain.PaymentStatusFailed,
	}
}

// Merge overlays config-provided terms onto the vocabulary. Values must be
// canonical status names; anything else is ignored.
func (v Vocabulary) Merge(overrides map[string]string) Vocabulary {
	for term, status := range overrides {
		switch domain.PaymentStatus(strings.ToUpper(status)) {
		case domain.PaymentStatusPending, domain.PaymentStatusCompleted, domain.PaymentStatusFailed:
			v[strings.ToLower(term)] = domain.PaymentStatus(strings.ToUpper(status))
		}
	}
	return v
}

// Canonical resolves a raw provider status word.
func (v Vocabulary) Canonical(raw string) domain.PaymentStatus {
	if s, ok := v[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return domain.PaymentStatusPending
}
