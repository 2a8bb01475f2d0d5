package service

import (
	"context"

	"bridge-orchestrator/internal/core/domain"
)

// CapabilityAuthorizer implements ports.Authorizer as a flat capability-list
// check. There are no roles to interpret; a client either carries a
// capability or it does not.
type CapabilityAuthorizer struct{}

func NewCapabilityAuthorizer() *CapabilityAuthorizer {
	return &CapabilityAuthorizer{}
}

// Permits reports whether the client may invoke the named action.
func (a *CapabilityAuthorizer) Permits(_ context.Context, subject *domain.APIClient, action string) bool {
	if subject == nil || !subject.IsActive() {
		return false
	}
	for _, cap := range subject.Capabilities {
		if cap == action {
			return true
		}
	}
	return false
}
