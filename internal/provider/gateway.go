package provider

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/resilience"
	"bridge-orchestrator/pkg/apperror"
)

// railUpstream names the breaker guarding each external rail.
var railUpstream = map[domain.FundingSource]string{
	domain.FundingSourceRailA: resilience.UpstreamRailA,
	domain.FundingSourceRailB: resilience.UpstreamRailB,
	domain.FundingSourceRailC: resilience.UpstreamRailC,
}

// Gateway is the only component that talks to external payment rails. Every
// call goes through the rail's circuit breaker, and transient failures are
// retried with each attempt passing through the breaker individually.
type Gateway struct {
	clients  map[domain.FundingSource]*Client
	breakers *resilience.Registry
	retry    *resilience.Executor
	vocab    Vocabulary
	log      zerolog.Logger
}

func NewGateway(
	clients map[domain.FundingSource]*Client,
	breakers *resilience.Registry,
	retry *resilience.Executor,
	vocab Vocabulary,
	log zerolog.Logger,
) *Gateway {
	return &Gateway{
		clients:  clients,
		breakers: breakers,
		retry:    retry,
		vocab:    vocab,
		log:      log,
	}
}

// Execute runs one rail action. Infrastructure failures (open breaker,
// exhausted retries) come back as an error; a reply the provider itself
// declined comes back as a result with OK=false so the caller can record it.
func (g *Gateway) Execute(ctx context.Context, req ports.DispatchRequest) (*ports.DispatchResult, error) {
	client, ok := g.clients[req.Rail]
	if !ok {
		return nil, apperror.ErrInvalidFundingSource(string(req.Rail))
	}
	upstream := railUpstream[req.Rail]
	breaker := g.breakers.Get(upstream)

	var resp *railResponse
	op := func(ctx context.Context) error {
		var callErr error
		resp, callErr = client.Call(ctx, req)
		return callErr
	}
	if breaker != nil {
		inner := op
		op = func(ctx context.Context) error { return breaker.Execute(ctx, inner) }
	}

	err := g.retry.Do(ctx, op)
	if err != nil {
		log := g.log.Error().
			Str("rail", string(req.Rail)).
			Str("action", string(req.Action)).
			Str("correlation_id", req.CorrelationID)
		if resilience.IsOpen(err) {
			log.Msg("Dispatch rejected by open circuit")
			return nil, apperror.ErrCircuitOpen(upstream)
		}
		var re *railError
		if errors.As(err, &re) && re.Code >= 400 && re.Code < 500 {
			log.Int("http_status", re.Code).Msg("Dispatch declined by provider")
			return &ports.DispatchResult{
				OK:         false,
				Status:     domain.PaymentStatusFailed,
				Reason:     re.Message,
				HTTPStatus: re.Code,
			}, nil
		}
		log.Err(err).Msg("Dispatch failed after retries")
		return nil, apperror.ErrProviderUnavailable(err)
	}

	status := g.vocab.Canonical(resp.RawStatus)
	result := &ports.DispatchResult{
		OK:          status != domain.PaymentStatusFailed,
		Status:      status,
		ProviderRef: resp.ProviderRef,
		Raw:         resp.Body,
		HTTPStatus:  resp.HTTPStatus,
	}
	if status == domain.PaymentStatusFailed {
		result.Reason = resp.Message
	}

	g.log.Info().
		Str("rail", string(req.Rail)).
		Str("action", string(req.Action)).
		Str("status", string(status)).
		Str("provider_ref", resp.ProviderRef).
		Str("correlation_id", req.CorrelationID).
		Msg("Dispatch completed")
	return result, nil
}
