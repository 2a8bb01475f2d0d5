package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/provider"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcilerImpl implements ports.Reconciler. It turns asynchronous provider
// deliveries into authoritative leg and intent state, posting the ledger
// exactly once per completed leg no matter how often an event is redelivered.
type ReconcilerImpl struct {
	paymentRepo ports.ExternalPaymentRepository
	intentRepo  ports.IntentRepository
	eventRepo   ports.ProviderEventRepository
	poster      ports.LedgerPoster
	lock        ports.ProcessingLock
	vocab       provider.Vocabulary
	secret      string // Shared webhook secret; empty disables verification
	log         zerolog.Logger
}

// NewReconciler creates a new ReconcilerImpl.
func NewReconciler(
	paymentRepo ports.ExternalPaymentRepository,
	intentRepo ports.IntentRepository,
	eventRepo ports.ProviderEventRepository,
	poster ports.LedgerPoster,
	lock ports.ProcessingLock,
	vocab provider.Vocabulary,
	secret string,
	log zerolog.Logger,
) *ReconcilerImpl {
	return &ReconcilerImpl{
		paymentRepo: paymentRepo,
		intentRepo:  intentRepo,
		eventRepo:   eventRepo,
		poster:      poster,
		lock:        lock,
		vocab:       vocab,
		secret:      secret,
		log:         log,
	}
}

// HandleEvent ingests one raw webhook delivery. Malformed payloads and
// signatures that fail verification are rejected; everything else is stored,
// matched if possible, and reconciled. Reconciliation failures are logged and
// recorded, never returned, so the provider stops redelivering.
func (s *ReconcilerImpl) HandleEvent(ctx context.Context, raw []byte, signature string) (*domain.ProviderEvent, error) {
	verified, err := s.verifySignature(raw, signature)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return nil, apperror.Validation("malformed webhook payload")
	}

	eventID := pickEventID(payload)
	existing, err := s.eventRepo.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("event dedup check: %w", err))
	}
	if existing != nil {
		s.log.Info().Str("event_id", eventID).Msg("Duplicate webhook event, skipping")
		return existing, nil
	}

	redacted, err := json.Marshal(redactValue(payload))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal redacted payload: %w", err))
	}

	status := s.mapStatus(payload)
	event := &domain.ProviderEvent{
		ID:        uuid.New(),
		EventID:   eventID,
		Status:    status,
		Raw:       redacted,
		Verified:  verified,
		CreatedAt: time.Now().UTC(),
	}

	payment := s.matchPayment(ctx, payload)
	if payment != nil {
		event.PaymentID = &payment.ID
		event.Matched = true
		if err := s.reconcile(ctx, payment, status, redacted); err != nil {
			// Recorded, not returned: the event stays replayable via Reprocess.
			s.log.Error().Err(err).
				Str("event_id", eventID).
				Str("payment_id", payment.ID.String()).
				Msg("Webhook reconciliation failed")
		}
	} else {
		s.log.Warn().Str("event_id", eventID).Msg("Webhook event matched no payment, storing as unmatched")
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store event: %w", err))
	}

	s.log.Info().
		Str("event_id", eventID).
		Str("status", string(status)).
		Bool("matched", event.Matched).
		Str("verified", string(verified)).
		Msg("Webhook event processed")
	return event, nil
}

// Reprocess re-runs reconciliation against the stored raw payload of an event
// or a payment's latest event.
func (s *ReconcilerImpl) Reprocess(ctx context.Context, req ports.ReprocessRequest) (*ports.ReprocessResult, error) {
	var event *domain.ProviderEvent
	var err error
	switch {
	case req.EventID != "":
		event, err = s.eventRepo.GetByEventID(ctx, req.EventID)
	case req.PaymentID != nil:
		event, err = s.eventRepo.LatestForPayment(ctx, *req.PaymentID)
	default:
		return nil, apperror.Validation("event id or payment id is required")
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load event: %w", err))
	}
	if event == nil {
		return nil, apperror.ErrNotFound("provider event")
	}

	var payload map[string]any
	if err := json.Unmarshal(event.Raw, &payload); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal stored event: %w", err))
	}

	payment := s.matchPayment(ctx, payload)
	if payment == nil && event.PaymentID != nil {
		payment, err = s.paymentRepo.GetByID(ctx, *event.PaymentID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("load payment: %w", err))
		}
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("external payment")
	}

	status := s.mapStatus(payload)
	if err := s.reconcile(ctx, payment, status, event.Raw); err != nil {
		return nil, err
	}

	// A reprocess that found the leg resolves the stored event, so it leaves
	// the unmatched backlog.
	if !event.Matched || event.PaymentID == nil {
		if err := s.eventRepo.MarkMatched(ctx, event.EventID, payment.ID); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("mark event matched: %w", err))
		}
	}

	s.log.Info().
		Str("event_id", event.EventID).
		Str("payment_id", payment.ID.String()).
		Str("new_status", string(status)).
		Msg("Event reprocessed")
	return &ports.ReprocessResult{OK: true, PaymentID: payment.ID, NewStatus: status}, nil
}

// UnmatchedEvents lists stored events that matched no payment.
func (s *ReconcilerImpl) UnmatchedEvents(ctx context.Context, limit int) ([]domain.ProviderEvent, error) {
	events, err := s.eventRepo.ListUnmatched(ctx, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list unmatched events: %w", err))
	}
	return events, nil
}

// reconcile applies one canonical status to a leg and settles the parent
// intent. Serialized per payment so redeliveries cannot race the
// first-completion ledger guard.
func (s *ReconcilerImpl) reconcile(ctx context.Context, payment *domain.ExternalPayment, status domain.PaymentStatus, eventRaw json.RawMessage) error {
	release, err := s.lock.Acquire(ctx, "reconcile:"+payment.ID.String())
	if err != nil {
		return apperror.InternalError(fmt.Errorf("acquire payment lock: %w", err))
	}
	defer release()

	// Terminal legs ignore further status changes; a replayed completion is a
	// no-op and a late contradictory event only gets recorded.
	if payment.IsTerminal() {
		s.log.Info().
			Str("payment_id", payment.ID.String()).
			Str("current", string(payment.Status)).
			Str("incoming", string(status)).
			Msg("Leg already terminal, skipping status change")
		return nil
	}

	meta, err := json.Marshal(map[string]json.RawMessage{"webhook": eventRaw})
	if err != nil {
		return apperror.InternalError(fmt.Errorf("marshal leg metadata: %w", err))
	}
	prev, err := s.paymentRepo.UpdateStatus(ctx, payment.ID, status, meta)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("update leg status: %w", err))
	}
	payment.Status = status

	// First transition to COMPLETED posts the ledger, exactly once.
	if status == domain.PaymentStatusCompleted && prev != domain.PaymentStatusCompleted {
		if err := s.poster.PostLegSettlement(ctx, payment); err != nil {
			return err
		}
	}

	return s.evaluateIntent(ctx, payment.IntentID)
}

// evaluateIntent settles or fails the parent intent based on its legs. Any
// failed leg fails the intent and compensates already-debited wallet legs;
// all legs completed settles it.
func (s *ReconcilerImpl) evaluateIntent(ctx context.Context, intentID uuid.UUID) error {
	siblings, err := s.paymentRepo.ListByIntentID(ctx, intentID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list sibling legs: %w", err))
	}
	if len(siblings) == 0 {
		return nil
	}

	anyFailed := false
	allCompleted := true
	for _, leg := range siblings {
		if leg.Status == domain.PaymentStatusFailed {
			anyFailed = true
		}
		if leg.Status != domain.PaymentStatusCompleted {
			allCompleted = false
		}
	}

	switch {
	case anyFailed:
		transitioned, err := s.intentRepo.UpdateStatus(ctx, intentID, domain.IntentStatusFailed)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("fail intent: %w", err))
		}
		if transitioned {
			if err := s.poster.ReverseIntentDebits(ctx, intentID); err != nil {
				return err
			}
			s.log.Info().Str("intent_id", intentID.String()).Msg("Intent failed, wallet debits compensated")
		}
	case allCompleted:
		transitioned, err := s.intentRepo.UpdateStatus(ctx, intentID, domain.IntentStatusSettled)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("settle intent: %w", err))
		}
		if transitioned {
			s.log.Info().Str("intent_id", intentID.String()).Msg("Intent settled")
		}
	}
	return nil
}

// matchPayment locates the leg an event refers to: provider reference first,
// then order reference, then metadata, all through FindByReference.
func (s *ReconcilerImpl) matchPayment(ctx context.Context, payload map[string]any) *domain.ExternalPayment {
	ref := pickRef(payload)
	if ref == "" {
		return nil
	}
	payment, err := s.paymentRepo.FindByReference(ctx, ref)
	if err != nil {
		s.log.Error().Err(err).Str("ref", ref).Msg("Payment lookup failed")
		return nil
	}
	return payment
}

// verifySignature checks the shared-secret HMAC when both a secret and a
// signature are present. A missing signature is accepted but unverified;
// a wrong one is rejected.
func (s *ReconcilerImpl) verifySignature(raw []byte, signature string) (domain.VerificationState, error) {
	signature = strings.TrimSpace(signature)
	if s.secret == "" || signature == "" {
		return domain.VerificationUnverified, nil
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(raw)
	computed := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return "", apperror.ErrUnauthorized()
	}
	return domain.VerificationVerified, nil
}

// mapStatus resolves the provider's status word wherever it hides in the
// payload.
func (s *ReconcilerImpl) mapStatus(payload map[string]any) domain.PaymentStatus {
	for _, path := range [][]string{
		{"status"},
		{"transaction_status"},
		{"payment_status"},
		{"data", "status"},
	} {
		if word := digPayload(payload, path); word != "" {
			return s.vocab.Canonical(word)
		}
	}
	return domain.PaymentStatusPending
}

// pickRef extracts the transaction reference from the known payload shapes.
func pickRef(payload map[string]any) string {
	for _, path := range [][]string{
		{"transaction_id"},
		{"provider_ref"},
		{"provider_reference"},
		{"data", "transaction_id"},
		{"reference"},
	} {
		if v := digPayload(payload, path); v != "" {
			return v
		}
	}
	return ""
}

// pickEventID uses the provider's event id when present, otherwise builds a
// stable synthetic id so redeliveries of the same event dedupe.
func pickEventID(payload map[string]any) string {
	if v := digPayload(payload, []string{"event", "id"}); v != "" {
		return "evt_" + v
	}
	if v := digPayload(payload, []string{"id"}); v != "" {
		return "evt_" + v
	}

	eventType := digPayload(payload, []string{"type"})
	if eventType == "" {
		eventType = digPayload(payload, []string{"event", "type"})
	}
	if eventType == "" {
		eventType = "unknown"
	}
	ref := pickRef(payload)
	if ref == "" {
		ref = "no_ref"
	}
	created := digPayload(payload, []string{"created_at"})
	if created == "" {
		created = digPayload(payload, []string{"created"})
	}
	if created == "" {
		created = digPayload(payload, []string{"timestamp"})
	}

	synthetic := sanitizeEventID("evt_" + eventType + "_" + ref + "_" + created)
	if len(synthetic) > 120 {
		synthetic = synthetic[:120]
	}
	return synthetic
}

func sanitizeEventID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digPayload(payload map[string]any, path []string) string {
	var cur any = payload
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = obj[key]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// redactValue strips secrets and masks PII before a payload is stored.
func redactValue(val any) any {
	switch v := val.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			key := strings.ToLower(k)
			switch {
			case strings.Contains(key, "token"), strings.Contains(key, "secret"), key == "authorization":
				out[k] = "<redacted>"
			case strings.Contains(key, "cvv"):
				out[k] = "***"
			case strings.Contains(key, "pan"), strings.Contains(key, "card_number"), strings.Contains(key, "cardnumber"):
				out[k] = maskTail(toString(item), 4)
			case strings.Contains(key, "phone"), strings.Contains(key, "msisdn"):
				out[k] = maskTail(toString(item), 2)
			case strings.Contains(key, "email"):
				out[k] = maskEmail(toString(item))
			default:
				out[k] = redactValue(item)
			}
		}
		return out
	default:
		return val
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func maskTail(s string, keep int) string {
	if len(s) <= keep {
		return strings.Repeat("*", keep+2)
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}

func maskEmail(s string) string {
	local, host, found := strings.Cut(s, "@")
	if !found || local == "" || host == "" {
		return "*"
	}
	return local[:1] + "***@" + host[:1] + "***"
}
