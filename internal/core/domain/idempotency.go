package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord caches the result of a completed dispatch so a retried
// request with the same key returns the first result and never re-invokes the
// provider. Write-once: a racing second write loses and must read the winner.
type IdempotencyRecord struct {
	Key          string    `json:"key"` // Caller-chosen, e.g. an order reference
	IntentID     uuid.UUID `json:"intent_id"`
	ResponseJSON []byte    `json:"response_json"` // Cached result to return verbatim
	CreatedAt    time.Time `json:"created_at"`
}

// BuildConfirmKey constructs the idempotency key for an intent confirmation.
func BuildConfirmKey(intentID uuid.UUID, callerKey string) string {
	return intentID.String() + ":confirm:" + callerKey
}

// BuildDispatchKey constructs the per-leg key sent to the provider, derived
// deterministically from the intent and leg index so retries reuse it.
func BuildDispatchKey(intentID uuid.UUID, legIndex int) string {
	return "pi-" + intentID.String() + "-leg-" + strconv.Itoa(legIndex)
}
