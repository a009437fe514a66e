package session

import (
	"time"

	"github.com/waplex/waplex/internal/domain"
)

// Event names delivered to the realtime broadcaster and webhook endpoints.
const (
	EvtInitializing   = "initializing"
	EvtPairingReady   = "pairing_ready"
	EvtPairingExpired = "pairing_expired"
	EvtAuthenticated  = "authenticated"
	EvtReady          = "ready"
	EvtDisconnected   = "disconnected"
	EvtAuthFailure    = "auth_failure"
	EvtReconnecting   = "reconnecting"
	EvtReconnectFail  = "reconnect_failed"
	EvtMessage        = "message"
	EvtMessageSent    = "message_sent"
	EvtBulkCompleted  = "bulk_completed"
)

// Event is the envelope for every outward lifecycle or message event.
// Payload is one of the typed payload structs below, keyed by Name.
type Event struct {
	Name      string      `json:"event"`
	AccountId int64       `json:"account_id,string"`
	Platform  string      `json:"platform"`
	At        time.Time   `json:"at"`
	Payload   interface{} `json:"payload,omitempty"`
}

type InitializingPayload struct {
	Identity string `json:"identity"`
}

type PairingReadyPayload struct {
	Artifact  string    `json:"artifact"` // PNG data URL
	ExpiresAt time.Time `json:"expires_at"`
}

type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

type AuthFailurePayload struct {
	Error string `json:"error"`
}

type ReconnectingPayload struct {
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"max_attempts"`
}

type MessagePayload struct {
	Message      *domain.ChatMessage      `json:"message"`
	Conversation *domain.ChatConversation `json:"conversation"`
}

type BulkCompletedPayload struct {
	JobId      int64 `json:"job_id,string"`
	Total      int   `json:"total"`
	Successful int   `json:"successful"`
	Failed     int   `json:"failed"`
}

// Emitter fans events out to observers. Implementations must not block the
// caller; session processing never waits on delivery.
type Emitter interface {
	Emit(evt Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
