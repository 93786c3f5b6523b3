package streaming

import (
	"encoding/json"
	"time"

	"github.com/roadops/operator-console/pkg/core"
)

// Message type constants used on outbound console streams.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
	TypeHeroState    = "hero_state"
	TypePathProposal = "path_proposal"
	TypeTrafficFrame = "traffic_frame"
)

// Envelope wraps every message published by the console.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	SentAt    time.Time       `json:"sentAt"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionStartPayload announces a new console session.
type SessionStartPayload struct {
	Session *core.Session `json:"session"`
}

// Marshal builds a JSON-encoded Envelope for the given payload.
func Marshal(msgType, sessionID string, sentAt time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      msgType,
		SessionID: sessionID,
		SentAt:    sentAt,
		Payload:   raw,
	})
}

// AckMessage is sent back by a stream server to confirm a session message.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
}
