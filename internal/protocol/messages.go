// Package protocol defines the WebSocket message types and structures used for
// communication between the client and the relay server. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRegister     = "register"
	TypeSearch       = "search"
	TypeKnockSend    = "knock_send"
	TypeKnockAccept  = "knock_accept"
	TypeSessionJoin  = "session_join"
	TypeSessionClose = "session_close"
	TypeMessageSend  = "message_send"
	TypeMessagesGet  = "messages_get"
	TypeUserReport   = "user_report"
	TypeUserBlock    = "user_block"
	TypeFeedback     = "feedback"
	TypePing         = "ping"
)

// Server -> Client message types.
const (
	TypeRegistered      = "registered"
	TypeUserRegistered  = "user_registered"
	TypePresenceList    = "presence_list"
	TypePresenceCount   = "presence_count"
	TypeSearchResults   = "search_results"
	TypeKnockReceived   = "knock_received"
	TypeKnockSent       = "knock_sent"
	TypeKnockAccepted   = "knock_accepted"
	TypeSessionCreated  = "session_created"
	TypeSessionClosed   = "session_closed"
	TypeMessageAck      = "message_ack"
	TypeMessageReceived = "message_received"
	TypeMessagesList    = "messages_list"
	TypeMessageExpired  = "message_expired"
	TypeBlocked         = "blocked"
	TypeBanned          = "banned"
	TypePong            = "pong"
)

// ---------------------------------------------------------------------------
// Shared payload structures
// ---------------------------------------------------------------------------

// Profile is the user-supplied identity attached to a registration. The ID is
// chosen by the client and must be non-empty; everything else is optional
// descriptive detail used for presence listings and search.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Country string `json:"country,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}

// MessageData is the wire representation of a relayed message. Timestamps are
// Unix milliseconds.
type MessageData struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	SenderID  string         `json:"sender_id"`
	Payload   string         `json:"payload"`
	Kind      string         `json:"kind,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"`
	ExpiresAt int64          `json:"expires_at"`
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RegisterMsg binds a profile to the current connection. Registering an ID
// that is already online evicts the previous connection.
type RegisterMsg struct {
	Type    string  `json:"type"`
	Profile Profile `json:"profile"`
}

// SearchMsg filters the requester's visible users. All filters are optional
// and combine with AND: name is a case-insensitive substring match, gender
// and country are exact matches.
type SearchMsg struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Country string `json:"country,omitempty"`
}

// KnockSendMsg signals interest in starting a session with another user.
type KnockSendMsg struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

// KnockAcceptMsg accepts a knock previously received from from_user_id,
// creating the session.
type KnockAcceptMsg struct {
	Type       string `json:"type"`
	FromUserID string `json:"from_user_id"`
}

// SessionJoinMsg re-fetches the descriptor of a session the caller already
// participates in (reconnection path).
type SessionJoinMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// SessionCloseMsg ends a session the caller participates in.
type SessionCloseMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// MessageSendMsg sends a message into a session.
type MessageSendMsg struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Payload   string         `json:"payload"`
	Kind      string         `json:"kind,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MessagesGetMsg requests the non-expired messages of a session.
type MessagesGetMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// UserReportMsg reports another user for abuse.
type UserReportMsg struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

// UserBlockMsg blocks another user, hiding both parties from each other.
type UserBlockMsg struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

// FeedbackMsg carries free-form user feedback, relayed to the feedback
// service without inspection.
type FeedbackMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// RegisteredMsg acknowledges a successful registration to the caller.
type RegisteredMsg struct {
	Type    string  `json:"type"`
	UserID  string  `json:"user_id"`
	Profile Profile `json:"profile"`
}

// UserRegisteredMsg announces to everyone that a user came online.
type UserRegisteredMsg struct {
	Type    string  `json:"type"`
	UserID  string  `json:"user_id"`
	Profile Profile `json:"profile"`
}

// PresenceListMsg carries the recipient's block-filtered view of online users.
type PresenceListMsg struct {
	Type  string    `json:"type"`
	Users []Profile `json:"users"`
}

// PresenceCountMsg carries the unfiltered connection and registration totals.
type PresenceCountMsg struct {
	Type       string `json:"type"`
	Connected  int    `json:"connected"`
	Registered int    `json:"registered"`
}

// SearchResultsMsg carries the filtered user list back to the caller.
type SearchResultsMsg struct {
	Type  string    `json:"type"`
	Users []Profile `json:"users"`
}

// KnockReceivedMsg notifies a user that someone wants to start a session.
type KnockReceivedMsg struct {
	Type        string  `json:"type"`
	KnockID     string  `json:"knock_id"`
	FromUserID  string  `json:"from_user_id"`
	FromProfile Profile `json:"from_profile"`
}

// KnockSentMsg acknowledges a delivered knock to its sender.
type KnockSentMsg struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

// KnockAcceptedMsg notifies the original knocker that their knock was
// accepted and a session now exists.
type KnockAcceptedMsg struct {
	Type           string  `json:"type"`
	SessionID      string  `json:"session_id"`
	PartnerID      string  `json:"partner_id"`
	PartnerProfile Profile `json:"partner_profile"`
}

// SessionCreatedMsg notifies a participant that a session is available. On
// accept it carries the partner's profile; on session_join it carries the
// participant list.
type SessionCreatedMsg struct {
	Type           string   `json:"type"`
	SessionID      string   `json:"session_id"`
	PartnerID      string   `json:"partner_id,omitempty"`
	PartnerProfile *Profile `json:"partner_profile,omitempty"`
	Participants   []string `json:"participants,omitempty"`
}

// SessionClosedMsg notifies both participants that a session was destroyed.
type SessionClosedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// MessageAckMsg acknowledges a message_send to its caller.
type MessageAckMsg struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// MessageReceivedMsg delivers a full relayed message to a participant.
type MessageReceivedMsg struct {
	Type    string      `json:"type"`
	Message MessageData `json:"message"`
}

// MessagesListMsg carries the non-expired messages of a session in arrival
// order.
type MessagesListMsg struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Messages  []MessageData `json:"messages"`
}

// MessageExpiredMsg notifies a participant that a message reached its TTL and
// was purged.
type MessageExpiredMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// BlockedMsg acknowledges a user_block to its caller.
type BlockedMsg struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

// BannedMsg is the termination notice sent to a user just before their
// connection is force-closed by a ban.
type BannedMsg struct {
	Type string `json:"type"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSearch:
		var m SearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeKnockSend:
		var m KnockSendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeKnockAccept:
		var m KnockAcceptMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSessionJoin:
		var m SessionJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSessionClose:
		var m SessionCloseMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageSend:
		var m MessageSendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessagesGet:
		var m MessagesGetMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUserReport:
		var m UserReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUserBlock:
		var m UserBlockMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFeedback:
		var m FeedbackMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
