package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid register message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Register(t *testing.T) {
	input := []byte(`{"type":"register","profile":{"id":"u-42","name":"Mira","gender":"f","country":"JP"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRegister {
		t.Fatalf("expected type %q, got %q", TypeRegister, msgType)
	}

	rm, ok := msg.(RegisterMsg)
	if !ok {
		t.Fatalf("expected RegisterMsg, got %T", msg)
	}
	if rm.Profile.ID != "u-42" {
		t.Errorf("expected id %q, got %q", "u-42", rm.Profile.ID)
	}
	if rm.Profile.Name != "Mira" || rm.Profile.Country != "JP" {
		t.Errorf("profile fields not decoded: %+v", rm.Profile)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message_send message
// ---------------------------------------------------------------------------

func TestParseClientMessage_MessageSend(t *testing.T) {
	input := []byte(`{"type":"message_send","session_id":"s-1","payload":"hi there","kind":"text","metadata":{"lang":"en"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessageSend {
		t.Fatalf("expected type %q, got %q", TypeMessageSend, msgType)
	}

	sm, ok := msg.(MessageSendMsg)
	if !ok {
		t.Fatalf("expected MessageSendMsg, got %T", msg)
	}
	if sm.SessionID != "s-1" {
		t.Errorf("expected session_id %q, got %q", "s-1", sm.SessionID)
	}
	if sm.Payload != "hi there" || sm.Kind != "text" {
		t.Errorf("message fields not decoded: %+v", sm)
	}
	if sm.Metadata["lang"] != "en" {
		t.Errorf("metadata not decoded: %+v", sm.Metadata)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing knock messages
// ---------------------------------------------------------------------------

func TestParseClientMessage_Knock(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"knock_send","target_user_id":"u-9"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeKnockSend {
		t.Fatalf("expected type %q, got %q", TypeKnockSend, msgType)
	}
	if ks := msg.(KnockSendMsg); ks.TargetUserID != "u-9" {
		t.Errorf("expected target %q, got %q", "u-9", ks.TargetUserID)
	}

	msgType, msg, err = ParseClientMessage([]byte(`{"type":"knock_accept","from_user_id":"u-3"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeKnockAccept {
		t.Fatalf("expected type %q, got %q", TypeKnockAccept, msgType)
	}
	if ka := msg.(KnockAcceptMsg); ka.FromUserID != "u-3" {
		t.Errorf("expected from %q, got %q", "u-3", ka.FromUserID)
	}
}

// ---------------------------------------------------------------------------
// Test: Malformed input is rejected
// ---------------------------------------------------------------------------

func TestParseClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"payload":"hello"}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"teleport"}`},
		{"server-only type", `{"type":"session_created","session_id":"s-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseClientMessage([]byte(tt.input)); err == nil {
				t.Errorf("expected error for %s", tt.input)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Creating server messages with the type discriminator injected
// ---------------------------------------------------------------------------

func TestNewServerMessage_SessionCreated(t *testing.T) {
	partner := Profile{ID: "u-7", Name: "Nox"}
	payload := SessionCreatedMsg{
		SessionID:      "s-55",
		PartnerID:      "u-7",
		PartnerProfile: &partner,
	}

	data, err := NewServerMessage(TypeSessionCreated, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeSessionCreated {
		t.Errorf("expected type %q, got %v", TypeSessionCreated, decoded["type"])
	}
	if decoded["session_id"] != "s-55" {
		t.Errorf("expected session_id %q, got %v", "s-55", decoded["session_id"])
	}
	if _, present := decoded["participants"]; present {
		t.Error("empty participants should be omitted")
	}
}

func TestNewServerMessage_MessageReceived(t *testing.T) {
	payload := MessageReceivedMsg{
		Message: MessageData{
			ID:        "m-1",
			SessionID: "s-1",
			SenderID:  "u-1",
			Payload:   "hello",
			CreatedAt: 1750000000000,
			ExpiresAt: 1750000030000,
		},
	}

	data, err := NewServerMessage(TypeMessageReceived, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Type    string      `json:"type"`
		Message MessageData `json:"message"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Type != TypeMessageReceived {
		t.Errorf("expected type %q, got %q", TypeMessageReceived, decoded.Type)
	}
	if decoded.Message.ExpiresAt-decoded.Message.CreatedAt != 30000 {
		t.Errorf("timestamps not preserved: %+v", decoded.Message)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope round-trips the raw payload
// ---------------------------------------------------------------------------

func TestEnvelope_CapturesRaw(t *testing.T) {
	input := []byte(`{"type":"search","name":"mi","country":"JP"}`)

	var env Envelope
	if err := json.Unmarshal(input, &env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypeSearch {
		t.Fatalf("expected type %q, got %q", TypeSearch, env.Type)
	}

	var sm SearchMsg
	if err := json.Unmarshal(env.Raw, &sm); err != nil {
		t.Fatalf("raw payload not reusable: %v", err)
	}
	if sm.Name != "mi" || sm.Country != "JP" {
		t.Errorf("deferred decode lost fields: %+v", sm)
	}
}
