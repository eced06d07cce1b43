package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestMessage_Struct(t *testing.T) {
	now := time.Now()
	msg := Message{
		ID:        "msg-123",
		SessionID: "session-456",
		Role:      RoleUser,
		Content:   "Hello, world!",
		Metadata:  map[string]any{"agent_name": "researcher"},
		CreatedAt: now,
		Seq:       5,
	}

	if msg.ID != "msg-123" {
		t.Errorf("ID = %q, want %q", msg.ID, "msg-123")
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %v, want %v", msg.Role, RoleUser)
	}
	if msg.Seq != 5 {
		t.Errorf("Seq = %d, want 5", msg.Seq)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := Message{
		ID:        "msg-123",
		SessionID: "session-456",
		Role:      RoleTool,
		Content:   "result",
		Metadata:  map[string]any{"tool_call_id": "tc-1"},
		CreatedAt: now,
		Seq:       1,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if decoded.Role != original.Role {
		t.Errorf("Role = %v, want %v", decoded.Role, original.Role)
	}
	if decoded.Metadata["tool_call_id"] != "tc-1" {
		t.Errorf("Metadata[tool_call_id] = %v, want tc-1", decoded.Metadata["tool_call_id"])
	}
}

func TestSession_Struct(t *testing.T) {
	now := time.Now()
	session := Session{
		ID:               "session-123",
		MaxContextTokens: 8000,
		Metadata:         map[string]any{"test": true},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if session.ID != "session-123" {
		t.Errorf("ID = %q, want %q", session.ID, "session-123")
	}
	if session.MaxContextTokens != 8000 {
		t.Errorf("MaxContextTokens = %d, want 8000", session.MaxContextTokens)
	}
}
