// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
)

// =============================================================================
// SELECTION TESTS
// =============================================================================

func TestSelectionMatchesDirect(t *testing.T) {
	sel := Select(7, KindDirect)

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"to selected peer", Message{Origin: 1, Destination: 7, Kind: KindDirect}, true},
		{"from selected peer", Message{Origin: 7, Destination: 1, Kind: KindDirect}, true},
		{"unrelated peer", Message{Origin: 1, Destination: 9, Kind: KindDirect}, false},
		{"kind mismatch", Message{Origin: 1, Destination: 7, Kind: KindGroup}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sel.Matches(tt.msg); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestSelectionMatchesGroup(t *testing.T) {
	sel := Select(3, KindGroup)

	if !sel.Matches(Message{Origin: 9, Destination: 3, Kind: KindGroup}) {
		t.Error("group message to selected group should match")
	}
	if sel.Matches(Message{Origin: 9, Destination: 4, Kind: KindGroup}) {
		t.Error("group message to other group should not match")
	}
	if sel.Matches(Message{Origin: 3, Destination: 9, Kind: KindGroup}) {
		t.Error("group id as origin should not match")
	}
}

func TestSelectionZeroValueMatchesNothing(t *testing.T) {
	var sel Selection
	if sel.Active() {
		t.Error("zero selection should be inactive")
	}
	if sel.Matches(Message{Origin: 0, Destination: 0, Kind: KindDirect}) {
		t.Error("inactive selection must not match, even on zero ids")
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessagePending(t *testing.T) {
	sel := Select(42, KindGroup)
	msg := NewMessage(5, sel, "hello")

	if !msg.Pending() {
		t.Error("freshly composed message should be pending")
	}
	if msg.ID != PendingID {
		t.Errorf("ID = %d, want %d", msg.ID, PendingID)
	}
	if msg.Destination != 42 || msg.Kind != KindGroup || msg.Origin != 5 {
		t.Errorf("unexpected addressing: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestMessageWireFieldNames(t *testing.T) {
	data, err := json.Marshal(Message{ID: 1, Origin: 2, Destination: 3, Body: "hi", Kind: KindGroup})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "origin", "destination", "message", "timestamp", "messageType"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("wire message missing field %q", key)
		}
	}
}

// =============================================================================
// RECIPIENT TESTS
// =============================================================================

func TestRecipientList(t *testing.T) {
	users := []User{{ID: 2, Name: "zoe"}, {ID: 1, Name: "adam"}}
	groups := []Group{{ID: 9, Name: "Lobby", CreatorID: 1}}

	list := RecipientList(users, groups)
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}

	want := []string{"adam", "Lobby", "zoe"}
	for i, name := range want {
		if list[i].DisplayName() != name {
			t.Errorf("list[%d] = %q, want %q", i, list[i].DisplayName(), name)
		}
	}

	if list[1].Kind != KindGroup || list[1].Destination() != 9 {
		t.Errorf("group recipient mangled: %+v", list[1])
	}
	if sel := list[1].Selection(); sel.Kind != KindGroup || sel.Destination != 9 || !sel.Active() {
		t.Errorf("group selection mangled: %+v", sel)
	}
}
