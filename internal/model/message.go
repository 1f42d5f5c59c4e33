// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// MESSAGE KIND
// =============================================================================

// Kind distinguishes direct (user-to-user) messages from group messages.
// The wire encoding is the server's integer tag: 0 direct, 1 group.
type Kind int

const (
	KindDirect Kind = 0
	KindGroup  Kind = 1
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Valid reports whether the kind is one the client understands.
func (k Kind) Valid() bool {
	return k == KindDirect || k == KindGroup
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// PendingID marks a message composed locally that the server has not yet
// acknowledged. Once the server assigns a non-negative id, that id is
// immutable and globally unique.
const PendingID int64 = -1

// Message is a single chat message. (Origin, Destination, Kind) determine
// which conversation it belongs to.
type Message struct {
	ID          int64     `json:"id"`
	Origin      int64     `json:"origin"`
	Destination int64     `json:"destination"`
	Body        string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        Kind      `json:"messageType"`
}

// Pending reports whether the message is still awaiting a server id.
func (m Message) Pending() bool {
	return m.ID < 0
}

// NewMessage composes an outbound message for the given conversation.
// The id stays PendingID until the server echoes the accepted copy back.
func NewMessage(origin int64, sel Selection, body string) Message {
	return Message{
		ID:          PendingID,
		Origin:      origin,
		Destination: sel.Destination,
		Body:        body,
		Timestamp:   time.Now(),
		Kind:        sel.Kind,
	}
}
