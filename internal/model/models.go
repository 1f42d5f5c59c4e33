// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the store, the
// remote session, and the reconciliation engine.
package model

// =============================================================================
// USER TYPE
// =============================================================================

// User is a server-registered account. The ID is server-assigned and
// stable once known; the name is unique per server.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// =============================================================================
// GROUP TYPE
// =============================================================================

// Group is a server-created chat group. The ID is server-assigned and
// globally unique across groups. The name is advisory: the server does not
// enforce uniqueness, and lookups by name return the first match.
type Group struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatorID int64  `json:"creator"`

	// Members is populated lazily via the member-list request and may be
	// nil for a group that has only been seen in passing.
	Members []User `json:"members,omitempty"`
}

// =============================================================================
// CONVERSATION SELECTION
// =============================================================================

// Selection identifies the active conversation: a destination id plus the
// message kind that disambiguates user ids from group ids. The zero value
// means no conversation is selected.
type Selection struct {
	Destination int64
	Kind        Kind
	active      bool
}

// Select returns a Selection for the given destination and kind.
func Select(destination int64, kind Kind) Selection {
	return Selection{Destination: destination, Kind: kind, active: true}
}

// Active reports whether a conversation is selected.
func (s Selection) Active() bool {
	return s.active
}

// Matches reports whether a message belongs to the selected conversation.
// Direct messages match when they travel to or from the selected peer, so
// both sides of the exchange land in the same view; group messages match
// on the destination group. A kind mismatch never matches, even when the
// ids collide.
func (s Selection) Matches(m Message) bool {
	if !s.active || m.Kind != s.Kind {
		return false
	}
	switch m.Kind {
	case KindDirect:
		return m.Origin == s.Destination || m.Destination == s.Destination
	case KindGroup:
		return m.Destination == s.Destination
	default:
		return false
	}
}
