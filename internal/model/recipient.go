// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
)

// =============================================================================
// RECIPIENT VARIANT
// =============================================================================

// Recipient is a tagged union over the two entity kinds that can head a
// conversation: a user (direct) or a group. Dispatch on Kind; exactly one
// of the two values is meaningful.
type Recipient struct {
	Kind  Kind
	User  User
	Group Group
}

// UserRecipient wraps a user as a direct-conversation recipient.
func UserRecipient(u User) Recipient {
	return Recipient{Kind: KindDirect, User: u}
}

// GroupRecipient wraps a group as a group-conversation recipient.
func GroupRecipient(g Group) Recipient {
	return Recipient{Kind: KindGroup, Group: g}
}

// Destination returns the id messages to this recipient are addressed to.
func (r Recipient) Destination() int64 {
	if r.Kind == KindGroup {
		return r.Group.ID
	}
	return r.User.ID
}

// DisplayName returns the name shown in the recipient list.
func (r Recipient) DisplayName() string {
	if r.Kind == KindGroup {
		return r.Group.Name
	}
	return r.User.Name
}

// Selection returns the conversation selection for this recipient.
func (r Recipient) Selection() Selection {
	return Select(r.Destination(), r.Kind)
}

// =============================================================================
// RECIPIENT LIST
// =============================================================================

// RecipientList builds the display list from all cached users and groups.
// The order is stable: case-insensitive by name, ties broken direct before
// group, then by id.
func RecipientList(users []User, groups []Group) []Recipient {
	list := make([]Recipient, 0, len(users)+len(groups))
	for _, u := range users {
		list = append(list, UserRecipient(u))
	}
	for _, g := range groups {
		list = append(list, GroupRecipient(g))
	}
	sort.SliceStable(list, func(i, j int) bool {
		ni := strings.ToLower(list[i].DisplayName())
		nj := strings.ToLower(list[j].DisplayName())
		if ni != nj {
			return ni < nj
		}
		if list[i].Kind != list[j].Kind {
			return list[i].Kind == KindDirect
		}
		return list[i].Destination() < list[j].Destination()
	})
	return list
}
