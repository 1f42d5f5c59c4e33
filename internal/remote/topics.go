// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import "github.com/jeranaias/wave-tui/internal/util"

// Topic names are part of the server contract and must stay stable within
// one deployment.

// Inbound feeds delivered for the session's lifetime.
const (
	// TopicMessages carries batches of newly delivered messages.
	TopicMessages = "queue/messages"

	// TopicConfirmed carries the self-echo of an accepted outbound
	// message, now bearing its server-assigned id and timestamp.
	TopicConfirmed = "queue/received"

	// TopicGroups carries group-change notifications.
	TopicGroups = "queue/groups"
)

// Outbound publishes.
const (
	// TopicSend publishes a composed message.
	TopicSend = "app/send"

	// TopicReceipt confirms delivery of a received message id.
	TopicReceipt = "app/received"

	// TopicReady tells the server the inbound feeds are subscribed and
	// queued traffic may start flowing.
	TopicReady = "app/ready"
)

// Request topics, correlated one response per request by topic name.

// TopicUserByName looks up a user by account name.
func TopicUserByName(name string) string {
	return "app/get.user.by.name/" + name
}

// TopicUserByID looks up a user by id.
func TopicUserByID(id int64) string {
	return "app/get.user.by.id/" + util.Int64ToString(id)
}

// TopicGroupByID looks up a group by id.
func TopicGroupByID(id int64) string {
	return "app/get.group.by.id/" + util.Int64ToString(id)
}

// TopicGroupByName looks up a group by name (first match).
func TopicGroupByName(name string) string {
	return "app/get.group.by.name/" + name
}

// TopicCreateGroup creates a group server-side and returns it.
func TopicCreateGroup(name string) string {
	return "app/create.group/" + name
}

// TopicGroupMembers fetches the member list of a group.
func TopicGroupMembers(id int64) string {
	return "app/get.members/" + util.Int64ToString(id)
}

// TopicAddMember adds a user to a group (fire-and-forget publish).
func TopicAddMember(groupID, userID int64) string {
	return "app/add.user.to.group/" + util.Int64ToString(groupID) + "/" + util.Int64ToString(userID)
}

// Handshake topics exchanged before the session is Connected.
const (
	topicConnect   = "connect"
	topicConnected = "connected"
	topicError     = "error"
)
