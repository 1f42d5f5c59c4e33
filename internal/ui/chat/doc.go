// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat interface for wave.

The package implements a Bubble Tea model with two screens: a login form
and the chat view. The chat view is a three-pane layout: the recipient
list on the left, the conversation transcript in a viewport on the right,
and the message input at the bottom.

The interface never talks to the network or the database directly. All
state changes arrive as Bubble Tea messages: user intents are dispatched
to the reconciliation engine as commands, and engine notifications are
bridged back into the program through Bridge, which is safe to call from
any goroutine.

Slash commands handle everything that is not plain messaging:

	/add <user>      cache a user and list them as a recipient
	/group <name>    create a group
	/invite <name>   join a user and a group (reads the other half
	                 from the active conversation)
	/members         list the selected group's members
	/clear           delete the local copy of the conversation
	/logout          drop the session and return to the login form
	/help            show the command list
*/
package chat
