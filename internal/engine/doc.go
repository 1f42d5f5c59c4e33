// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine reconciles the three halves of a chat client: the local
// store, the remote session, and the display layer.
//
// The Coordinator owns the session lifecycle and the inbound feeds. Every
// message that arrives is persisted first, its sender resolved, projected
// onto the active conversation when it belongs there, and then confirmed
// back to the server. Outbound messages take the opposite path: they go to
// the server immediately and are only persisted when the server echoes
// them back with an assigned id, so the store never holds a message the
// server has not accepted.
package engine
