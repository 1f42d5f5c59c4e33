// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remote maintains the authenticated duplex channel to the chat
// server.
//
// All traffic flows over a single websocket connection carrying
// topic-tagged JSON frames. Three interaction shapes are built on top of
// it:
//
//   - Subscribe: a persistent handler for one inbound topic. Frames on a
//     topic are dispatched serially in arrival order; different topics
//     dispatch concurrently.
//   - Send: fire-and-forget publish to a topic.
//   - Request: a one-shot round trip correlated by topic name. It
//     registers a waiter, publishes, delivers exactly the first reply,
//     and unregisters.
//
// The session never reconnects on its own and never caches credentials;
// connection loss is reported through the lost handler and recovery is a
// fresh Dial by the owner.
package remote
