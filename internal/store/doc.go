// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists the client's mirror of users, groups, and
// messages in a local SQLite database.
//
// The store is the cache of record for the display layer: everything the
// UI shows is read back from here, never from in-flight network state.
// Its single most important contract is idempotent upserts keyed by the
// server-assigned id, because the reconciliation engine may observe the
// same server-origin message more than once (broadcast plus self-echo).
//
// SQLite only supports one writer at a time; the store serializes its
// write path behind a mutex and limits the connection pool accordingly.
package store
