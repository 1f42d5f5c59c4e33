// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolve turns entity references into entities.
//
// A Resolver sits between the local store and the remote session. Every
// lookup tries the store first; only a local miss costs a network round
// trip, and a fetched entity is persisted before it is returned, so each
// unknown reference is paid for at most once.
package resolve
