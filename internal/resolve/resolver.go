// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/wave-tui/internal/model"
	"github.com/jeranaias/wave-tui/internal/remote"
	"github.com/jeranaias/wave-tui/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrResolution means an entity could be found neither locally nor
// remotely. The wrapped cause says which leg failed.
var ErrResolution = errors.New("resolution failed")

// =============================================================================
// RESOLVER
// =============================================================================

// Requester performs one-shot request/response round trips. Satisfied by
// *remote.Session.
type Requester interface {
	Request(ctx context.Context, topic string, payload any) (json.RawMessage, error)
}

// Resolver resolves user and group references, store first, remote on a
// miss. Safe for concurrent use; the store serializes its own writes.
type Resolver struct {
	store  *store.Store
	remote Requester
}

// New returns a Resolver over the given store and session.
func New(st *store.Store, rq Requester) *Resolver {
	return &Resolver{store: st, remote: rq}
}

// =============================================================================
// USER LOOKUPS
// =============================================================================

// UserByID resolves a user id. fresh reports whether the user came over
// the wire rather than from the store.
func (r *Resolver) UserByID(ctx context.Context, id int64) (model.User, bool, error) {
	u, err := r.store.UserByID(ctx, id)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("%w: user %d: %v", ErrResolution, id, err)
	}

	u, err = r.fetchUser(ctx, remote.TopicUserByID(id))
	if err != nil {
		return model.User{}, false, fmt.Errorf("%w: user %d: %v", ErrResolution, id, err)
	}
	if err := r.store.UpsertUser(ctx, u.ID, u.Name); err != nil {
		return model.User{}, false, fmt.Errorf("%w: user %d: %v", ErrResolution, id, err)
	}
	return u, true, nil
}

// UserByName resolves a user name.
func (r *Resolver) UserByName(ctx context.Context, name string) (model.User, bool, error) {
	u, err := r.store.UserByName(ctx, name)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("%w: user %q: %v", ErrResolution, name, err)
	}

	u, err = r.fetchUser(ctx, remote.TopicUserByName(name))
	if err != nil {
		return model.User{}, false, fmt.Errorf("%w: user %q: %v", ErrResolution, name, err)
	}
	if err := r.store.UpsertUser(ctx, u.ID, u.Name); err != nil {
		return model.User{}, false, fmt.Errorf("%w: user %q: %v", ErrResolution, name, err)
	}
	return u, true, nil
}

func (r *Resolver) fetchUser(ctx context.Context, topic string) (model.User, error) {
	reply, err := r.remote.Request(ctx, topic, nil)
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	if err := json.Unmarshal(reply, &u); err != nil {
		return model.User{}, fmt.Errorf("decode user: %v", err)
	}
	if u.ID <= 0 {
		return model.User{}, errors.New("no such user")
	}
	return u, nil
}

// =============================================================================
// GROUP LOOKUPS
// =============================================================================

// GroupByID resolves a group id.
func (r *Resolver) GroupByID(ctx context.Context, id int64) (model.Group, bool, error) {
	g, err := r.store.GroupByID(ctx, id)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Group{}, false, fmt.Errorf("%w: group %d: %v", ErrResolution, id, err)
	}

	g, err = r.fetchGroup(ctx, remote.TopicGroupByID(id))
	if err != nil {
		return model.Group{}, false, fmt.Errorf("%w: group %d: %v", ErrResolution, id, err)
	}
	if err := r.store.UpsertGroup(ctx, g.ID, g.Name, g.CreatorID); err != nil {
		return model.Group{}, false, fmt.Errorf("%w: group %d: %v", ErrResolution, id, err)
	}
	return g, true, nil
}

// GroupByName resolves a group name. Names are not unique server-side;
// both legs return the first match.
func (r *Resolver) GroupByName(ctx context.Context, name string) (model.Group, bool, error) {
	g, err := r.store.GroupByName(ctx, name)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Group{}, false, fmt.Errorf("%w: group %q: %v", ErrResolution, name, err)
	}

	g, err = r.fetchGroup(ctx, remote.TopicGroupByName(name))
	if err != nil {
		return model.Group{}, false, fmt.Errorf("%w: group %q: %v", ErrResolution, name, err)
	}
	if err := r.store.UpsertGroup(ctx, g.ID, g.Name, g.CreatorID); err != nil {
		return model.Group{}, false, fmt.Errorf("%w: group %q: %v", ErrResolution, name, err)
	}
	return g, true, nil
}

func (r *Resolver) fetchGroup(ctx context.Context, topic string) (model.Group, error) {
	reply, err := r.remote.Request(ctx, topic, nil)
	if err != nil {
		return model.Group{}, err
	}
	var g model.Group
	if err := json.Unmarshal(reply, &g); err != nil {
		return model.Group{}, fmt.Errorf("decode group: %v", err)
	}
	if g.ID <= 0 {
		return model.Group{}, errors.New("no such group")
	}
	return g, nil
}
