// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/wave-tui/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wave.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// UPSERT TESTS
// =============================================================================

func TestUpsertMessageIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := model.Message{
		ID: 7, Origin: 1, Destination: 2, Body: "hi",
		Timestamp: time.Now(), Kind: model.KindDirect,
	}

	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Second application of the same id must be a no-op, not an error.
	msg.Body = "changed"
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	msgs, err := s.MessagesFor(ctx, 2, model.KindDirect)
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("stored rows = %d, want 1", len(msgs))
	}
	if msgs[0].Body != "hi" {
		t.Errorf("stored messages must be immutable, got body %q", msgs[0].Body)
	}
}

func TestUpsertMessageRejectsPending(t *testing.T) {
	s := openTestStore(t)

	err := s.UpsertMessage(context.Background(), model.Message{ID: model.PendingID, Body: "draft"})
	if !errors.Is(err, ErrStore) {
		t.Errorf("pending message upsert: got %v, want ErrStore", err)
	}
}

func TestUpsertUserRefreshesName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, 5, "old"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertUser(ctx, 5, "new"); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	u, err := s.UserByID(ctx, 5)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if u.Name != "new" {
		t.Errorf("Name = %q, want %q", u.Name, "new")
	}
}

func TestAddMembershipIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, 1, "ana"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertGroup(ctx, 9, "lobby", 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := s.AddMembership(ctx, 9, 1); err != nil {
			t.Fatalf("AddMembership #%d: %v", i+1, err)
		}
	}

	members, err := s.Members(ctx, 9)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0].Name != "ana" {
		t.Errorf("members = %+v, want [ana]", members)
	}
}

// =============================================================================
// LOOKUP TESTS
// =============================================================================

func TestLookupsReturnNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UserByID(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByID miss: got %v, want ErrNotFound", err)
	}
	if _, err := s.UserByName(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByName miss: got %v, want ErrNotFound", err)
	}
	if _, err := s.GroupByID(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("GroupByID miss: got %v, want ErrNotFound", err)
	}
	if _, err := s.GroupByName(ctx, "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GroupByName miss: got %v, want ErrNotFound", err)
	}
	if _, err := s.MessageByID(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("MessageByID miss: got %v, want ErrNotFound", err)
	}
}

func TestGroupByNameFirstMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Names are not unique; the resolver takes the first match by id.
	if err := s.UpsertGroup(ctx, 12, "dup", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertGroup(ctx, 3, "dup", 2); err != nil {
		t.Fatal(err)
	}

	g, err := s.GroupByName(ctx, "dup")
	if err != nil {
		t.Fatalf("GroupByName: %v", err)
	}
	if g.ID != 3 {
		t.Errorf("first match id = %d, want 3", g.ID)
	}
}

// =============================================================================
// CONVERSATION QUERIES
// =============================================================================

func TestMessagesForOrderingAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	seed := []model.Message{
		{ID: 3, Origin: 1, Destination: 2, Body: "b", Timestamp: base.Add(time.Second), Kind: model.KindDirect},
		{ID: 1, Origin: 2, Destination: 1, Body: "a", Timestamp: base, Kind: model.KindDirect},
		{ID: 2, Origin: 1, Destination: 2, Body: "tie", Timestamp: base, Kind: model.KindDirect},
		{ID: 4, Origin: 1, Destination: 9, Body: "other peer", Timestamp: base, Kind: model.KindDirect},
		{ID: 5, Origin: 1, Destination: 2, Body: "group 2", Timestamp: base, Kind: model.KindGroup},
	}
	for _, m := range seed {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("seed %d: %v", m.ID, err)
		}
	}

	msgs, err := s.MessagesFor(ctx, 2, model.KindDirect)
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}

	var ids []int64
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	// Ordered by timestamp, ties by id; excludes other peers and kinds.
	want := []int64{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}

	group, err := s.MessagesFor(ctx, 2, model.KindGroup)
	if err != nil {
		t.Fatalf("MessagesFor group: %v", err)
	}
	if len(group) != 1 || group[0].ID != 5 {
		t.Errorf("group conversation = %+v, want just id 5", group)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, m := range []model.Message{
		{ID: 1, Origin: 1, Destination: 2, Body: "x", Timestamp: now, Kind: model.KindDirect},
		{ID: 2, Origin: 2, Destination: 1, Body: "y", Timestamp: now, Kind: model.KindDirect},
		{ID: 3, Origin: 1, Destination: 3, Body: "keep", Timestamp: now, Kind: model.KindDirect},
	} {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteConversation(ctx, 2, model.KindDirect); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	if msgs, _ := s.MessagesFor(ctx, 2, model.KindDirect); len(msgs) != 0 {
		t.Errorf("conversation not cleared: %+v", msgs)
	}
	if msgs, _ := s.MessagesFor(ctx, 3, model.KindDirect); len(msgs) != 1 {
		t.Errorf("unrelated conversation touched: %+v", msgs)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestCloseIdempotent(t *testing.T) {
	s := openTestStore(t)

	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := s.UpsertUser(context.Background(), 1, "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: got %v, want ErrClosed", err)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	in := model.Message{ID: 11, Origin: 1, Destination: 2, Body: "pi", Timestamp: ts, Kind: model.KindDirect}
	if err := s.UpsertMessage(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, err := s.MessageByID(ctx, 11)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, ts)
	}
}
