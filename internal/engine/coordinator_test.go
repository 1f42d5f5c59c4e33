// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/wave-tui/internal/model"
	"github.com/jeranaias/wave-tui/internal/remote"
)

// =============================================================================
// FAKES
// =============================================================================

type sentFrame struct {
	topic   string
	payload any
}

// fakeConn is an in-memory stand-in for the remote session. Tests push
// inbound frames through deliver, which invokes the subscribed handler
// synchronously.
type fakeConn struct {
	mu      sync.Mutex
	replies map[string]string
	sends   []sentFrame
	subs    map[string]remote.Handler
	lost    func(error)
	closed  bool
}

func newFakeConn(replies map[string]string) *fakeConn {
	if replies == nil {
		replies = map[string]string{}
	}
	return &fakeConn{replies: replies, subs: map[string]remote.Handler{}}
}

func (f *fakeConn) Subscribe(topic string, handler remote.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.subs[topic]; dup {
		return fmt.Errorf("duplicate subscription %q", topic)
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakeConn) Send(_ context.Context, topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return remote.ErrNotConnected
	}
	f.sends = append(f.sends, sentFrame{topic: topic, payload: payload})
	return nil
}

func (f *fakeConn) Request(_ context.Context, topic string, _ any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply, ok := f.replies[topic]
	if !ok {
		return nil, fmt.Errorf("%w: no reply wired for %q", remote.ErrTimeout, topic)
	}
	return json.RawMessage(reply), nil
}

func (f *fakeConn) SetLostHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = fn
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) deliver(t *testing.T, topic string, payload any) {
	t.Helper()
	f.mu.Lock()
	handler := f.subs[topic]
	f.mu.Unlock()
	require.NotNil(t, handler, "no subscription for %q", topic)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	handler(data)
}

func (f *fakeConn) sentOn(topic string) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, s := range f.sends {
		if s.topic == topic {
			out = append(out, s)
		}
	}
	return out
}

// fakeNotifier records every display notification.
type fakeNotifier struct {
	mu         sync.Mutex
	recipients [][]model.Recipient
	appended   []model.Message
	loaded     [][]model.Message
	lost       []error
}

func (n *fakeNotifier) RecipientsChanged(r []model.Recipient) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, r)
}

func (n *fakeNotifier) MessageAppended(m model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.appended = append(n.appended, m)
}

func (n *fakeNotifier) ConversationLoaded(h []model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loaded = append(n.loaded, h)
}

func (n *fakeNotifier) SessionLost(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lost = append(n.lost, err)
}

func (n *fakeNotifier) appendedIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []int64
	for _, m := range n.appended {
		ids = append(ids, m.ID)
	}
	return ids
}

// =============================================================================
// HELPERS
// =============================================================================

const selfJSON = `{"id":1,"name":"alice"}`

func loggedIn(t *testing.T, replies map[string]string) (*Coordinator, *fakeConn, *fakeNotifier) {
	t.Helper()
	if replies == nil {
		replies = map[string]string{}
	}
	if _, ok := replies[remote.TopicUserByName("alice")]; !ok {
		replies[remote.TopicUserByName("alice")] = selfJSON
	}

	conn := newFakeConn(replies)
	notifier := &fakeNotifier{}
	c := New(Config{DataDir: t.TempDir()}, notifier).
		WithDialFunc(func(context.Context, string, remote.Credentials) (Conn, error) {
			return conn, nil
		})

	require.NoError(t, c.Login(context.Background(), "alice", "pw"))
	t.Cleanup(c.Logout)
	return c, conn, notifier
}

func directMsg(id, origin, dest int64, body string) model.Message {
	return model.Message{
		ID: id, Origin: origin, Destination: dest,
		Body: body, Timestamp: time.Now(), Kind: model.KindDirect,
	}
}

// selectPeer caches a peer user and makes the conversation active.
func selectPeer(t *testing.T, c *Coordinator, id int64, name string) {
	t.Helper()
	ctx := context.Background()
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	require.NoError(t, st.UpsertUser(ctx, id, name))
	require.NoError(t, c.SelectRecipient(ctx, model.UserRecipient(model.User{ID: id, Name: name})))
}

// =============================================================================
// LOGIN TESTS
// =============================================================================

func TestLoginWiresSession(t *testing.T) {
	c, conn, notifier := loggedIn(t, nil)

	assert.Equal(t, model.User{ID: 1, Name: "alice"}, c.Self())

	conn.mu.Lock()
	_, m := conn.subs[remote.TopicMessages]
	_, e := conn.subs[remote.TopicConfirmed]
	_, g := conn.subs[remote.TopicGroups]
	lostSet := conn.lost != nil
	conn.mu.Unlock()
	assert.True(t, m, "message feed not subscribed")
	assert.True(t, e, "echo feed not subscribed")
	assert.True(t, g, "group feed not subscribed")
	assert.True(t, lostSet, "lost handler not set")

	// Readiness goes out only after the feeds are wired.
	require.Len(t, conn.sentOn(remote.TopicReady), 1)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.NotEmpty(t, notifier.recipients, "no initial recipient list")
}

func TestLoginIdentifyFailureClosesEverything(t *testing.T) {
	conn := newFakeConn(nil) // no identify reply wired
	c := New(Config{DataDir: t.TempDir()}, &fakeNotifier{}).
		WithDialFunc(func(context.Context, string, remote.Credentials) (Conn, error) {
			return conn, nil
		})

	err := c.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, ErrLogin)

	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	assert.True(t, closed, "session left open after failed login")
	assert.Equal(t, model.User{}, c.Self())
}

func TestLoginReplacesExistingSession(t *testing.T) {
	replies := map[string]string{remote.TopicUserByName("alice"): selfJSON}
	first := newFakeConn(replies)
	second := newFakeConn(replies)

	conns := []*fakeConn{first, second}
	next := 0
	c := New(Config{DataDir: t.TempDir()}, &fakeNotifier{}).
		WithDialFunc(func(context.Context, string, remote.Credentials) (Conn, error) {
			conn := conns[next]
			next++
			return conn, nil
		})
	t.Cleanup(c.Logout)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "pw"))
	require.NoError(t, c.Login(ctx, "alice", "pw"))

	first.mu.Lock()
	firstClosed := first.closed
	first.mu.Unlock()
	assert.True(t, firstClosed, "first session leaked across the second login")

	second.mu.Lock()
	secondClosed := second.closed
	second.mu.Unlock()
	assert.False(t, secondClosed, "second session should be the live one")
	assert.Equal(t, model.User{ID: 1, Name: "alice"}, c.Self())
}

func TestLoginDialFailure(t *testing.T) {
	c := New(Config{DataDir: t.TempDir()}, &fakeNotifier{}).
		WithDialFunc(func(context.Context, string, remote.Credentials) (Conn, error) {
			return nil, remote.ErrAuth
		})

	err := c.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, ErrLogin)
}

// =============================================================================
// INBOUND PIPELINE TESTS
// =============================================================================

func TestInboundBatchConfirmsEveryMessage(t *testing.T) {
	c, conn, _ := loggedIn(t, map[string]string{
		remote.TopicUserByID(2): `{"id":2,"name":"bob"}`,
	})
	ctx := context.Background()

	conn.deliver(t, remote.TopicMessages, []model.Message{
		directMsg(10, 2, 1, "one"),
		directMsg(11, 2, 1, "two"),
		directMsg(12, 2, 1, "three"),
	})

	receipts := conn.sentOn(remote.TopicReceipt)
	require.Len(t, receipts, 3, "one confirmation per delivered message")
	var ids []int64
	for _, r := range receipts {
		confirmed, ok := r.payload.([]int64)
		require.True(t, ok, "receipt payload type %T", r.payload)
		require.Len(t, confirmed, 1)
		ids = append(ids, confirmed[0])
	}
	assert.Equal(t, []int64{10, 11, 12}, ids)

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	for _, id := range ids {
		_, err := st.MessageByID(ctx, id)
		assert.NoError(t, err, "message %d not persisted", id)
	}
}

func TestRedeliveredMessageConfirmedAgain(t *testing.T) {
	_, conn, _ := loggedIn(t, map[string]string{
		remote.TopicUserByID(2): `{"id":2,"name":"bob"}`,
	})

	m := directMsg(10, 2, 1, "hello")
	conn.deliver(t, remote.TopicMessages, []model.Message{m})
	conn.deliver(t, remote.TopicMessages, []model.Message{m})

	// The duplicate changes nothing locally but its occurrence still gets
	// confirmed, otherwise the server redelivers forever.
	assert.Len(t, conn.sentOn(remote.TopicReceipt), 2)
}

func TestPartialBatchResilience(t *testing.T) {
	c, conn, _ := loggedIn(t, map[string]string{
		remote.TopicUserByID(2): `{"id":2,"name":"bob"}`,
	})
	ctx := context.Background()

	bad := directMsg(model.PendingID, 2, 1, "never accepted")
	conn.deliver(t, remote.TopicMessages, []model.Message{
		directMsg(20, 2, 1, "first"),
		bad,
		directMsg(21, 2, 1, "last"),
	})

	// The unpersistable message is skipped and unconfirmed; its
	// batchmates go through untouched.
	receipts := conn.sentOn(remote.TopicReceipt)
	require.Len(t, receipts, 2)

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	if _, err := st.MessageByID(ctx, 20); err != nil {
		t.Errorf("message before the bad one lost: %v", err)
	}
	if _, err := st.MessageByID(ctx, 21); err != nil {
		t.Errorf("message after the bad one lost: %v", err)
	}
}

func TestSendThenEchoRoundTrip(t *testing.T) {
	c, conn, notifier := loggedIn(t, map[string]string{
		remote.TopicUserByID(1): selfJSON,
	})
	ctx := context.Background()
	selectPeer(t, c, 2, "bob")

	require.NoError(t, c.Send(ctx, "hi bob"))

	// The outbound frame carries the pending id and nothing was stored.
	outbound := conn.sentOn(remote.TopicSend)
	require.Len(t, outbound, 1)
	sent, ok := outbound[0].payload.(model.Message)
	require.True(t, ok)
	assert.Equal(t, model.PendingID, sent.ID)
	assert.Equal(t, int64(1), sent.Origin)
	assert.Equal(t, int64(2), sent.Destination)
	assert.Empty(t, notifier.appendedIDs(), "message shown before the server accepted it")

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	_, err := st.MessageByID(ctx, model.PendingID)
	assert.Error(t, err, "pending message persisted")

	// The echo carries the assigned id; only now does the message land.
	echo := sent
	echo.ID = 42
	conn.deliver(t, remote.TopicConfirmed, echo)

	got, err := st.MessageByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", got.Body)
	assert.Equal(t, []int64{42}, notifier.appendedIDs())

	receipts := conn.sentOn(remote.TopicReceipt)
	require.Len(t, receipts, 1)
	assert.Equal(t, []int64{42}, receipts[0].payload)
}

func TestConversationProjection(t *testing.T) {
	c, conn, notifier := loggedIn(t, map[string]string{
		remote.TopicUserByID(1): selfJSON,
		remote.TopicUserByID(2): `{"id":2,"name":"bob"}`,
		remote.TopicUserByID(3): `{"id":3,"name":"carol"}`,
		remote.TopicGroupByID(2): `{"id":2,"name":"ops","creator":3}`,
	})
	selectPeer(t, c, 2, "bob")

	group := directMsg(52, 3, 2, "group chatter")
	group.Kind = model.KindGroup

	conn.deliver(t, remote.TopicMessages, []model.Message{
		directMsg(50, 2, 1, "from bob"),       // selected peer, shown
		directMsg(51, 3, 1, "from carol"),     // other peer, hidden
		group,                                 // group id collides with bob's id, hidden
		directMsg(53, 1, 2, "own echo to bob"), // own side, shown
	})

	assert.Equal(t, []int64{50, 53}, notifier.appendedIDs())
	// Every delivered occurrence is confirmed regardless of projection.
	assert.Len(t, conn.sentOn(remote.TopicReceipt), 4)
}

func TestUnknownSenderEntersRecipientList(t *testing.T) {
	_, conn, notifier := loggedIn(t, map[string]string{
		remote.TopicUserByID(7): `{"id":7,"name":"trent"}`,
	})

	notifier.mu.Lock()
	before := len(notifier.recipients)
	notifier.mu.Unlock()

	conn.deliver(t, remote.TopicMessages, []model.Message{directMsg(60, 7, 1, "hello")})

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Greater(t, len(notifier.recipients), before, "no refresh after learning a sender")
	last := notifier.recipients[len(notifier.recipients)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "trent", last[0].DisplayName())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestSelectRecipientLoadsHistory(t *testing.T) {
	c, _, notifier := loggedIn(t, nil)
	ctx := context.Background()

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	require.NoError(t, st.UpsertUser(ctx, 2, "bob"))
	require.NoError(t, st.UpsertUser(ctx, 3, "carol"))
	require.NoError(t, st.UpsertMessage(ctx, directMsg(70, 2, 1, "ours")))
	require.NoError(t, st.UpsertMessage(ctx, directMsg(71, 3, 1, "theirs")))
	require.NoError(t, st.UpsertMessage(ctx, directMsg(72, 1, 2, "ours too")))

	require.NoError(t, c.SelectRecipient(ctx, model.UserRecipient(model.User{ID: 2, Name: "bob"})))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.NotEmpty(t, notifier.loaded)
	history := notifier.loaded[len(notifier.loaded)-1]
	require.Len(t, history, 2)
	assert.Equal(t, int64(70), history[0].ID)
	assert.Equal(t, int64(72), history[1].ID)
}

func TestSendRequiresSelection(t *testing.T) {
	c, _, _ := loggedIn(t, nil)
	err := c.Send(context.Background(), "into the void")
	require.ErrorIs(t, err, ErrNoSelection)
}

func TestClearConversation(t *testing.T) {
	c, _, notifier := loggedIn(t, nil)
	ctx := context.Background()
	selectPeer(t, c, 2, "bob")

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	require.NoError(t, st.UpsertMessage(ctx, directMsg(80, 2, 1, "gone soon")))

	require.NoError(t, c.ClearConversation(ctx))

	history, err := st.MessagesFor(ctx, 2, model.KindDirect)
	require.NoError(t, err)
	assert.Empty(t, history)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Nil(t, notifier.loaded[len(notifier.loaded)-1])
}

// =============================================================================
// GROUP AND MEMBERSHIP TESTS
// =============================================================================

func TestCreateGroup(t *testing.T) {
	c, _, _ := loggedIn(t, map[string]string{
		remote.TopicCreateGroup("ops"): `{"id":5,"name":"ops","creator":1}`,
	})
	ctx := context.Background()

	g, err := c.CreateGroup(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(5), g.ID)

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	stored, err := st.GroupByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "ops", stored.Name)

	members, err := st.Members(ctx, 5)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, int64(1), members[0].ID, "creator is the first member")
}

func TestAddMemberWithGroupSelected(t *testing.T) {
	c, conn, _ := loggedIn(t, map[string]string{
		remote.TopicUserByName("bob"): `{"id":2,"name":"bob"}`,
	})
	ctx := context.Background()

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	require.NoError(t, st.UpsertGroup(ctx, 5, "ops", 1))
	require.NoError(t, c.SelectRecipient(ctx, model.GroupRecipient(model.Group{ID: 5, Name: "ops"})))

	require.NoError(t, c.AddMember(ctx, "bob"))

	// Group from the selection, user from the argument.
	require.Len(t, conn.sentOn(remote.TopicAddMember(5, 2)), 1)

	members, err := st.Members(ctx, 5)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "bob", members[0].Name)
}

func TestAddMemberWithPeerSelected(t *testing.T) {
	c, conn, _ := loggedIn(t, map[string]string{
		remote.TopicGroupByName("ops"): `{"id":5,"name":"ops","creator":1}`,
	})
	ctx := context.Background()
	selectPeer(t, c, 2, "bob")

	require.NoError(t, c.AddMember(ctx, "ops"))

	// Group from the argument, user from the selection.
	require.Len(t, conn.sentOn(remote.TopicAddMember(5, 2)), 1)
}

func TestAddMemberRequiresSelection(t *testing.T) {
	c, _, _ := loggedIn(t, nil)
	err := c.AddMember(context.Background(), "bob")
	require.ErrorIs(t, err, ErrNoSelection)
}

func TestLoadMembers(t *testing.T) {
	c, _, _ := loggedIn(t, map[string]string{
		remote.TopicGroupMembers(5): `[{"id":2,"name":"bob"},{"id":3,"name":"carol"}]`,
	})
	ctx := context.Background()

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	require.NoError(t, st.UpsertGroup(ctx, 5, "ops", 1))
	require.NoError(t, c.SelectRecipient(ctx, model.GroupRecipient(model.Group{ID: 5, Name: "ops"})))

	members, err := c.LoadMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)

	cached, err := st.Members(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestGroupFeedAddsGroup(t *testing.T) {
	c, conn, notifier := loggedIn(t, nil)
	ctx := context.Background()

	conn.deliver(t, remote.TopicGroups, model.Group{ID: 9, Name: "late invite", CreatorID: 3})

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	g, err := st.GroupByID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "late invite", g.Name)

	members, err := st.Members(ctx, 9)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, int64(1), members[0].ID)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	last := notifier.recipients[len(notifier.recipients)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "late invite", last[0].DisplayName())
}

// =============================================================================
// SESSION LOSS AND LOGOUT
// =============================================================================

func TestSessionLossTearsDown(t *testing.T) {
	c, conn, notifier := loggedIn(t, nil)

	conn.mu.Lock()
	lost := conn.lost
	conn.mu.Unlock()
	require.NotNil(t, lost)
	lost(errors.New("connection reset"))

	notifier.mu.Lock()
	lostCount := len(notifier.lost)
	notifier.mu.Unlock()
	assert.Equal(t, 1, lostCount)
	assert.Equal(t, model.User{}, c.Self())

	err := c.Send(context.Background(), "after the fall")
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLogoutIsIdempotent(t *testing.T) {
	c, conn, _ := loggedIn(t, nil)

	c.Logout()
	c.Logout()

	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	assert.True(t, closed)
	assert.False(t, c.Selection().Active())
}
