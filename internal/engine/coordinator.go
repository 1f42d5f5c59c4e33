// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/jeranaias/wave-tui/internal/model"
	"github.com/jeranaias/wave-tui/internal/remote"
	"github.com/jeranaias/wave-tui/internal/resolve"
	"github.com/jeranaias/wave-tui/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrLogin means the login sequence failed and nothing is left
	// half-open. The wrapped cause says which step broke.
	ErrLogin = errors.New("login failed")

	// ErrNoSelection means the operation needs an active conversation and
	// none is selected.
	ErrNoSelection = errors.New("no conversation selected")

	// ErrNotLoggedIn means the coordinator has no live session.
	ErrNotLoggedIn = errors.New("not logged in")
)

// =============================================================================
// DEPENDENCY SURFACES
// =============================================================================

// Conn is the slice of the remote session the coordinator drives.
type Conn interface {
	Subscribe(topic string, handler remote.Handler) error
	Send(ctx context.Context, topic string, payload any) error
	Request(ctx context.Context, topic string, payload any) (json.RawMessage, error)
	SetLostHandler(fn func(error))
	Close() error
}

// DialFunc establishes an authenticated session. Swappable for tests.
type DialFunc func(ctx context.Context, url string, creds remote.Credentials) (Conn, error)

func defaultDial(ctx context.Context, url string, creds remote.Credentials) (Conn, error) {
	return remote.Dial(ctx, url, creds)
}

// Notifier receives display-layer notifications. Calls arrive from the
// session's dispatch goroutines as well as from coordinator methods; the
// implementation handles its own thread hop.
type Notifier interface {
	// RecipientsChanged delivers the full, freshly sorted recipient list.
	RecipientsChanged(recipients []model.Recipient)

	// MessageAppended delivers one message that belongs to the active
	// conversation.
	MessageAppended(m model.Message)

	// ConversationLoaded replaces the visible transcript after a
	// selection change.
	ConversationLoaded(history []model.Message)

	// SessionLost reports that the transport failed underneath a live
	// session. The coordinator has already torn down.
	SessionLost(err error)
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Config carries the endpoints and the data directory.
type Config struct {
	// ServerURL is the websocket chat endpoint.
	ServerURL string

	// APIURL is the REST endpoint used for account creation.
	APIURL string

	// DataDir holds one message database per account.
	DataDir string
}

// Coordinator drives one login session end to end. All exported methods
// are safe for concurrent use.
type Coordinator struct {
	cfg      Config
	notifier Notifier
	dial     DialFunc

	mu       sync.Mutex
	conn     Conn
	store    *store.Store
	resolver *resolve.Resolver
	self     model.User
	sel      model.Selection
}

// New returns a logged-out Coordinator.
func New(cfg Config, n Notifier) *Coordinator {
	return &Coordinator{cfg: cfg, notifier: n, dial: defaultDial}
}

// WithDialFunc replaces the session dialer.
func (c *Coordinator) WithDialFunc(d DialFunc) *Coordinator {
	c.dial = d
	return c
}

// =============================================================================
// LOGIN AND LOGOUT
// =============================================================================

// Login authenticates, opens the per-account store, wires the inbound
// feeds, and announces readiness. An existing session is torn down
// first, so its handlers never touch the new login's state. Any failure
// along the way closes whatever was opened; the coordinator is never
// left half logged in.
func (c *Coordinator) Login(ctx context.Context, name, password string) error {
	c.Logout()

	conn, err := c.dial(ctx, c.cfg.ServerURL, remote.Credentials{Login: name, Passcode: password})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}

	st, err := store.Open(filepath.Join(c.cfg.DataDir, name+".db"))
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: open store: %v", ErrLogin, err)
	}

	abort := func(cause error, step string) error {
		c.mu.Lock()
		if c.conn == conn {
			c.conn, c.store, c.resolver = nil, nil, nil
			c.self = model.User{}
			c.sel = model.Selection{}
		}
		c.mu.Unlock()
		conn.Close()
		st.Close()
		return fmt.Errorf("%w: %s: %v", ErrLogin, step, cause)
	}

	// Who am I. Straight request, not the resolver: a stale cached id
	// under a reused name must not win over the server's answer.
	reply, err := conn.Request(ctx, remote.TopicUserByName(name), nil)
	if err != nil {
		return abort(err, "identify")
	}
	var self model.User
	if err := json.Unmarshal(reply, &self); err != nil {
		return abort(err, "identify")
	}
	if self.ID <= 0 {
		return abort(errors.New("server returned no account"), "identify")
	}
	if err := st.UpsertUser(ctx, self.ID, self.Name); err != nil {
		return abort(err, "identify")
	}

	c.mu.Lock()
	c.conn = conn
	c.store = st
	c.resolver = resolve.New(st, conn)
	c.self = self
	c.sel = model.Selection{}
	c.mu.Unlock()

	if err := conn.Subscribe(remote.TopicMessages, c.onMessageBatch); err != nil {
		return abort(err, "subscribe messages")
	}
	if err := conn.Subscribe(remote.TopicConfirmed, c.onEcho); err != nil {
		return abort(err, "subscribe echoes")
	}
	if err := conn.Subscribe(remote.TopicGroups, c.onGroupAdded); err != nil {
		return abort(err, "subscribe groups")
	}
	conn.SetLostHandler(c.onSessionLost)

	// Readiness gates delivery: the server holds queued messages until
	// the client says its feeds are wired.
	if err := conn.Send(ctx, remote.TopicReady, nil); err != nil {
		return abort(err, "announce ready")
	}

	if err := c.refreshRecipients(ctx); err != nil {
		log.Printf("engine: initial recipient refresh: %v", err)
	}
	log.Printf("engine: logged in as %s (id %d)", self.Name, self.ID)
	return nil
}

// CreateAccount registers a new account over REST, then logs it in.
func (c *Coordinator) CreateAccount(ctx context.Context, name, password string) error {
	if _, err := remote.Register(ctx, c.cfg.APIURL, name, password); err != nil {
		return fmt.Errorf("%w: register: %v", ErrLogin, err)
	}
	return c.Login(ctx, name, password)
}

// Logout tears the session down. Idempotent.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	conn, st := c.conn, c.store
	c.conn, c.store, c.resolver = nil, nil, nil
	c.self = model.User{}
	c.sel = model.Selection{}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if st != nil {
		st.Close()
	}
}

// Self returns the logged-in account, zero when logged out.
func (c *Coordinator) Self() model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Selection returns the active conversation selection.
func (c *Coordinator) Selection() model.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel
}

// onSessionLost fires from the read loop when the transport dies.
func (c *Coordinator) onSessionLost(err error) {
	log.Printf("engine: session lost: %v", err)
	c.Logout()
	c.notifier.SessionLost(err)
}

// live snapshots the session-scoped dependencies under the lock.
func (c *Coordinator) live() (Conn, *store.Store, *resolve.Resolver, model.User, model.Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, nil, nil, model.User{}, model.Selection{}, ErrNotLoggedIn
	}
	return c.conn, c.store, c.resolver, c.self, c.sel, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// SelectRecipient makes a conversation active and loads its history. The
// selection swap and the history read are one step, so a message arriving
// mid-switch lands either in the history or in a later append, not both.
func (c *Coordinator) SelectRecipient(ctx context.Context, r model.Recipient) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	st := c.store
	c.sel = r.Selection()
	sel := c.sel
	c.mu.Unlock()

	history, err := st.MessagesFor(ctx, sel.Destination, sel.Kind)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	c.notifier.ConversationLoaded(history)
	return nil
}

// Send composes a message for the active conversation and publishes it.
// The message carries the pending id; it is not persisted or shown until
// the server echoes it back with a real id.
func (c *Coordinator) Send(ctx context.Context, body string) error {
	conn, _, _, self, sel, err := c.live()
	if err != nil {
		return err
	}
	if !sel.Active() {
		return ErrNoSelection
	}

	m := model.NewMessage(self.ID, sel, body)
	if err := conn.Send(ctx, remote.TopicSend, m); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ClearConversation deletes the active conversation's local history and
// blanks the transcript. The server's copy is untouched.
func (c *Coordinator) ClearConversation(ctx context.Context) error {
	_, st, _, _, sel, err := c.live()
	if err != nil {
		return err
	}
	if !sel.Active() {
		return ErrNoSelection
	}
	if err := st.DeleteConversation(ctx, sel.Destination, sel.Kind); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	c.notifier.ConversationLoaded(nil)
	return nil
}

// =============================================================================
// RECIPIENTS, GROUPS, MEMBERSHIP
// =============================================================================

// AddRecipient resolves a user by name, caching them locally, and
// refreshes the recipient list. The conversation opens on selection, not
// here.
func (c *Coordinator) AddRecipient(ctx context.Context, name string) (model.User, error) {
	_, _, res, self, _, err := c.live()
	if err != nil {
		return model.User{}, err
	}
	u, _, err := res.UserByName(ctx, name)
	if err != nil {
		return model.User{}, err
	}
	if u.ID == self.ID {
		return model.User{}, errors.New("cannot add yourself as a recipient")
	}
	if err := c.refreshRecipients(ctx); err != nil {
		log.Printf("engine: recipient refresh: %v", err)
	}
	return u, nil
}

// CreateGroup asks the server for a new group and records it, with the
// creator as its first member.
func (c *Coordinator) CreateGroup(ctx context.Context, name string) (model.Group, error) {
	conn, st, _, self, _, err := c.live()
	if err != nil {
		return model.Group{}, err
	}

	reply, err := conn.Request(ctx, remote.TopicCreateGroup(name), nil)
	if err != nil {
		return model.Group{}, fmt.Errorf("create group: %w", err)
	}
	var g model.Group
	if err := json.Unmarshal(reply, &g); err != nil {
		return model.Group{}, fmt.Errorf("create group: decode: %v", err)
	}
	if g.ID <= 0 {
		return model.Group{}, errors.New("create group: server returned no group")
	}

	if err := st.UpsertGroup(ctx, g.ID, g.Name, g.CreatorID); err != nil {
		return model.Group{}, fmt.Errorf("create group: %w", err)
	}
	if err := st.AddMembership(ctx, g.ID, self.ID); err != nil {
		return model.Group{}, fmt.Errorf("create group: %w", err)
	}
	if err := c.refreshRecipients(ctx); err != nil {
		log.Printf("engine: recipient refresh: %v", err)
	}
	return g, nil
}

// AddMember joins a user and a group, reading the missing half from the
// active conversation. With a group selected, name is the user to invite;
// with a direct conversation selected, name is the group to pull the peer
// into.
func (c *Coordinator) AddMember(ctx context.Context, name string) error {
	conn, st, res, _, sel, err := c.live()
	if err != nil {
		return err
	}
	if !sel.Active() {
		return ErrNoSelection
	}

	var groupID, userID int64
	switch sel.Kind {
	case model.KindGroup:
		u, _, err := res.UserByName(ctx, name)
		if err != nil {
			return err
		}
		groupID, userID = sel.Destination, u.ID
	case model.KindDirect:
		g, _, err := res.GroupByName(ctx, name)
		if err != nil {
			return err
		}
		groupID, userID = g.ID, sel.Destination
	default:
		return ErrNoSelection
	}

	if err := conn.Send(ctx, remote.TopicAddMember(groupID, userID), nil); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if err := st.AddMembership(ctx, groupID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// LoadMembers fetches the member list of the selected group, caching the
// users and memberships it learns.
func (c *Coordinator) LoadMembers(ctx context.Context) ([]model.User, error) {
	conn, st, _, _, sel, err := c.live()
	if err != nil {
		return nil, err
	}
	if !sel.Active() || sel.Kind != model.KindGroup {
		return nil, ErrNoSelection
	}

	reply, err := conn.Request(ctx, remote.TopicGroupMembers(sel.Destination), nil)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	var members []model.User
	if err := json.Unmarshal(reply, &members); err != nil {
		return nil, fmt.Errorf("load members: decode: %v", err)
	}

	for _, u := range members {
		if err := st.UpsertUser(ctx, u.ID, u.Name); err != nil {
			return nil, fmt.Errorf("load members: %w", err)
		}
		if err := st.AddMembership(ctx, sel.Destination, u.ID); err != nil {
			return nil, fmt.Errorf("load members: %w", err)
		}
	}
	return members, nil
}

// refreshRecipients rebuilds the display list from the store. The logged
// in account never lists itself.
func (c *Coordinator) refreshRecipients(ctx context.Context) error {
	_, st, _, self, _, err := c.live()
	if err != nil {
		return err
	}

	users, err := st.Users(ctx)
	if err != nil {
		return err
	}
	peers := users[:0]
	for _, u := range users {
		if u.ID != self.ID {
			peers = append(peers, u)
		}
	}
	groups, err := st.Groups(ctx)
	if err != nil {
		return err
	}

	c.notifier.RecipientsChanged(model.RecipientList(peers, groups))
	return nil
}
