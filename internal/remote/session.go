// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultHandshakeTimeout bounds the websocket dial plus the
	// credential exchange.
	DefaultHandshakeTimeout = 15 * time.Second

	// DefaultRequestTimeout bounds a Request when the caller's context
	// carries no earlier deadline. The original protocol had none and
	// could block forever on a silent server.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultSendRate throttles outbound frames. Generous for a human
	// typing, tight enough to keep a runaway loop from flooding the
	// server.
	DefaultSendRate = rate.Limit(50)

	// DefaultSendBurst is the outbound limiter's burst size.
	DefaultSendBurst = 100

	// subscriptionBuffer is the per-topic inbound queue. When a handler
	// falls this far behind, the read loop blocks, applying
	// backpressure instead of dropping or reordering frames.
	subscriptionBuffer = 256
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAuth means the server rejected the supplied credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork wraps transport failures during connect or transfer.
	ErrNetwork = errors.New("network error")

	// ErrNotConnected is returned when Send, Subscribe, or Request is
	// called outside the Connected state. Local check, no round trip.
	ErrNotConnected = errors.New("session not connected")

	// ErrClosed means the session transitioned to Disconnected while an
	// operation was in flight.
	ErrClosed = errors.New("session closed")

	// ErrTimeout means a request got no response within its deadline.
	ErrTimeout = errors.New("request timed out")
)

// =============================================================================
// FRAME AND STATE TYPES
// =============================================================================

// Frame is the wire unit: a topic tag plus a JSON payload.
type Frame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Credentials authenticate one Dial. They are used for the handshake and
// not retained.
type Credentials struct {
	Login    string `json:"login"`
	Passcode string `json:"passcode"`
}

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler consumes inbound frames for one subscribed topic.
type Handler func(payload json.RawMessage)

// =============================================================================
// DIALER
// =============================================================================

// Dialer configures and establishes sessions.
type Dialer struct {
	handshakeTimeout time.Duration
	requestTimeout   time.Duration
	sendRate         rate.Limit
	sendBurst        int
}

// NewDialer returns a Dialer with default timeouts and rate limits.
func NewDialer() *Dialer {
	return &Dialer{
		handshakeTimeout: DefaultHandshakeTimeout,
		requestTimeout:   DefaultRequestTimeout,
		sendRate:         DefaultSendRate,
		sendBurst:        DefaultSendBurst,
	}
}

// WithHandshakeTimeout sets the dial-plus-auth deadline.
func (d *Dialer) WithHandshakeTimeout(t time.Duration) *Dialer {
	d.handshakeTimeout = t
	return d
}

// WithRequestTimeout sets the default per-request deadline.
func (d *Dialer) WithRequestTimeout(t time.Duration) *Dialer {
	d.requestTimeout = t
	return d
}

// WithSendRate sets the outbound frame throttle.
func (d *Dialer) WithSendRate(r rate.Limit, burst int) *Dialer {
	d.sendRate = r
	d.sendBurst = burst
	return d
}

// Dial connects with the default dialer.
func Dial(ctx context.Context, url string, creds Credentials) (*Session, error) {
	return NewDialer().Dial(ctx, url, creds)
}

// Dial establishes the websocket connection and authenticates. On success
// the returned session is Connected and its read loop is running. Failures
// are ErrAuth (bad credentials) or ErrNetwork (everything else); either
// way no session is retained.
func (d *Dialer) Dial(ctx context.Context, url string, creds Credentials) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.handshakeTimeout)
	defer cancel()

	wsDialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := wsDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNetwork, url, err)
	}

	s := &Session{
		id:             uuid.NewString(),
		conn:           conn,
		limiter:        rate.NewLimiter(d.sendRate, d.sendBurst),
		requestTimeout: d.requestTimeout,
		subs:           make(map[string]chan json.RawMessage),
		pending:        make(map[string]chan json.RawMessage),
		done:           make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	if err := s.handshake(creds, d.handshakeTimeout); err != nil {
		conn.Close()
		s.state.Store(int32(StateDisconnected))
		return nil, err
	}

	s.state.Store(int32(StateConnected))
	log.Printf("session %s: connected to %s as %s", s.id, url, creds.Login)
	go s.readLoop()
	return s, nil
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one authenticated duplex channel. All methods are safe for
// concurrent use.
type Session struct {
	id   string
	conn *websocket.Conn

	state atomic.Int32

	// writeMu serializes frame writes; limiter throttles them.
	writeMu sync.Mutex
	limiter *rate.Limiter

	// mu guards subs, pending, and lost.
	mu      sync.Mutex
	subs    map[string]chan json.RawMessage
	pending map[string]chan json.RawMessage
	lost    func(error)

	requestTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
}

// handshake sends the connect frame and waits for the server verdict.
func (s *Session) handshake(creds Credentials, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if err := s.writeFrame(topicConnect, creds); err != nil {
		return err
	}

	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	var f Frame
	if err := s.conn.ReadJSON(&f); err != nil {
		return fmt.Errorf("%w: awaiting connect ack: %v", ErrNetwork, err)
	}

	// Clear the handshake deadlines; the read loop runs unbounded.
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if err := s.conn.SetWriteDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	switch f.Topic {
	case topicConnected:
		return nil
	case topicError:
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(f.Payload, &body)
		if body.Message == "" {
			body.Message = "credentials rejected"
		}
		return fmt.Errorf("%w: %s", ErrAuth, body.Message)
	default:
		return fmt.Errorf("%w: unexpected handshake frame %q", ErrNetwork, f.Topic)
	}
}

// ID returns the session instance id used in log lines.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// SetLostHandler registers the connection-loss notification. The handler
// fires once, from the read loop, when the transport fails underneath a
// Connected session; it does not fire on an explicit Close.
func (s *Session) SetLostHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = fn
}

// =============================================================================
// SUBSCRIBE
// =============================================================================

// Subscribe registers a persistent handler for an inbound topic. Frames
// for the topic are delivered serially, in arrival order, on a dedicated
// goroutine, for the session's lifetime. Subscribing twice to one topic is
// an error.
func (s *Session) Subscribe(topic string, handler Handler) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}

	s.mu.Lock()
	// Re-check under the lock: a teardown racing the state check above
	// must not register a channel the read loop will never close.
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrNotConnected
	default:
	}
	if _, dup := s.subs[topic]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: duplicate subscription to %q", ErrNetwork, topic)
	}
	ch := make(chan json.RawMessage, subscriptionBuffer)
	s.subs[topic] = ch
	s.mu.Unlock()

	go func() {
		for payload := range ch {
			handler(payload)
		}
	}()
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// Send publishes a fire-and-forget frame. It blocks until the transport
// accepts the frame (or ctx expires under the rate limiter), not until
// the server processes it.
func (s *Session) Send(ctx context.Context, topic string, payload any) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return s.writeFrame(topic, payload)
}

// writeFrame marshals and writes one frame under the write lock. A write
// failure tears the session down.
func (s *Session) writeFrame(topic string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: marshal %q payload: %v", ErrNetwork, topic, err)
		}
		raw = data
	}

	s.writeMu.Lock()
	err := s.conn.WriteJSON(Frame{Topic: topic, Payload: raw})
	s.writeMu.Unlock()
	if err != nil {
		s.teardown()
		return fmt.Errorf("%w: write %q: %v", ErrNetwork, topic, err)
	}
	return nil
}

// =============================================================================
// REQUEST
// =============================================================================

// Request performs a one-shot round trip on the given topic: it registers
// a correlation waiter, publishes the request frame, and returns the first
// reply frame's payload. It fails rather than hangs: on ctx expiry, on the
// session's default request timeout, and when the session closes while
// waiting. Only one request per topic may be in flight.
func (s *Session) Request(ctx context.Context, topic string, payload any) (json.RawMessage, error) {
	if s.State() != StateConnected {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	if _, dup := s.pending[topic]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: request already in flight for %q", ErrNetwork, topic)
	}
	ch := make(chan json.RawMessage, 1)
	s.pending[topic] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, topic)
		s.mu.Unlock()
	}()

	if err := s.Send(ctx, topic, payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.requestTimeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %q after %v", ErrTimeout, topic, s.requestTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %q: %v", ErrTimeout, topic, ctx.Err())
	case <-s.done:
		return nil, fmt.Errorf("%w: %q", ErrClosed, topic)
	}
}

// =============================================================================
// READ LOOP
// =============================================================================

// readLoop is the sole reader and the sole writer/closer of subscription
// channels, which keeps per-topic delivery serial and ordered.
func (s *Session) readLoop() {
	defer func() {
		s.mu.Lock()
		for _, ch := range s.subs {
			close(ch)
		}
		s.subs = make(map[string]chan json.RawMessage)
		lost := s.lost
		s.mu.Unlock()

		if !s.closing.Load() && lost != nil {
			lost(fmt.Errorf("%w: connection lost", ErrNetwork))
		}
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				log.Printf("session %s: read failed: %v", s.id, err)
			}
			s.teardown()
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("session %s: dropping malformed frame: %v", s.id, err)
			continue
		}

		s.dispatch(f)
	}
}

// dispatch routes one inbound frame: a pending request waiter wins over a
// subscription so one-shot replies never leak into persistent handlers.
func (s *Session) dispatch(f Frame) {
	s.mu.Lock()
	if ch, ok := s.pending[f.Topic]; ok {
		delete(s.pending, f.Topic)
		s.mu.Unlock()
		ch <- f.Payload
		return
	}
	ch, ok := s.subs[f.Topic]
	s.mu.Unlock()

	if !ok {
		log.Printf("session %s: frame for unsubscribed topic %q", s.id, f.Topic)
		return
	}
	// May block when the handler is far behind; backpressure beats
	// dropping frames.
	ch <- f.Payload
}

// =============================================================================
// CLOSE
// =============================================================================

// Close shuts the session down. Idempotent and safe to call from any
// goroutine; outstanding requests fail with ErrClosed.
func (s *Session) Close() error {
	s.closing.Store(true)
	s.teardown()
	return nil
}

// teardown transitions to Disconnected exactly once: closes the done
// channel (failing outstanding requests) and the underlying connection
// (stopping the read loop).
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateDisconnected))
		close(s.done)
		s.conn.Close()
		log.Printf("session %s: disconnected", s.id)
	})
}
