// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file defines all Bubble Tea message types used by the chat
// interface. Messages are organized into the following categories:
//   - Engine: notifications bridged from the reconciliation engine
//   - Login: login and registration results
//   - Actions: results of slash commands and sends

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wave-tui/internal/config"
	"github.com/jeranaias/wave-tui/internal/model"
)

// =============================================================================
// ENGINE MESSAGES
// =============================================================================

// RecipientsMsg delivers the freshly sorted recipient list.
type RecipientsMsg struct {
	Recipients []model.Recipient
}

// AppendMsg delivers one message belonging to the active conversation.
type AppendMsg struct {
	Message model.Message
}

// HistoryMsg replaces the transcript after a selection change.
type HistoryMsg struct {
	Messages []model.Message
}

// SessionLostMsg signals that the connection died underneath us.
type SessionLostMsg struct {
	Err error
}

// =============================================================================
// LOGIN MESSAGES
// =============================================================================

// LoginResultMsg reports a finished login or registration attempt.
type LoginResultMsg struct {
	Self model.User
	Err  error
}

// =============================================================================
// ACTION MESSAGES
// =============================================================================

// ActionResultMsg reports a finished slash command or send.
type ActionResultMsg struct {
	Info string
	Err  error
}

// MembersMsg delivers the selected group's member list.
type MembersMsg struct {
	Members []model.User
}

// ConfigReloadedMsg delivers a fresh configuration after an on-disk edit.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge adapts engine notifications into Bubble Tea messages. All
// methods are safe to call from any goroutine once SetProgram has run.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
}

// NewBridge returns an unwired Bridge. Notifications arriving before
// SetProgram are dropped.
func NewBridge() *Bridge {
	return &Bridge{}
}

// SetProgram wires the Bridge to a running program.
func (b *Bridge) SetProgram(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// RecipientsChanged implements the engine notifier.
func (b *Bridge) RecipientsChanged(recipients []model.Recipient) {
	b.send(RecipientsMsg{Recipients: recipients})
}

// MessageAppended implements the engine notifier.
func (b *Bridge) MessageAppended(m model.Message) {
	b.send(AppendMsg{Message: m})
}

// ConversationLoaded implements the engine notifier.
func (b *Bridge) ConversationLoaded(history []model.Message) {
	b.send(HistoryMsg{Messages: history})
}

// SessionLost implements the engine notifier.
func (b *Bridge) SessionLost(err error) {
	b.send(SessionLostMsg{Err: err})
}

// ConfigReloaded forwards a configuration reload into the program.
func (b *Bridge) ConfigReloaded(cfg *config.Config) {
	b.send(ConfigReloadedMsg{Config: cfg})
}
