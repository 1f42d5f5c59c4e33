// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wave-tui/internal/model"
	"github.com/jeranaias/wave-tui/internal/util"
)

// actionTimeout bounds every engine call dispatched from the interface.
const actionTimeout = 30 * time.Second

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.engine.Logout()
			return m, tea.Quit
		}
		if m.screen == screenLogin {
			return m.updateLogin(msg)
		}
		return m.updateChat(msg)

	case LoginResultMsg:
		return m.onLoginResult(msg)

	case RecipientsMsg:
		m.recipients = msg.Recipients
		m.rememberNames(msg.Recipients)
		m.reanchorSelection()
		return m, nil

	case AppendMsg:
		m.transcript = append(m.transcript, msg.Message)
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case HistoryMsg:
		m.transcript = msg.Messages
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case MembersMsg:
		names := make([]string, 0, len(msg.Members))
		for _, u := range msg.Members {
			names = append(names, u.Name)
		}
		m.setStatus(util.TruncateRunes("members: "+strings.Join(names, ", "), 200), false)
		return m, nil

	case ActionResultMsg:
		if msg.Err != nil {
			m.setStatus(msg.Err.Error(), true)
		} else if msg.Info != "" {
			m.setStatus(msg.Info, false)
		}
		return m, nil

	case SessionLostMsg:
		m.resetToLogin()
		m.setStatus("connection lost: "+msg.Err.Error(), true)
		return m, nil

	case ConfigReloadedMsg:
		m.cfg = msg.Config
		m.layout()
		m.setStatus("configuration reloaded", false)
		return m, nil
	}

	return m.updateComponents(msg)
}

// updateComponents forwards everything else to the focused widgets.
func (m Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch m.screen {
	case screenLogin:
		m.nameInput, cmd = m.nameInput.Update(msg)
		cmds = append(cmds, cmd)
		m.passInput, cmd = m.passInput.Update(msg)
		cmds = append(cmds, cmd)
	case screenChat:
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		// Keystrokes belong to the focused input; the viewport keeps its
		// scroll keys only when the input is not taking text.
		if _, isKey := msg.(tea.KeyMsg); !isKey || m.focus != focusInput {
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

// =============================================================================
// LOGIN SCREEN
// =============================================================================

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.loginFocus = 1 - m.loginFocus
		if m.loginFocus == 0 {
			m.nameInput.Focus()
			m.passInput.Blur()
		} else {
			m.nameInput.Blur()
			m.passInput.Focus()
		}
		return m, textinput.Blink

	case tea.KeyCtrlR:
		m.registering = !m.registering
		return m, nil

	case tea.KeyEnter:
		name := strings.TrimSpace(m.nameInput.Value())
		pass := m.passInput.Value()
		if name == "" || pass == "" {
			m.setStatus("name and password are required", true)
			return m, nil
		}
		m.busy = true
		m.setStatus("connecting...", false)
		return m, m.loginCmd(name, pass, m.registering)
	}

	return m.updateComponents(msg)
}

// loginCmd runs login or registration off the update loop.
func (m Model) loginCmd(name, pass string, register bool) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		var err error
		if register {
			err = eng.CreateAccount(ctx, name, pass)
		} else {
			err = eng.Login(ctx, name, pass)
		}
		return LoginResultMsg{Self: eng.Self(), Err: err}
	}
}

func (m Model) onLoginResult(msg LoginResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.Err != nil {
		m.setStatus(msg.Err.Error(), true)
		return m, nil
	}

	m.self = msg.Self
	m.names[m.self.ID] = m.self.Name
	m.screen = screenChat
	m.focus = focusInput
	m.passInput.SetValue("")
	m.input.Focus()
	m.setStatus("logged in as "+m.self.Name, false)
	m.layout()
	return m, textinput.Blink
}

// resetToLogin drops back to the login form after a logout or a lost
// session.
func (m *Model) resetToLogin() {
	m.screen = screenLogin
	m.busy = false
	m.recipients = nil
	m.cursor = 0
	m.selected = -1
	m.transcript = nil
	m.self = model.User{}
	m.names = make(map[int64]string)
	m.input.SetValue("")
	m.viewport.SetContent("")
	m.loginFocus = 0
	m.nameInput.Focus()
	m.passInput.Blur()
}

// =============================================================================
// CHAT SCREEN
// =============================================================================

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		if m.focus == focusInput {
			m.focus = focusRecipients
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, textinput.Blink

	case tea.KeyEnter:
		if m.focus == focusRecipients {
			return m.selectUnderCursor()
		}
		return m.submitInput()
	}

	if m.focus == focusRecipients {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.recipients)-1 {
				m.cursor++
			}
			return m, nil
		}
		return m, nil
	}

	return m.updateComponents(msg)
}

// selectUnderCursor makes the highlighted recipient the active
// conversation.
func (m Model) selectUnderCursor() (tea.Model, tea.Cmd) {
	if m.cursor < 0 || m.cursor >= len(m.recipients) {
		return m, nil
	}
	m.selected = m.cursor
	m.focus = focusInput
	m.input.Focus()

	r := m.recipients[m.cursor]
	eng := m.engine
	return m, tea.Batch(textinput.Blink, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := eng.SelectRecipient(ctx, r); err != nil {
			return ActionResultMsg{Err: err}
		}
		return ActionResultMsg{}
	})
}

// reanchorSelection re-finds the selected recipient after a list refresh
// so insertion above it does not silently move the conversation.
func (m *Model) reanchorSelection() {
	if m.selected < 0 {
		if m.cursor >= len(m.recipients) {
			m.cursor = max(0, len(m.recipients)-1)
		}
		return
	}
	sel := m.engine.Selection()
	m.selected = -1
	for i, r := range m.recipients {
		if r.Destination() == sel.Destination && r.Kind == sel.Kind {
			m.selected = i
			break
		}
	}
	if m.cursor >= len(m.recipients) {
		m.cursor = max(0, len(m.recipients)-1)
	}
}

// submitInput dispatches the input line: a slash command or a message.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	m.input.SetValue("")

	if strings.HasPrefix(line, "/") {
		return m.runCommand(line)
	}

	eng := m.engine
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := eng.Send(ctx, line); err != nil {
			return ActionResultMsg{Err: err}
		}
		return ActionResultMsg{}
	}
}

// =============================================================================
// STATUS
// =============================================================================

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}
