// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wave-tui/internal/config"
	"github.com/jeranaias/wave-tui/internal/engine"
	"github.com/jeranaias/wave-tui/internal/model"
	"github.com/jeranaias/wave-tui/internal/util"
)

// =============================================================================
// SCREEN STATE
// =============================================================================

// screen identifies which view is active.
type screen int

const (
	screenLogin screen = iota
	screenChat
)

// focusArea identifies which chat pane has keyboard focus.
type focusArea int

const (
	focusRecipients focusArea = iota
	focusInput
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the whole interface.
type Model struct {
	cfg    *config.Config
	engine *engine.Coordinator

	screen screen
	width  int
	height int

	// Login form
	nameInput   textinput.Model
	passInput   textinput.Model
	loginFocus  int
	registering bool
	busy        bool

	// Chat view
	viewport   viewport.Model
	input      textinput.Model
	focus      focusArea
	recipients []model.Recipient
	cursor     int
	selected   int
	transcript []model.Message
	self       model.User

	// names maps known entity ids to display names for transcripts.
	names map[int64]string

	status    string
	statusErr bool
}

// New creates the interface model.
func New(cfg *config.Config, eng *engine.Coordinator) Model {
	name := textinput.New()
	name.Prompt = "  name > "
	name.Placeholder = "account name"
	name.CharLimit = 64
	name.Focus()

	pass := textinput.New()
	pass.Prompt = "  pass > "
	pass.Placeholder = "password"
	pass.CharLimit = 128
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '*'

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type a message or /help..."
	input.CharLimit = 4096

	vp := viewport.New(80, 20)
	vp.SetContent("")

	return Model{
		cfg:       cfg,
		engine:    eng,
		screen:    screenLogin,
		nameInput: name,
		passInput: pass,
		viewport:  vp,
		input:     input,
		focus:     focusInput,
		selected:  -1,
		names:     make(map[int64]string),
	}
}

// WithLogin pre-fills the login form, for the register flow where the
// credentials were just entered on the command line.
func (m Model) WithLogin(name, password string) Model {
	m.nameInput.SetValue(name)
	m.passInput.SetValue(password)
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// rememberNames records display names for transcript rendering.
func (m *Model) rememberNames(recipients []model.Recipient) {
	for _, r := range recipients {
		m.names[r.Destination()] = r.DisplayName()
	}
	if m.self.ID != 0 {
		m.names[m.self.ID] = m.self.Name
	}
}

// displayName resolves an entity id for rendering. Unknown ids render as
// the bare id; the next recipient refresh usually fills the name in.
func (m Model) displayName(id int64) string {
	if name, ok := m.names[id]; ok {
		return name
	}
	return "#" + util.Int64ToString(id)
}

// selectedRecipient returns the active recipient, ok=false when none.
func (m Model) selectedRecipient() (model.Recipient, bool) {
	if m.selected < 0 || m.selected >= len(m.recipients) {
		return model.Recipient{}, false
	}
	return m.recipients[m.selected], true
}
