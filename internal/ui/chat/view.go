// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/wave-tui/internal/model"
)

// =============================================================================
// LAYOUT
// =============================================================================

// layout recomputes widget sizes from the window size.
func (m *Model) layout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}

	paneWidth := m.cfg.UI.RecipientPaneWidth
	if paneWidth > m.width/2 {
		paneWidth = m.width / 2
	}

	// Borders cost two columns per pane, input and status cost rows.
	transcriptWidth := m.width - paneWidth - 4
	transcriptHeight := m.height - 6
	if transcriptWidth < 20 {
		transcriptWidth = 20
	}
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}

	m.viewport.Width = transcriptWidth
	m.viewport.Height = transcriptHeight
	m.input.Width = m.width - 6
	m.refreshTranscript()
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the active screen.
func (m Model) View() string {
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	return m.viewChat()
}

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("wave") + "\n\n")
	b.WriteString(m.nameInput.View() + "\n")
	b.WriteString(m.passInput.View() + "\n\n")

	action := "log in"
	if m.registering {
		action = "create account"
	}
	b.WriteString(helpStyle.Render("  enter: "+action+"  ctrl+r: toggle register  ctrl+c: quit") + "\n")

	if m.busy {
		b.WriteString("\n" + statusStyle.Render("  connecting...") + "\n")
	} else if m.status != "" {
		b.WriteString("\n" + m.renderStatus() + "\n")
	}
	return b.String()
}

func (m Model) viewChat() string {
	left := m.renderRecipients()
	right := m.viewport.View()

	leftPane := paneStyle
	rightPane := paneStyle
	if m.focus == focusRecipients {
		leftPane = focusedPaneStyle
	} else {
		rightPane = focusedPaneStyle
	}

	panes := lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftPane.Width(m.paneWidth()).Height(m.viewport.Height).Render(left),
		rightPane.Width(m.viewport.Width).Height(m.viewport.Height).Render(right),
	)

	var b strings.Builder
	b.WriteString(panes + "\n")
	b.WriteString(m.input.View() + "\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) paneWidth() int {
	w := m.cfg.UI.RecipientPaneWidth
	if m.width > 0 && w > m.width/2 {
		w = m.width / 2
	}
	return w
}

// =============================================================================
// RECIPIENT LIST
// =============================================================================

func (m Model) renderRecipients() string {
	if len(m.recipients) == 0 {
		return helpStyle.Render("no recipients\n\n/add <user>\n/group <name>")
	}

	width := m.paneWidth() - 2
	var b strings.Builder
	for i, r := range m.recipients {
		name := r.DisplayName()
		if r.Kind == model.KindGroup {
			name = groupBadgeStyle.Render("⊕ ") + name
		} else {
			name = "  " + name
		}
		name = runewidth.Truncate(name, width, "…")

		switch {
		case i == m.cursor && m.focus == focusRecipients:
			b.WriteString(cursorRecipientStyle.Render(name))
		case i == m.selected:
			b.WriteString(selectedRecipientStyle.Render(name))
		default:
			b.WriteString(recipientStyle.Render(name))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshTranscript re-renders the conversation into the viewport.
func (m *Model) refreshTranscript() {
	if len(m.transcript) == 0 {
		if _, ok := m.selectedRecipient(); ok {
			m.viewport.SetContent(helpStyle.Render("no messages yet"))
		} else {
			m.viewport.SetContent(helpStyle.Render("select a recipient (tab, then enter)"))
		}
		return
	}

	lines := make([]string, 0, len(m.transcript))
	for _, msg := range m.transcript {
		lines = append(lines, m.renderMessage(msg))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

// renderMessage formats one transcript line.
func (m Model) renderMessage(msg model.Message) string {
	nameStyle := peerNameStyle
	if msg.Origin == m.self.ID {
		nameStyle = ownNameStyle
	}

	var b strings.Builder
	if m.cfg.UI.ShowTimestamps {
		b.WriteString(timestampStyle.Render(msg.Timestamp.Format(m.cfg.UI.TimeFormat)) + " ")
	}
	b.WriteString(nameStyle.Render(m.displayName(msg.Origin)))
	b.WriteString(": ")
	b.WriteString(msg.Body)
	return b.String()
}

// =============================================================================
// STATUS LINE
// =============================================================================

func (m Model) renderStatus() string {
	if m.status == "" {
		return helpStyle.Render("tab: switch pane  enter: send/select  ctrl+c: quit")
	}
	if m.statusErr {
		return errorStyle.Render(m.status)
	}
	return statusStyle.Render(m.status)
}
