// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const helpText = `/add <user>      add a user to the recipient list
/group <name>    create a group
/invite <name>   join a user and a group
/members         list the selected group's members
/clear           delete the local conversation history
/logout          return to the login form
/help            show this list`

// parseCommand splits a slash command line into its name and argument.
func parseCommand(line string) (cmd, arg string) {
	line = strings.TrimPrefix(line, "/")
	name, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// runCommand dispatches one slash command.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	cmd, arg := parseCommand(line)
	eng := m.engine

	switch cmd {
	case "help":
		m.setStatus("", false)
		return m, func() tea.Msg {
			return ActionResultMsg{Info: helpText}
		}

	case "add":
		if arg == "" {
			m.setStatus("usage: /add <user>", true)
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			u, err := eng.AddRecipient(ctx, arg)
			if err != nil {
				return ActionResultMsg{Err: err}
			}
			return ActionResultMsg{Info: "added " + u.Name}
		}

	case "group":
		if arg == "" {
			m.setStatus("usage: /group <name>", true)
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			g, err := eng.CreateGroup(ctx, arg)
			if err != nil {
				return ActionResultMsg{Err: err}
			}
			return ActionResultMsg{Info: "created group " + g.Name}
		}

	case "invite":
		if arg == "" {
			m.setStatus("usage: /invite <name>", true)
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			if err := eng.AddMember(ctx, arg); err != nil {
				return ActionResultMsg{Err: err}
			}
			return ActionResultMsg{Info: "invited " + arg}
		}

	case "members":
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			members, err := eng.LoadMembers(ctx)
			if err != nil {
				return ActionResultMsg{Err: err}
			}
			return MembersMsg{Members: members}
		}

	case "clear":
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			if err := eng.ClearConversation(ctx); err != nil {
				return ActionResultMsg{Err: err}
			}
			return ActionResultMsg{Info: "conversation cleared"}
		}

	case "logout":
		eng.Logout()
		m.resetToLogin()
		m.setStatus("logged out", false)
		return m, nil

	default:
		m.setStatus("unknown command: /"+cmd, true)
		return m, nil
	}
}
