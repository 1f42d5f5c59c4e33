// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for wave.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/jeranaias/wave-tui/internal/config"
	"github.com/jeranaias/wave-tui/internal/remote"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdRegister
	CmdConfig
	CmdVersion
	CmdHelp
)

const usageText = `wave - a terminal chat client

Usage:
  wave                      Start the chat interface (default)
  wave register [name]      Create an account, then start the interface
  wave config               Print the effective configuration
  wave version              Show version information
  wave help                 Show this help

Configuration lives in ~/.wave/config.toml. The WAVE_SERVER_URL,
WAVE_API_URL, and WAVE_DATA_DIR environment variables override it.`

// Parse reads os.Args and returns the command plus its remaining
// arguments.
func Parse() (Command, []string) {
	if len(os.Args) < 2 {
		return CmdTUI, nil
	}
	switch strings.ToLower(os.Args[1]) {
	case "register":
		return CmdRegister, os.Args[2:]
	case "config":
		return CmdConfig, os.Args[2:]
	case "version", "-v", "--version":
		return CmdVersion, nil
	case "help", "-h", "--help":
		return CmdHelp, nil
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usageText)
		os.Exit(2)
		return CmdHelp, nil
	}
}

// HandleHelp prints usage.
func HandleHelp() {
	fmt.Println(usageText)
}

// HandleVersion prints version information.
func HandleVersion() {
	fmt.Printf("wave %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// HandleConfig prints the effective configuration.
func HandleConfig(cfg *config.Config) {
	fmt.Printf("server_url           = %s\n", cfg.ServerURL)
	fmt.Printf("api_url              = %s\n", cfg.APIURL)
	fmt.Printf("data_dir             = %s\n", cfg.DataDir)
	fmt.Printf("request_timeout_secs = %d\n", cfg.RequestTimeoutSecs)
}

// HandleRegister creates an account interactively and returns the
// credentials for the follow-up login.
func HandleRegister(cfg *config.Config, args []string) (name, password string, err error) {
	reader := bufio.NewReader(os.Stdin)

	if len(args) > 0 {
		name = args[0]
	} else {
		fmt.Print("account name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("read name: %w", err)
		}
		name = strings.TrimSpace(line)
	}
	if name == "" {
		return "", "", fmt.Errorf("account name is required")
	}

	password, err = readPassword("password: ")
	if err != nil {
		return "", "", err
	}
	confirm, err := readPassword("confirm password: ")
	if err != nil {
		return "", "", err
	}
	if password != confirm {
		return "", "", fmt.Errorf("passwords do not match")
	}
	if password == "" {
		return "", "", fmt.Errorf("password is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	u, err := remote.Register(ctx, cfg.APIURL, name, password)
	if err != nil {
		return "", "", err
	}

	fmt.Printf("account %q created (id %d)\n", u.Name, u.ID)
	return name, password, nil
}

// readPassword reads a line without echoing it. Falls back to plain
// reading when stdin is not a terminal, for piped use.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
