// wave - a terminal chat client.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wave-tui/internal/cli"
	"github.com/jeranaias/wave-tui/internal/config"
	"github.com/jeranaias/wave-tui/internal/engine"
	"github.com/jeranaias/wave-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdHelp:
		cli.HandleHelp()
	case cli.CmdVersion:
		cli.HandleVersion()
	case cli.CmdConfig:
		cfg := mustLoadConfig()
		cli.HandleConfig(cfg)
	case cli.CmdRegister:
		cfg := mustLoadConfig()
		name, password, err := cli.HandleRegister(cfg, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		runTUI(cfg, name, password)
	case cli.CmdTUI:
		runTUI(mustLoadConfig(), "", "")
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runTUI wires the engine to the interface and runs the program. A
// non-empty name pre-fills the login form, so a freshly registered user
// does not retype the credentials.
func runTUI(cfg *config.Config, name, password string) {
	closeLog := setupLogging(cfg)
	defer closeLog()

	bridge := chat.NewBridge()
	eng := engine.New(engine.Config{
		ServerURL: cfg.ServerURL,
		APIURL:    cfg.APIURL,
		DataDir:   cfg.DataDir,
	}, bridge)
	defer eng.Logout()

	m := chat.New(cfg, eng)
	if name != "" {
		m = m.WithLogin(name, password)
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	bridge.SetProgram(p)

	if watcher := watchConfig(bridge); watcher != nil {
		defer watcher.Close()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging sends the standard logger to a file so log lines do not
// tear the interface.
func setupLogging(cfg *config.Config) func() {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	path := filepath.Join(cfg.DataDir, "wave.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	return func() { f.Close() }
}

// watchConfig reloads UI settings when the config file changes on disk.
func watchConfig(bridge *chat.Bridge) *config.Watcher {
	path, err := config.ConfigPath()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	w, err := config.NewWatcher(path, bridge.ConfigReloaded)
	if err != nil {
		log.Printf("config watch unavailable: %v", err)
		return nil
	}
	if err := w.Watch(); err != nil {
		log.Printf("config watch unavailable: %v", err)
		w.Close()
		return nil
	}
	return w
}
