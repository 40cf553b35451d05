// cliui.go - Line oriented conference front end.
// Copyright (C) 2024  The anonymous-conference authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package cliui implements the line oriented command line front end.  It
// is a thin presentation layer: every command maps directly onto one
// client operation.
package cliui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/L20L021902/anonymous-conference-client/client"
)

// UI is a line oriented conference front end.
type UI struct {
	sync.Mutex

	in  io.Reader
	out io.Writer
}

// New creates a UI reading commands from in and printing to out.
func New(in io.Reader, out io.Writer) *UI {
	return &UI{
		in:  in,
		out: out,
	}
}

// OnConnStatus is the client connection status callback.
func (ui *UI) OnConnStatus(err error) {
	if err == nil {
		ui.printSystem("Connected to the server.")
	} else {
		ui.printSystem(fmt.Sprintf("Disconnected: %v", err))
	}
}

// OnMessage is the client message delivery callback.
func (ui *UI) OnMessage(msg *client.Message) {
	ui.printSomeone(string(msg.Payload))
}

// Run processes input lines until /exit or end of input.
func (ui *UI) Run(c *client.Client) error {
	scanner := bufio.NewScanner(ui.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if ui.processCommand(c, line[1:]) {
				return nil
			}
		} else {
			ui.sendMessage(c, line)
		}
	}
	return scanner.Err()
}

// processCommand handles one /command line, returning true on /exit.
func (ui *UI) processCommand(c *client.Client, input string) bool {
	words := strings.Fields(input)
	if len(words) == 0 {
		ui.printSystem("Unknown command: /")
		return false
	}
	switch words[0] {
	case "create":
		if len(words) != 2 {
			ui.printSystem("Usage: /create <conference password>")
			return false
		}
		id, err := c.CreateConference(context.Background(), words[1])
		if err != nil {
			ui.printSystem(fmt.Sprintf("Failed to create conference: %v", err))
			return false
		}
		ui.printSystem(fmt.Sprintf("Conference created: %d", id))
	case "join":
		if len(words) != 3 {
			ui.printSystem("Usage: /join <conference id> <conference password>")
			return false
		}
		id, err := strconv.ParseUint(words[1], 10, 64)
		if err != nil {
			ui.printSystem("Invalid conference id")
			return false
		}
		pseudonym, numPeers, err := c.JoinConference(context.Background(), id, words[2])
		if err != nil {
			ui.printSystem(fmt.Sprintf("Failed to join conference %d: %v", id, err))
			return false
		}
		ui.printSystem(fmt.Sprintf("Joined conference %d as %s (%d participants)", id, pseudonym, numPeers))
	case "leave":
		if err := c.LeaveConference(); err != nil {
			ui.printSystem("You are not in a conference.")
			return false
		}
		ui.printSystem("Left the conference.")
	case "exit":
		return true
	default:
		ui.printSystem(fmt.Sprintf("Unknown command: /%s", words[0]))
	}
	return false
}

func (ui *UI) sendMessage(c *client.Client, text string) {
	if err := c.SendMessage(text); err != nil {
		ui.printSystem(fmt.Sprintf("Failed to send message: %v", err))
		return
	}
	ui.printYou(text)
}

func (ui *UI) printSystem(message string) {
	ui.printLine("[SYSTEM]: " + message)
}

func (ui *UI) printSomeone(message string) {
	ui.printLine("[SOMEONE]: " + message)
}

func (ui *UI) printYou(message string) {
	ui.printLine("[YOU]: " + message)
}

func (ui *UI) printLine(line string) {
	ui.Lock()
	defer ui.Unlock()
	fmt.Fprintln(ui.out, line)
}
