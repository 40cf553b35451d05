// main.go - Conference client entry point.
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

package main

import (
	"context"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/L20L021902/anonymous-conference-client/client"
	"github.com/L20L021902/anonymous-conference-client/cliui"
	"github.com/L20L021902/anonymous-conference-client/config"
	"github.com/L20L021902/anonymous-conference-client/core/log"
)

type flags struct {
	configFile    string
	serverAddress string
	logFile       string
	logLevel      string
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "anonconf",
		Short: "Anonymous group conferencing client",
		Long: `A client for the anonymous conference rendezvous service.

Conferences are password protected group chats identified by a numeric id;
participants appear under a conference scoped pseudonym that is unlinkable
across conferences.

Commands once running:
  /create <password>        create a new conference
  /join <id> <password>     join an existing conference
  /leave                    leave the current conference
  /exit                     quit
  anything else             send as a message to the active conference`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&f)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "f", "", "configuration file")
	cmd.Flags().StringVarP(&f.serverAddress, "server-address", "a", "", "rendezvous server address (overrides the config file)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "log file, stdout if omitted (overrides the config file)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "logging level (DEBUG, INFO, NOTICE, WARNING, ERROR)")

	return cmd
}

func run(f *flags) error {
	var cfg *config.Config
	var err error
	if f.configFile != "" {
		cfg, err = config.LoadFile(f.configFile)
	} else {
		cfg = new(config.Config)
		err = cfg.FixupAndValidate()
	}
	if err != nil {
		return err
	}
	if f.serverAddress != "" {
		cfg.Server.Address = f.serverAddress
	}
	if f.logFile != "" {
		cfg.Logging.File = f.logFile
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}

	ui := cliui.New(os.Stdin, os.Stdout)
	c, err := client.New(&client.ClientConfig{
		ServerAddress:     cfg.Server.Address,
		LogBackend:        backend,
		OnConnFn:          ui.OnConnStatus,
		OnMessageFn:       ui.OnMessage,
		RequestTimeout:    time.Duration(cfg.Debug.RequestTimeout) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Debug.HeartbeatInterval) * time.Second,
	})
	if err != nil {
		return err
	}
	defer c.Shutdown()

	return ui.Run(c)
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}
