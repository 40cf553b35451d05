// config_test.go - Tests for the conference client configuration.
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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cfg, err := Load([]byte(""))
	require.NoError(err)
	require.Equal("localhost:7667", cfg.Server.Address)
	require.Equal("NOTICE", cfg.Logging.Level)
	require.Equal(10, cfg.Debug.RequestTimeout)
	require.Equal(30, cfg.Debug.HeartbeatInterval)
}

func TestConfigLoad(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	const body = `
[Server]
Address = "conf.example.com:7667"

[Logging]
Level = "debug"
File = "/tmp/anonconf.log"

[Debug]
RequestTimeout = 5
`
	cfg, err := Load([]byte(body))
	require.NoError(err)
	require.Equal("conf.example.com:7667", cfg.Server.Address)
	require.Equal("DEBUG", cfg.Logging.Level, "log level must be forced uppercase")
	require.Equal("/tmp/anonconf.log", cfg.Logging.File)
	require.Equal(5, cfg.Debug.RequestTimeout)
	require.Equal(30, cfg.Debug.HeartbeatInterval)
}

func TestConfigInvalidLogLevel(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := Load([]byte("[Logging]\nLevel = \"LOUD\"\n"))
	require.Error(err)
}

func TestConfigUndecodedKeys(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := Load([]byte("[Server]\nAdress = \"oops:7667\"\n"))
	require.Error(err, "misspelled keys must be rejected")
}
