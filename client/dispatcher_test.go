// dispatcher_test.go - Tests for message sequencing and deduplication.
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

package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/L20L021902/anonymous-conference-client/core/log"
	"github.com/L20L021902/anonymous-conference-client/core/wire/commands"
)

func newTestDispatcher(t *testing.T, onMessage func(*Message)) *dispatcher {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return newDispatcher(backend.GetLogger("test/dispatch"), onMessage)
}

func msg(sender string, seq uint64, payload string) *commands.ConferenceMessage {
	return &commands.ConferenceMessage{
		ConferenceID: 1,
		Sender:       sender,
		Sequence:     seq,
		Payload:      []byte(payload),
	}
}

func TestDispatcherDeduplicates(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var delivered []*Message
	d := newTestDispatcher(t, func(m *Message) {
		delivered = append(delivered, m)
	})

	require.True(d.dispatch(msg("peer", 1, "one")))
	require.False(d.dispatch(msg("peer", 1, "one")), "replayed sequence must be dropped")
	require.False(d.dispatch(msg("peer", 0, "zero")), "stale sequence must be dropped")
	require.True(d.dispatch(msg("peer", 2, "two")))

	require.Len(delivered, 2)
	require.Equal("one", string(delivered[0].Payload))
	require.Equal("two", string(delivered[1].Payload))
}

func TestDispatcherPerSenderSequences(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var delivered []*Message
	d := newTestDispatcher(t, func(m *Message) {
		delivered = append(delivered, m)
	})

	// Sequence numbers are scoped to the sender, so the same number from
	// different pseudonyms is not a duplicate.
	require.True(d.dispatch(msg("alice", 1, "a")))
	require.True(d.dispatch(msg("bob", 1, "b")))
	require.False(d.dispatch(msg("alice", 1, "a")))

	require.Len(delivered, 2)
	require.Equal("alice", delivered[0].Sender)
	require.Equal("bob", delivered[1].Sender)
}

func TestDispatcherDropsOwnEcho(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var delivered []*Message
	d := newTestDispatcher(t, func(m *Message) {
		delivered = append(delivered, m)
	})

	// Outbound assignments are recorded as delivered, so the server's
	// broadcast echo of an own message never reaches the user.
	require.Equal(uint64(1), d.nextSequence("me"))
	require.Equal(uint64(2), d.nextSequence("me"))
	require.False(d.dispatch(msg("me", 1, "hello")))
	require.False(d.dispatch(msg("me", 2, "world")))
	require.Empty(delivered)
}

func TestDispatcherReset(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var delivered []*Message
	d := newTestDispatcher(t, func(m *Message) {
		delivered = append(delivered, m)
	})

	require.Equal(uint64(1), d.nextSequence("me"))
	require.True(d.dispatch(msg("peer", 5, "old")))

	// Membership changed: sequence state starts over.
	d.reset()
	require.Equal(uint64(1), d.nextSequence("me"))
	require.True(d.dispatch(msg("peer", 1, "new")))
	require.Len(delivered, 2)
}

func TestDispatcherOrderPreserved(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var delivered []uint64
	d := newTestDispatcher(t, func(m *Message) {
		delivered = append(delivered, m.Sequence)
	})

	for seq := uint64(1); seq <= 5; seq++ {
		require.True(d.dispatch(msg("peer", seq, "x")))
	}
	require.Equal([]uint64{1, 2, 3, 4, 5}, delivered)
}
