// session_test.go - Tests for the session lifecycle state machine.
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
)

func newTestStateMachine(t *testing.T) *stateMachine {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return newStateMachine(backend.GetLogger("test/session"), nil)
}

func TestStateMachineGuards(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	m := newTestStateMachine(t)

	// Nothing is permitted while disconnected.
	require.Equal(StateDisconnected, m.State())
	require.Equal(ErrNotConnected, m.beginRequest(StateAwaitingCreate))
	_, err := m.leave()
	require.Equal(ErrNotInConference, err)

	m.toConnecting()
	require.Equal(ErrNotConnected, m.beginRequest(StateAwaitingJoin))

	// Idle accepts exactly one request at a time.
	m.toIdle()
	require.NoError(m.beginRequest(StateAwaitingCreate))
	require.Equal(StateAwaitingCreate, m.State())
	require.Equal(ErrRequestPending, m.beginRequest(StateAwaitingCreate))
	require.Equal(ErrRequestPending, m.beginRequest(StateAwaitingJoin))

	// A completed request enters the conference.
	m.completeRequest(8845684583, "cafebabe00112233")
	sess := m.Snapshot()
	require.Equal(StateInConference, sess.State)
	require.Equal(uint64(8845684583), sess.ConferenceID)
	require.Equal("cafebabe00112233", sess.Pseudonym)

	// No nested conferences.
	require.Equal(ErrAlreadyInConference, m.beginRequest(StateAwaitingCreate))
	require.Equal(ErrAlreadyInConference, m.beginRequest(StateAwaitingJoin))
}

func TestStateMachineAbortRequest(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	m := newTestStateMachine(t)

	m.toIdle()
	require.NoError(m.beginRequest(StateAwaitingJoin))
	m.abortRequest()
	require.Equal(StateIdle, m.State())

	// abortRequest is a no-op outside of the awaiting states.
	m.abortRequest()
	require.Equal(StateIdle, m.State())
}

func TestStateMachineLeave(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	m := newTestStateMachine(t)

	m.toIdle()
	require.NoError(m.beginRequest(StateAwaitingJoin))
	m.completeRequest(42, "deadbeef00000000")

	id, err := m.leave()
	require.NoError(err)
	require.Equal(uint64(42), id)

	sess := m.Snapshot()
	require.Equal(StateIdle, sess.State)
	require.Zero(sess.ConferenceID)
	require.Empty(sess.Pseudonym)

	_, err = m.leave()
	require.Equal(ErrNotInConference, err)
}

func TestStateMachineDisconnectClearsConference(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	m := newTestStateMachine(t)

	m.toIdle()
	require.NoError(m.beginRequest(StateAwaitingCreate))
	m.completeRequest(7, "0011223344556677")

	m.onDisconnect()
	sess := m.Snapshot()
	require.Equal(StateDisconnected, sess.State)
	require.Zero(sess.ConferenceID)
	require.Empty(sess.Pseudonym)
}

func TestStateMachineNotifications(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	backend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	var states []State
	m := newStateMachine(backend.GetLogger("test/session"), func(s State) {
		states = append(states, s)
	})

	m.toConnecting()
	m.toIdle()
	require.NoError(m.beginRequest(StateAwaitingCreate))
	m.completeRequest(1, "aa")
	m.onDisconnect()

	require.Equal([]State{
		StateConnecting,
		StateIdle,
		StateAwaitingCreate,
		StateInConference,
		StateDisconnected,
	}, states)
}

func TestStateMachineCallbackReadsBack(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	backend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	// The callback reads the session back through the public accessors;
	// it must observe the new state without blocking.
	var m *stateMachine
	var observed []State
	m = newStateMachine(backend.GetLogger("test/session"), func(s State) {
		require.Equal(s, m.State())
		observed = append(observed, m.Snapshot().State)
	})

	m.toConnecting()
	m.toIdle()
	require.NoError(m.beginRequest(StateAwaitingJoin))
	m.completeRequest(7, "aa")
	m.onDisconnect()

	require.Equal([]State{
		StateConnecting,
		StateIdle,
		StateAwaitingJoin,
		StateInConference,
		StateDisconnected,
	}, observed)
}

func TestNewPseudonym(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p1, err := newPseudonym()
	require.NoError(err)
	require.Len(p1, 16)

	p2, err := newPseudonym()
	require.NoError(err)
	require.NotEqual(p1, p2, "pseudonyms must be unlinkable")
}
