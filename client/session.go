// session.go - Session lifecycle state machine.
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
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"

	"gopkg.in/op/go-logging.v1"
)

// State is the lifecycle state of the session.
type State int

const (
	// StateDisconnected means no live connection to the server exists.
	StateDisconnected State = iota

	// StateConnecting means a connection attempt is in progress.
	StateConnecting

	// StateIdle means the client is connected but not in a conference.
	StateIdle

	// StateAwaitingCreate means a create request is awaiting its response.
	StateAwaitingCreate

	// StateAwaitingJoin means a join exchange is awaiting its response.
	StateAwaitingJoin

	// StateInConference means the client is a conference participant.
	StateInConference
)

// String returns a human readable representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateIdle:
		return "Idle"
	case StateAwaitingCreate:
		return "AwaitingCreate"
	case StateAwaitingJoin:
		return "AwaitingJoin"
	case StateInConference:
		return "InConference"
	default:
		return "Unknown"
	}
}

// Session is a point-in-time snapshot of the client's relationship to the
// server.  ConferenceID and Pseudonym are only meaningful while State is
// StateInConference.
type Session struct {
	State        State
	ConferenceID uint64
	Pseudonym    string
}

// stateMachine is the authoritative owner of the session lifecycle fields.
// All transitions happen on the connection's dispatch loop (single-writer);
// the mutex exists so other goroutines can take consistent snapshots.  The
// onState callback is always fired after the lock is released, so it is
// free to read the session back.
type stateMachine struct {
	sync.RWMutex

	log *logging.Logger

	state        State
	conferenceID uint64
	pseudonym    string

	onState func(State)
}

func newStateMachine(log *logging.Logger, onState func(State)) *stateMachine {
	return &stateMachine{
		log:     log,
		state:   StateDisconnected,
		onState: onState,
	}
}

// Snapshot returns a consistent copy of the session.
func (m *stateMachine) Snapshot() Session {
	m.RLock()
	defer m.RUnlock()
	return Session{
		State:        m.state,
		ConferenceID: m.conferenceID,
		Pseudonym:    m.pseudonym,
	}
}

// State returns the current lifecycle state.
func (m *stateMachine) State() State {
	m.RLock()
	defer m.RUnlock()
	return m.state
}

// setState records a transition under the lock and reports whether the
// state actually changed.  The onState notification is deferred to notify,
// which the transition methods call once the lock is released.
func (m *stateMachine) setState(s State) bool {
	if m.state == s {
		return false
	}
	m.log.Debugf("State transition: %v -> %v", m.state, s)
	m.state = s
	return true
}

func (m *stateMachine) notify(s State) {
	if m.onState != nil {
		m.onState(s)
	}
}

// toConnecting records the start of a connection attempt.
func (m *stateMachine) toConnecting() {
	m.Lock()
	changed := m.setState(StateConnecting)
	m.Unlock()
	if changed {
		m.notify(StateConnecting)
	}
}

// toIdle records a completed handshake.  The conference scoped fields must
// already be clear at this point.
func (m *stateMachine) toIdle() {
	m.Lock()
	changed := m.setState(StateIdle)
	m.Unlock()
	if changed {
		m.notify(StateIdle)
	}
}

// beginRequest guards the Idle -> AwaitingCreate/AwaitingJoin transition.
func (m *stateMachine) beginRequest(next State) error {
	m.Lock()
	var err error
	changed := false
	switch m.state {
	case StateIdle:
		changed = m.setState(next)
	case StateInConference:
		err = ErrAlreadyInConference
	case StateAwaitingCreate, StateAwaitingJoin:
		err = ErrRequestPending
	default:
		err = ErrNotConnected
	}
	m.Unlock()
	if changed {
		m.notify(next)
	}
	return err
}

// completeRequest records a successful create or join response, entering
// the conference under the given pseudonym.
func (m *stateMachine) completeRequest(conferenceID uint64, pseudonym string) {
	m.Lock()
	m.conferenceID = conferenceID
	m.pseudonym = pseudonym
	changed := m.setState(StateInConference)
	m.Unlock()
	if changed {
		m.notify(StateInConference)
	}
}

// abortRequest reverts a failed or timed out request to Idle.
func (m *stateMachine) abortRequest() {
	m.Lock()
	changed := false
	if m.state == StateAwaitingCreate || m.state == StateAwaitingJoin {
		changed = m.setState(StateIdle)
	}
	m.Unlock()
	if changed {
		m.notify(StateIdle)
	}
}

// leave clears the conference scoped fields and returns the conference the
// client was in.  Leaving is effective immediately, the server notice is
// fire and forget.
func (m *stateMachine) leave() (uint64, error) {
	m.Lock()
	if m.state != StateInConference {
		m.Unlock()
		return 0, ErrNotInConference
	}
	id := m.conferenceID
	m.conferenceID = 0
	m.pseudonym = ""
	changed := m.setState(StateIdle)
	m.Unlock()
	if changed {
		m.notify(StateIdle)
	}
	return id, nil
}

// onDisconnect records a transport failure from any state.  Conference
// membership never survives a disconnect.
func (m *stateMachine) onDisconnect() {
	m.Lock()
	m.conferenceID = 0
	m.pseudonym = ""
	changed := m.setState(StateDisconnected)
	m.Unlock()
	if changed {
		m.notify(StateDisconnected)
	}
}

// newPseudonym derives a fresh conference scoped pseudonym.  It is random
// on purpose: pseudonyms must be unlinkable across conferences and across
// rejoins of the same conference.
func newPseudonym() (string, error) {
	var raw [8]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}
