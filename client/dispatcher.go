// dispatcher.go - Chat message sequencing and deduplication.
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
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/L20L021902/anonymous-conference-client/core/wire/commands"
)

// Message is a chat message delivered to the presentation layer.
type Message struct {
	// ConferenceID is the conference the message belongs to.
	ConferenceID uint64

	// Sender is the conference scoped pseudonym of the sender.
	Sender string

	// Sequence is the sender assigned sequence number.
	Sequence uint64

	// Payload is the message text.
	Payload []byte

	// Timestamp is the local arrival time.
	Timestamp time.Time
}

// dispatcher assigns outbound sequence numbers and deduplicates inbound
// chat messages.  Sequence numbers are monotonically increasing per
// (conference, sender) pair; the transport already guarantees in-order
// delivery, so no reordering buffer is kept.
type dispatcher struct {
	sync.Mutex

	log       *logging.Logger
	onMessage func(*Message)

	nextSeq  uint64
	lastSeen map[string]uint64
}

func newDispatcher(log *logging.Logger, onMessage func(*Message)) *dispatcher {
	return &dispatcher{
		log:       log,
		onMessage: onMessage,
		lastSeen:  make(map[string]uint64),
	}
}

// reset discards all sequencing state.  Called whenever conference
// membership changes: sequence numbers are conference scoped.
func (d *dispatcher) reset() {
	d.Lock()
	defer d.Unlock()
	d.nextSeq = 0
	d.lastSeen = make(map[string]uint64)
}

// nextSequence assigns the next outbound sequence number for the client's
// own pseudonym.  The assignment is recorded as delivered so that the
// server's broadcast echo of an own message is dropped as a duplicate.
func (d *dispatcher) nextSequence(ownPseudonym string) uint64 {
	d.Lock()
	defer d.Unlock()
	d.nextSeq++
	d.lastSeen[ownPseudonym] = d.nextSeq
	return d.nextSeq
}

// dispatch delivers an inbound chat message to the presentation layer,
// unless its (sender, sequence) pair has already been delivered.  Delivery
// is synchronous so that arrival order is preserved.  Returns true if the
// message was delivered.
func (d *dispatcher) dispatch(cmd *commands.ConferenceMessage) bool {
	d.Lock()
	if cmd.Sequence <= d.lastSeen[cmd.Sender] {
		d.Unlock()
		d.log.Debugf("Dropping duplicate message %d from %s", cmd.Sequence, cmd.Sender)
		return false
	}
	d.lastSeen[cmd.Sender] = cmd.Sequence
	d.Unlock()

	if d.onMessage != nil {
		d.onMessage(&Message{
			ConferenceID: cmd.ConferenceID,
			Sender:       cmd.Sender,
			Sequence:     cmd.Sequence,
			Payload:      cmd.Payload,
			Timestamp:    time.Now(),
		})
	}
	return true
}
