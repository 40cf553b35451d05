// conference.go - Conference operations.
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
	"context"

	"github.com/L20L021902/anonymous-conference-client/core/crypto/passhash"
	"github.com/L20L021902/anonymous-conference-client/core/wire/commands"
)

// CreateConference creates a new conference protected by the given
// password and enters it.  The call suspends until the server responds or
// the request deadline elapses; it returns the identifier assigned to the
// new conference.
func (c *Client) CreateConference(ctx context.Context, password string) (uint64, error) {
	// The salt is generated client side, so the hash is computed up
	// front and the password never leaves this stack frame.
	salt, err := passhash.NewSalt()
	if err != nil {
		return 0, err
	}
	op := &opCtx{
		kind:         opCreate,
		passwordHash: passhash.Hash([]byte(password), &salt),
		joinSalt:     salt,
		replyCh:      make(chan interface{}, 1),
	}
	if err := c.conn.enqueueOp(ctx, op); err != nil {
		return 0, err
	}
	select {
	case raw := <-op.replyCh:
		switch v := raw.(type) {
		case error:
			return 0, v
		case createResult:
			return v.conferenceID, nil
		default:
			panic("BUG: invalid create response")
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// JoinConference joins an existing conference.  The join is a chained
// exchange: the conference's join salt is fetched first, the password hash
// is derived against it, and membership is then requested.  On success the
// freshly assigned conference scoped pseudonym is returned, along with the
// number of participants already in the conference.
func (c *Client) JoinConference(ctx context.Context, conferenceID uint64, password string) (string, uint32, error) {
	op := &opCtx{
		kind:         opJoin,
		conferenceID: conferenceID,
		password:     password,
		replyCh:      make(chan interface{}, 1),
	}
	if err := c.conn.enqueueOp(ctx, op); err != nil {
		return "", 0, err
	}
	select {
	case raw := <-op.replyCh:
		switch v := raw.(type) {
		case error:
			return "", 0, v
		case joinResult:
			return v.pseudonym, v.numPeers, nil
		default:
			panic("BUG: invalid join response")
		}
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

// LeaveConference leaves the active conference.  The effect is local and
// immediate; the notice to the server is fire and forget.
func (c *Client) LeaveConference() error {
	if c.sm.State() != StateInConference {
		return ErrNotInConference
	}
	op := &opCtx{
		kind:    opLeave,
		replyCh: make(chan interface{}, 1),
	}
	if err := c.conn.enqueueOp(context.Background(), op); err != nil {
		return err
	}
	raw := <-op.replyCh
	if err, ok := raw.(error); ok {
		return err
	}
	return nil
}

// SendMessage queues a chat message to the active conference.  The next
// sequence number for the client's own pseudonym is assigned at enqueue
// time; the call returns once the frame has been handed to the transport.
func (c *Client) SendMessage(text string) error {
	sess := c.sm.Snapshot()
	if sess.State != StateInConference {
		return ErrNotInConference
	}
	cmd := &commands.SendMessage{
		ConferenceID: sess.ConferenceID,
		Sender:       sess.Pseudonym,
		Sequence:     c.disp.nextSequence(sess.Pseudonym),
		Payload:      []byte(text),
	}
	return c.conn.sendMessage(cmd)
}
