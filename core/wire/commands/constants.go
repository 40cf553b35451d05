// constants.go - Wire protocol constants.
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

package commands

const (
	// cmdOverhead is the length of the common frame header: a one byte
	// command tag, a reserved byte that must be zero, and a big-endian
	// 32 bit body length.
	cmdOverhead = 1 + 1 + 4

	// MaxBodyLength is the maximum allowed frame body length.  A length
	// field in excess of this is treated as protocol desynchronization.
	MaxBodyLength = 65536

	// HashLength is the length of a conference password hash.
	HashLength = 32

	// SaltLength is the length of a conference join salt.
	SaltLength = 32

	// MaxPseudonymLength is the maximum length of a sender pseudonym.
	MaxPseudonymLength = 255

	nonceLength        = 4
	conferenceIDLength = 8
	sequenceLength     = 8
	numPeersLength     = 4
)

// ProtocolHeader is written by the client immediately after the TCP
// connection is established, before any frame is exchanged.
var ProtocolHeader = []byte("\x1CAnonymousConference protocol")

const (
	heartbeat        commandID = 0x00
	createConference commandID = 0x01
	getJoinSalt      commandID = 0x02
	joinConference   commandID = 0x03
	leaveConference  commandID = 0x04
	sendMessage      commandID = 0x05
	disconnect       commandID = 0x06

	conferenceCreated commandID = 0x11
	joinSaltReply     commandID = 0x12
	conferenceJoined  commandID = 0x13
	conferenceLeft    commandID = 0x14
	conferenceMessage commandID = 0x15

	requestFailed commandID = 0x20
)

// FailReason is the server supplied reason attached to a RequestFailed frame.
type FailReason byte

const (
	// ReasonGeneral indicates an unspecified server side failure.
	ReasonGeneral FailReason = 0x00

	// ReasonWrongPassword indicates that the supplied password hash did
	// not match the conference password.
	ReasonWrongPassword FailReason = 0x01

	// ReasonNotFound indicates that no conference exists with the
	// requested identifier.
	ReasonNotFound FailReason = 0x02

	// ReasonNotParticipant indicates an operation on a conference the
	// client is not a participant of.
	ReasonNotParticipant FailReason = 0x03
)

// String returns a human readable representation of the failure reason.
func (r FailReason) String() string {
	switch r {
	case ReasonGeneral:
		return "general server error"
	case ReasonWrongPassword:
		return "wrong password"
	case ReasonNotFound:
		return "no such conference"
	case ReasonNotParticipant:
		return "not a conference participant"
	default:
		return "unknown failure reason"
	}
}
