// commands.go - Wire protocol commands.
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

// Package commands implements the wire protocol commands exchanged between
// the client and the rendezvous server.  Every frame is a one byte tag, a
// reserved zero byte, a big-endian 32 bit body length, and the body.
package commands

import (
	"encoding/binary"
	"errors"
)

// ErrMalformed is the error returned when a frame cannot be decoded.  The
// stream is unrecoverable past this point and the connection must be torn
// down.
var ErrMalformed = errors.New("wire: malformed frame")

type commandID byte

// Command is the common interface exposed by all wire command structures.
type Command interface {
	// ToBytes serializes the command and returns the resulting slice.
	ToBytes() []byte
}

func frameHeader(id commandID, bodyLen int) []byte {
	out := make([]byte, cmdOverhead, cmdOverhead+bodyLen)
	out[0] = byte(id)
	binary.BigEndian.PutUint32(out[2:6], uint32(bodyLen))
	return out
}

// Heartbeat is an empty keepalive frame.  It is also the frame the server
// sends to acknowledge the protocol header handshake.
type Heartbeat struct{}

// ToBytes serializes the Heartbeat and returns the resulting slice.
func (c *Heartbeat) ToBytes() []byte {
	return frameHeader(heartbeat, 0)
}

// Disconnect announces a clean client shutdown to the server.
type Disconnect struct{}

// ToBytes serializes the Disconnect and returns the resulting slice.
func (c *Disconnect) ToBytes() []byte {
	return frameHeader(disconnect, 0)
}

// CreateConference requests the creation of a new conference protected by
// the given password hash.  The join salt is generated by the client and
// stored by the server for later join attempts.
type CreateConference struct {
	Nonce        uint32
	PasswordHash [HashLength]byte
	JoinSalt     [SaltLength]byte
}

// ToBytes serializes the CreateConference and returns the resulting slice.
func (c *CreateConference) ToBytes() []byte {
	out := frameHeader(createConference, nonceLength+HashLength+SaltLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = append(out, c.PasswordHash[:]...)
	out = append(out, c.JoinSalt[:]...)
	return out
}

func createConferenceFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+HashLength+SaltLength {
		return nil, ErrMalformed
	}
	c := new(CreateConference)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	copy(c.PasswordHash[:], b[4:4+HashLength])
	copy(c.JoinSalt[:], b[4+HashLength:])
	return c, nil
}

// ConferenceCreated is the server's affirmative response to a
// CreateConference request.
type ConferenceCreated struct {
	Nonce        uint32
	ConferenceID uint64
}

// ToBytes serializes the ConferenceCreated and returns the resulting slice.
func (c *ConferenceCreated) ToBytes() []byte {
	out := frameHeader(conferenceCreated, nonceLength+conferenceIDLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	return out
}

func conferenceCreatedFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength {
		return nil, ErrMalformed
	}
	c := new(ConferenceCreated)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	return c, nil
}

// GetJoinSalt asks the server for the join salt of an existing conference,
// the first half of the join exchange.
type GetJoinSalt struct {
	Nonce        uint32
	ConferenceID uint64
}

// ToBytes serializes the GetJoinSalt and returns the resulting slice.
func (c *GetJoinSalt) ToBytes() []byte {
	out := frameHeader(getJoinSalt, nonceLength+conferenceIDLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	return out
}

func getJoinSaltFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength {
		return nil, ErrMalformed
	}
	c := new(GetJoinSalt)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	return c, nil
}

// JoinSaltReply carries the join salt of a conference back to the client.
type JoinSaltReply struct {
	Nonce        uint32
	ConferenceID uint64
	JoinSalt     [SaltLength]byte
}

// ToBytes serializes the JoinSaltReply and returns the resulting slice.
func (c *JoinSaltReply) ToBytes() []byte {
	out := frameHeader(joinSaltReply, nonceLength+conferenceIDLength+SaltLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	out = append(out, c.JoinSalt[:]...)
	return out
}

func joinSaltReplyFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength+SaltLength {
		return nil, ErrMalformed
	}
	c := new(JoinSaltReply)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	copy(c.JoinSalt[:], b[12:])
	return c, nil
}

// JoinConference requests membership in an existing conference, the second
// half of the join exchange.  The password hash is computed with the salt
// obtained via GetJoinSalt.
type JoinConference struct {
	Nonce        uint32
	ConferenceID uint64
	PasswordHash [HashLength]byte
}

// ToBytes serializes the JoinConference and returns the resulting slice.
func (c *JoinConference) ToBytes() []byte {
	out := frameHeader(joinConference, nonceLength+conferenceIDLength+HashLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	out = append(out, c.PasswordHash[:]...)
	return out
}

func joinConferenceFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength+HashLength {
		return nil, ErrMalformed
	}
	c := new(JoinConference)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	copy(c.PasswordHash[:], b[12:])
	return c, nil
}

// ConferenceJoined is the server's affirmative response to a JoinConference
// request.
type ConferenceJoined struct {
	Nonce        uint32
	ConferenceID uint64
	NumPeers     uint32
}

// ToBytes serializes the ConferenceJoined and returns the resulting slice.
func (c *ConferenceJoined) ToBytes() []byte {
	out := frameHeader(conferenceJoined, nonceLength+conferenceIDLength+numPeersLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	out = binary.BigEndian.AppendUint32(out, c.NumPeers)
	return out
}

func conferenceJoinedFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength+numPeersLength {
		return nil, ErrMalformed
	}
	c := new(ConferenceJoined)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	c.NumPeers = binary.BigEndian.Uint32(b[12:16])
	return c, nil
}

// LeaveConference announces that the client is leaving a conference.  The
// client does not wait for a response.
type LeaveConference struct {
	Nonce        uint32
	ConferenceID uint64
}

// ToBytes serializes the LeaveConference and returns the resulting slice.
func (c *LeaveConference) ToBytes() []byte {
	out := frameHeader(leaveConference, nonceLength+conferenceIDLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	return out
}

func leaveConferenceFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength {
		return nil, ErrMalformed
	}
	c := new(LeaveConference)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	return c, nil
}

// ConferenceLeft confirms a LeaveConference notice.  It is informational,
// the client treats leaving as effective immediately.
type ConferenceLeft struct {
	Nonce        uint32
	ConferenceID uint64
}

// ToBytes serializes the ConferenceLeft and returns the resulting slice.
func (c *ConferenceLeft) ToBytes() []byte {
	out := frameHeader(conferenceLeft, nonceLength+conferenceIDLength)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = binary.BigEndian.AppendUint64(out, c.ConferenceID)
	return out
}

func conferenceLeftFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+conferenceIDLength {
		return nil, ErrMalformed
	}
	c := new(ConferenceLeft)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.ConferenceID = binary.BigEndian.Uint64(b[4:12])
	return c, nil
}

// SendMessage submits a chat message to the client's active conference.
type SendMessage struct {
	ConferenceID uint64
	Sender       string
	Sequence     uint64
	Payload      []byte
}

// ToBytes serializes the SendMessage and returns the resulting slice.
func (c *SendMessage) ToBytes() []byte {
	return messageToBytes(sendMessage, c.ConferenceID, c.Sender, c.Sequence, c.Payload)
}

func sendMessageFromBytes(b []byte) (Command, error) {
	c := new(SendMessage)
	var err error
	c.ConferenceID, c.Sender, c.Sequence, c.Payload, err = messageFromBytes(b)
	return c, err
}

// ConferenceMessage is a chat message broadcast by the server to every
// participant of a conference, including an echo to the original sender.
type ConferenceMessage struct {
	ConferenceID uint64
	Sender       string
	Sequence     uint64
	Payload      []byte
}

// ToBytes serializes the ConferenceMessage and returns the resulting slice.
func (c *ConferenceMessage) ToBytes() []byte {
	return messageToBytes(conferenceMessage, c.ConferenceID, c.Sender, c.Sequence, c.Payload)
}

func conferenceMessageFromBytes(b []byte) (Command, error) {
	c := new(ConferenceMessage)
	var err error
	c.ConferenceID, c.Sender, c.Sequence, c.Payload, err = messageFromBytes(b)
	return c, err
}

func messageToBytes(id commandID, conferenceID uint64, sender string, seq uint64, payload []byte) []byte {
	if len(sender) > MaxPseudonymLength {
		panic("wire: pseudonym exceeds MaxPseudonymLength")
	}
	bodyLen := conferenceIDLength + 1 + len(sender) + sequenceLength + len(payload)
	out := frameHeader(id, bodyLen)
	out = binary.BigEndian.AppendUint64(out, conferenceID)
	out = append(out, byte(len(sender)))
	out = append(out, sender...)
	out = binary.BigEndian.AppendUint64(out, seq)
	out = append(out, payload...)
	return out
}

func messageFromBytes(b []byte) (conferenceID uint64, sender string, seq uint64, payload []byte, err error) {
	if len(b) < conferenceIDLength+1 {
		return 0, "", 0, nil, ErrMalformed
	}
	conferenceID = binary.BigEndian.Uint64(b[0:8])
	senderLen := int(b[8])
	b = b[9:]
	if len(b) < senderLen+sequenceLength {
		return 0, "", 0, nil, ErrMalformed
	}
	sender = string(b[:senderLen])
	b = b[senderLen:]
	seq = binary.BigEndian.Uint64(b[:sequenceLength])
	payload = make([]byte, len(b[sequenceLength:]))
	copy(payload, b[sequenceLength:])
	return conferenceID, sender, seq, payload, nil
}

// RequestFailed is the server's negative response to a pending request.
type RequestFailed struct {
	Nonce  uint32
	Reason FailReason
}

// ToBytes serializes the RequestFailed and returns the resulting slice.
func (c *RequestFailed) ToBytes() []byte {
	out := frameHeader(requestFailed, nonceLength+1)
	out = binary.BigEndian.AppendUint32(out, c.Nonce)
	out = append(out, byte(c.Reason))
	return out
}

func requestFailedFromBytes(b []byte) (Command, error) {
	if len(b) != nonceLength+1 {
		return nil, ErrMalformed
	}
	c := new(RequestFailed)
	c.Nonce = binary.BigEndian.Uint32(b[0:4])
	c.Reason = FailReason(b[4])
	return c, nil
}

// Decode de-serializes at most one command from the head of b, returning
// the command and the number of bytes consumed.  If b does not yet hold a
// complete frame, Decode returns (nil, 0, nil) and the caller should retry
// once more bytes have arrived.  A decode failure poisons the stream; the
// caller must close the connection.
func Decode(b []byte) (Command, int, error) {
	if len(b) < cmdOverhead {
		return nil, 0, nil
	}

	// Parse the common header.
	id := commandID(b[0])
	if b[1] != 0 {
		return nil, 0, ErrMalformed
	}
	bodyLen := binary.BigEndian.Uint32(b[2:6])
	if bodyLen > MaxBodyLength {
		return nil, 0, ErrMalformed
	}
	if uint32(len(b)-cmdOverhead) < bodyLen {
		return nil, 0, nil
	}
	body := b[cmdOverhead : cmdOverhead+int(bodyLen)]
	consumed := cmdOverhead + int(bodyLen)

	cmd, err := fromBody(id, body)
	if err != nil {
		return nil, 0, err
	}
	return cmd, consumed, nil
}

// FromBytes de-serializes the command in the buffer b, which must hold
// exactly one complete frame.
func FromBytes(b []byte) (Command, error) {
	cmd, n, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if cmd == nil || n != len(b) {
		return nil, ErrMalformed
	}
	return cmd, nil
}

func fromBody(id commandID, b []byte) (Command, error) {
	switch id {
	case heartbeat:
		if len(b) != 0 {
			return nil, ErrMalformed
		}
		return &Heartbeat{}, nil
	case disconnect:
		if len(b) != 0 {
			return nil, ErrMalformed
		}
		return &Disconnect{}, nil
	case createConference:
		return createConferenceFromBytes(b)
	case getJoinSalt:
		return getJoinSaltFromBytes(b)
	case joinConference:
		return joinConferenceFromBytes(b)
	case leaveConference:
		return leaveConferenceFromBytes(b)
	case sendMessage:
		return sendMessageFromBytes(b)
	case conferenceCreated:
		return conferenceCreatedFromBytes(b)
	case joinSaltReply:
		return joinSaltReplyFromBytes(b)
	case conferenceJoined:
		return conferenceJoinedFromBytes(b)
	case conferenceLeft:
		return conferenceLeftFromBytes(b)
	case conferenceMessage:
		return conferenceMessageFromBytes(b)
	case requestFailed:
		return requestFailedFromBytes(b)
	default:
		return nil, ErrMalformed
	}
}
