// errors.go - Client error taxonomy.
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
	"errors"
	"fmt"

	"github.com/L20L021902/anonymous-conference-client/core/wire/commands"
)

var (
	// ErrNotConnected is the error returned when an operation fails due to
	// the client not currently being connected to the server.
	ErrNotConnected = errors.New("client/conn: not connected to the server")

	// ErrShutdown is the error returned when the connection is closed due
	// to a call to Shutdown().
	ErrShutdown = errors.New("client: shutdown requested")

	// ErrAlreadyInConference is returned when create or join is attempted
	// while the session is already in a conference.
	ErrAlreadyInConference = errors.New("client: already in a conference")

	// ErrNotInConference is returned when a conference scoped operation is
	// attempted outside of a conference.
	ErrNotInConference = errors.New("client: not in a conference")

	// ErrRequestPending is returned when a create or join is attempted
	// while another request is still awaiting its response.
	ErrRequestPending = errors.New("client: another request is in flight")

	// ErrRequestTimeout is returned when the server fails to answer a
	// request before its deadline.
	ErrRequestTimeout = errors.New("client: request timed out")

	// ErrWrongPassword is returned when the server rejects a join due to a
	// password mismatch.
	ErrWrongPassword = errors.New("client: wrong conference password")

	// ErrConferenceNotFound is returned when the requested conference does
	// not exist.
	ErrConferenceNotFound = errors.New("client: no such conference")
)

// ConnectError is the error used to indicate that a connect attempt has failed.
type ConnectError struct {
	// Err is the original error that caused the connect attempt to fail.
	Err error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("client/conn: connect error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError is the error used to indicate that the connection was closed
// due to wire protocol related reasons.
type ProtocolError struct {
	// Err is the original error that triggered connection termination.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("client/conn: protocol error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error { return e.Err }

func newProtocolError(f string, a ...interface{}) error {
	return &ProtocolError{Err: fmt.Errorf(f, a...)}
}

// ServerError is a server reported request failure that does not map onto a
// more specific error value.
type ServerError struct {
	// Reason is the failure reason reported by the server.
	Reason commands.FailReason
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("client: server rejected request: %v", e.Reason)
}

// serverError maps a wire level failure reason onto the client error
// taxonomy.
func serverError(reason commands.FailReason) error {
	switch reason {
	case commands.ReasonWrongPassword:
		return ErrWrongPassword
	case commands.ReasonNotFound:
		return ErrConferenceNotFound
	default:
		return &ServerError{Reason: reason}
	}
}
