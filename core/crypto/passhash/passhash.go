// passhash.go - Conference password hashing.
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

// Package passhash derives conference password hashes.  The password
// itself never crosses the wire: the server only ever sees the Argon2id
// digest computed against a conference scoped salt.
package passhash

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the length of a derived password hash.
	KeyLength = 32

	// SaltLength is the length of a hashing salt.
	SaltLength = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Hash derives the password hash for the given password and salt.
func Hash(password []byte, salt *[SaltLength]byte) [KeyLength]byte {
	var out [KeyLength]byte
	copy(out[:], argon2.IDKey(password, salt[:], argonTime, argonMemory, argonThreads, KeyLength))
	return out
}

// NewSalt generates a fresh random salt.
func NewSalt() ([SaltLength]byte, error) {
	var salt [SaltLength]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return salt, err
	}
	return salt, nil
}
