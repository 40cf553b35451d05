// passhash_test.go - Tests for conference password hashing.
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

package passhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	salt, err := NewSalt()
	require.NoError(err)

	h1 := Hash([]byte("password"), &salt)
	h2 := Hash([]byte("password"), &salt)
	require.Equal(h1, h2, "same password and salt must hash identically")

	h3 := Hash([]byte("password1"), &salt)
	require.NotEqual(h1, h3, "different passwords must hash differently")
}

func TestHashSaltDependent(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s1, err := NewSalt()
	require.NoError(err)
	s2, err := NewSalt()
	require.NoError(err)
	require.NotEqual(s1, s2, "salts must be random")

	h1 := Hash([]byte("password"), &s1)
	h2 := Hash([]byte("password"), &s2)
	require.NotEqual(h1, h2, "same password under different salts must hash differently")
}
