// retry_test.go - Tests for the reconnect backoff policy.
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

package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayExponentialGrowth(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	base := 100 * time.Millisecond
	max := 10 * time.Second

	require.Equal(100*time.Millisecond, Delay(base, max, 0, 0))
	require.Equal(200*time.Millisecond, Delay(base, max, 0, 1))
	require.Equal(400*time.Millisecond, Delay(base, max, 0, 2))
	require.Equal(800*time.Millisecond, Delay(base, max, 0, 3))
}

func TestDelayCapped(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	base := 1 * time.Second
	max := 5 * time.Second

	require.Equal(max, Delay(base, max, 0, 10))
	require.Equal(max, Delay(base, max, 0, 63))
}

func TestDelayJitterBounds(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	base := 1 * time.Second
	max := 2 * time.Minute
	jitter := 0.2

	for attempt := 0; attempt < 6; attempt++ {
		want := float64(base) * float64(int(1)<<attempt)
		lo := time.Duration(want * (1 - jitter))
		hi := time.Duration(want * (1 + jitter))
		for i := 0; i < 100; i++ {
			d := Delay(base, max, jitter, attempt)
			require.GreaterOrEqual(d, lo, "jittered delay below lower bound")
			require.LessOrEqual(d, hi, "jittered delay above upper bound")
		}
	}
}
