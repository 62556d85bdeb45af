package syncstate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_GraphTime(t *testing.T) {
	s := New()
	_, ok := s.GraphTime()
	assert.False(t, ok, "no graph time without authority")

	s.SetVideoTime(12.3)
	_, ok = s.GraphTime()
	assert.False(t, ok)

	s.SetAuthorityActive(true)
	gt, ok := s.GraphTime()
	require.True(t, ok)
	assert.InDelta(t, 12.3, gt, 1e-9)

	s.SetLapStartVideoTime(20)
	gt, ok = s.GraphTime()
	require.True(t, ok)
	assert.Zero(t, gt, "clamped before lap start")

	s.SetAuthorityActive(false)
	assert.InDelta(t, 12.3, s.VideoTime(), 1e-9, "video time kept on release")
	_, ok = s.GraphTime()
	assert.False(t, ok)
}

// applies random mutation sequences and checks the graph time invariant
// after every single step
func TestState_GraphTimeInvariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	s := New()
	for i := 0; i < 5000; i++ {
		var snap Snapshot
		switch rnd.Intn(3) {
		case 0:
			snap = s.SetVideoTime(rnd.Float64()*200 - 20)
		case 1:
			snap = s.SetAuthorityActive(rnd.Intn(2) == 0)
		case 2:
			snap = s.SetLapStartVideoTime(rnd.Float64() * 150)
		}
		for _, check := range []Snapshot{snap, s.Snapshot()} {
			gt, ok := check.GraphTime()
			if !check.AuthorityActive {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)
			assert.InDelta(t,
				math.Max(0, check.VideoTime-check.LapStartVideoTime), gt, 1e-9)
		}
	}
}

func TestState_OnChange(t *testing.T) {
	s := New()
	var seen []Snapshot
	s.OnChange(func(snap Snapshot) {
		// reading inside the observer must not deadlock and must see the write
		assert.Equal(t, snap, s.Snapshot())
		seen = append(seen, snap)
	})
	s.SetLapStartVideoTime(10)
	s.SetAuthorityActive(true)
	s.SetVideoTime(15)

	require.Len(t, seen, 3)
	gt, ok := seen[2].GraphTime()
	require.True(t, ok)
	assert.InDelta(t, 5.0, gt, 1e-9)
}
