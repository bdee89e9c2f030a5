package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingNormalizeFillsDefaults(t *testing.T) {
	timing := Timing{}.normalize()

	assert.Equal(t, DefaultT1, timing.T1)
	assert.Equal(t, DefaultT2, timing.T2)
	assert.Equal(t, DefaultT4, timing.T4)
	assert.Equal(t, DefaultTime1xx, timing.Time1xx)
}

func TestTimingNormalizeKeepsOverrides(t *testing.T) {
	timing := Timing{
		T1:      10 * time.Millisecond,
		T2:      40 * time.Millisecond,
		T4:      20 * time.Millisecond,
		Time1xx: 5 * time.Millisecond,
	}.normalize()

	assert.Equal(t, 10*time.Millisecond, timing.T1)
	assert.Equal(t, 40*time.Millisecond, timing.T2)
	assert.Equal(t, 20*time.Millisecond, timing.T4)
	assert.Equal(t, 5*time.Millisecond, timing.Time1xx)
}

func TestTimingDerivedTimers(t *testing.T) {
	timing := Timing{T1: 10 * time.Millisecond, T4: 20 * time.Millisecond}.normalize()

	assert.Equal(t, 10*time.Millisecond, timing.TimeA())
	assert.Equal(t, 640*time.Millisecond, timing.TimeB())
	assert.Equal(t, 640*time.Millisecond, timing.TimeD())
	assert.Equal(t, 10*time.Millisecond, timing.TimeE())
	assert.Equal(t, 640*time.Millisecond, timing.TimeF())
	assert.Equal(t, 10*time.Millisecond, timing.TimeG())
	assert.Equal(t, 640*time.Millisecond, timing.TimeH())
	assert.Equal(t, 20*time.Millisecond, timing.TimeI())
	assert.Equal(t, 640*time.Millisecond, timing.TimeJ())
	assert.Equal(t, 20*time.Millisecond, timing.TimeK())
}
