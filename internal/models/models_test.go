package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMatrix_At(t *testing.T) {
	m := &DistanceMatrix{
		IDs:  []string{"A", "B"},
		Rows: map[string][]float64{"A": {0, 0.2}, "B": {0.2, 0}},
	}

	d, ok := m.At("A", "B")
	assert.True(t, ok)
	assert.Equal(t, 0.2, d)

	_, ok = m.At("A", "C")
	assert.False(t, ok)
	_, ok = m.At("C", "A")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestJobRecord_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &JobRecord{StartedAt: start}
	assert.Zero(t, rec.Duration())

	rec.FinishedAt = start.Add(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration())
}

func TestUnitFailure(t *testing.T) {
	cause := errors.New("exit status 1")
	f := UnitFailure{Ordinal: 3, UnitPath: "tmp/seq_000003.fas", Err: cause}

	assert.Equal(t, "tmp/seq_000003.fas: exit status 1", f.Error())
	assert.ErrorIs(t, f, cause)
}

func TestRun_ShortID(t *testing.T) {
	r := &Run{ID: "0123456789abcdef"}
	assert.Equal(t, "01234567", r.ShortID())
	assert.Equal(t, "abc", (&Run{ID: "abc"}).ShortID())
}
