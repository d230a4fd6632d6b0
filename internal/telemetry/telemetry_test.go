package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndQueryUnitTimings(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	defer store.Close()

	for i, timing := range []UnitTiming{
		{SessionID: "s1", UnitIndex: 1, Frames: 50, Points: 120000, DecodeNanos: 4e6, ConvertNanos: 9e6},
		{SessionID: "s1", UnitIndex: 0, Frames: 50, Points: 118000, DecodeNanos: 5e6, ConvertNanos: 8e6},
		{SessionID: "s2", UnitIndex: 0, Frames: 49, Points: 90000, DecodeNanos: 3e6, ConvertNanos: 7e6},
	} {
		require.NoError(t, store.RecordUnit(timing), "insert %d", i)
	}

	rows, err := store.UnitTimings("s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].UnitIndex, "ordered by unit index")
	assert.Equal(t, 1, rows[1].UnitIndex)
	assert.Equal(t, int64(5e6), rows[0].DecodeNanos)

	sessions, err := store.Sessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	rows, err = store.UnitTimings("missing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
