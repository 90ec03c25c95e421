package pipeline

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/gtm-copilot/internal/types"
)

func TestTrail_AppendAssignsSeqAndTime(t *testing.T) {
	trail := NewTrail()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute)}
	i := 0
	trail.now = func() time.Time {
		now := clock[i]
		i++
		return now
	}

	first := trail.Append(types.StageIntel, types.SeverityInfo, "a")
	second := trail.Append(types.StageIntel, types.SeverityWarn, "b")
	third := trail.Append(types.StageStrategy, types.SeverityError, "c")

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, 3, third.Seq)
	// A clock step backwards never reorders the trail.
	assert.Equal(t, second.Time, third.Time)
	assert.Len(t, trail.Filter(types.SeverityWarn), 1)
}

func TestTrail_ConcurrentAppends(t *testing.T) {
	trail := NewTrail()
	var seen []int
	trail.onAppend = func(e types.LogEntry) { seen = append(seen, e.Seq) }

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				trail.Append(types.StageMessaging, types.SeverityInfo, "x")
			}
		}()
	}
	wg.Wait()

	entries := trail.Entries()
	require.Len(t, entries, 400)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, i+1, seen[i])
		if i > 0 {
			assert.False(t, e.Time.Before(entries[i-1].Time))
		}
	}
}

func TestTrail_EntriesIsACopy(t *testing.T) {
	trail := NewTrail()
	trail.Append(types.StageIntel, types.SeverityInfo, "a")
	entries := trail.Entries()
	entries[0].Message = "changed"
	assert.Equal(t, "a", trail.Entries()[0].Message)
}

func TestTrail_JSONRoundTrip(t *testing.T) {
	trail := NewTrail()
	trail.Append(types.StageIntel, types.SeverityInfo, "a")
	trail.Append(types.StageGating, types.SeverityWarn, "b")

	data, err := json.Marshal(trail)
	require.NoError(t, err)

	restored := NewTrail()
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, "b", restored.Entries()[1].Message)

	var nilTrail *Trail
	data, err = nilTrail.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
