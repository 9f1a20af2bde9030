package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidqr/aidqr/internal/quota"
)

func sampleTable(t *testing.T) quota.Table {
	t.Helper()

	loc := time.FixedZone("PHT", 8*60*60)
	reset := time.Date(2026, 10, 16, 8, 0, 0, 0, loc)
	expires := reset.Add(12 * time.Hour)
	key := "0123456789abcdef0123456789abcdef"

	return quota.Table{
		"u1": {
			ID:            "u1",
			Disadvantaged: quota.CategoryLowIncome,
			DailyLimit:    quota.Allowance{Water: 3, Meals: 2},
			Used:          quota.Allowance{Water: 1},
			LastReset:     reset,
			Keys:          quota.Keys{WaterKey: &key},
			KeyExpires:    quota.KeyExpiries{WaterExpires: &expires},
		},
		"u2": {
			ID:            "u2",
			Disadvantaged: quota.CategoryNearPoor,
			DailyLimit:    quota.Allowance{Water: 2, Meals: 1},
			LastReset:     reset,
		},
	}
}

// assertSameTable compares tables with time fields checked by instant.
func assertSameTable(t *testing.T, want, got quota.Table) {
	t.Helper()

	require.Len(t, got, len(want))
	for id, w := range want {
		g, ok := got[id]
		require.True(t, ok, "record %s missing", id)

		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Disadvantaged, g.Disadvantaged)
		assert.Equal(t, w.DailyLimit, g.DailyLimit)
		assert.Equal(t, w.Used, g.Used)
		assert.True(t, w.LastReset.Equal(g.LastReset), "lastReset %s != %s", w.LastReset, g.LastReset)
		assert.Equal(t, w.Keys, g.Keys)

		if w.KeyExpires.WaterExpires == nil {
			assert.Nil(t, g.KeyExpires.WaterExpires)
		} else {
			require.NotNil(t, g.KeyExpires.WaterExpires)
			assert.True(t, w.KeyExpires.WaterExpires.Equal(*g.KeyExpires.WaterExpires))
		}
		assert.Nil(t, g.KeyExpires.MealExpires)
	}
}
