package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/store/storetest"
	"github.com/warp/worktime-engine/worktime"
	"github.com/warp/worktime-engine/worktime/store"
)

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return store.NewMemory()
	})
}

func TestMemory_ReturnsCopies(t *testing.T) {
	// GIVEN: A stored closed record
	m := store.NewMemory()
	ctx := context.Background()
	in := worktime.NewDate(2024, 3, 4)
	out := in.Cutoff()
	rec := worktime.AttendanceRecord{ID: "a1", UserID: "alice", Date: in, ClockIn: in.Midnight(), ClockOut: &out, Version: 1}
	require.NoError(t, m.CreateAttendance(ctx, rec))

	// WHEN: The caller mutates what it passed in and what it got back
	*rec.ClockOut = in.Midnight()
	got, err := m.GetAttendance(ctx, "a1")
	require.NoError(t, err)
	*got.ClockOut = in.Midnight()

	// THEN: The stored value is unchanged
	again, err := m.GetAttendance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, again.ClockOut.Equal(in.Cutoff()))
}
