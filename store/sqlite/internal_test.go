package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanAttendance_MalformedTimestamp(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.db.ExecContext(ctx, `INSERT INTO attendance_records
		(id, user_id, work_date, clock_in, created_at, updated_at)
		VALUES ('bad', 'alice', '2024-03-04', 'yesterday morning', '2024-03-04T08:00:00+09:00', '2024-03-04T08:00:00+09:00')`)
	require.NoError(t, err)

	_, err = s.GetAttendance(ctx, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed timestamp")
	assert.Contains(t, err.Error(), "clock_in")
}
