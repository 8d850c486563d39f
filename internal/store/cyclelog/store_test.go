package cyclelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cycles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStore_EmptyPath(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Entry{
		AccountID: "acct-1", CycleID: "cycle-1", TS: 1000, Zone: "HEALTHY", UsagePct: 12.5, DurationMS: 40,
	}))
	require.NoError(t, s.Append(ctx, Entry{
		AccountID: "acct-1", CycleID: "cycle-2", TS: 2000, Zone: "CRITICAL", UsagePct: 91,
		Stale: true, Degraded: true, DurationMS: 75, Note: "usage undefined",
	}))
	require.NoError(t, s.Append(ctx, Entry{
		AccountID: "acct-2", CycleID: "cycle-9", TS: 1500, Zone: "HEALTHY",
	}))

	got, err := s.Recent(ctx, "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "cycle-2", got[0].CycleID)
	assert.True(t, got[0].Stale)
	assert.True(t, got[0].Degraded)
	assert.Equal(t, "usage undefined", got[0].Note)
	assert.Equal(t, "cycle-1", got[1].CycleID)
	assert.Equal(t, 12.5, got[1].UsagePct)
	assert.False(t, got[1].Stale)
}

func TestRecentHonorsLimit(t *testing.T) {
	s := newTestLog(t)
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Append(ctx, Entry{AccountID: "acct-1", TS: i, Zone: "HEALTHY"}))
	}
	got, err := s.Recent(ctx, "acct-1", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(4), got[0].TS)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Append(context.Background(), Entry{AccountID: "acct-1"}))
	got, err := s.Recent(context.Background(), "acct-1", 10)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, s.Close())
}
