package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(surface string, at time.Time, target string) *Entry {
	return &Entry{
		TimestampNs: at.UnixNano(),
		SurfaceID:   surface,
		Language:    "go",
		Region:      "string",
		Target:      target,
		Decision:    "execute",
		Confidence:  0.9,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := s.RecordSwitch(entry("s1", now.Add(time.Duration(i)*time.Second), "native"))
		require.NoError(t, err)
	}

	entries, err := s.Recent(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i].TimestampNs, entries[i-1].TimestampNs)
	}
	assert.Equal(t, "native", entries[0].Target)
	assert.Equal(t, "string", entries[0].Region)
}

func TestRecentDefaultLimit(t *testing.T) {
	s := openTestStore(t)

	_, err := s.RecordSwitch(entry("s1", time.Now(), "latin"))
	require.NoError(t, err)

	entries, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBySurface(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.RecordSwitch(entry("a", now, "latin"))
	s.RecordSwitch(entry("b", now.Add(time.Second), "native"))
	s.RecordSwitch(entry("a", now.Add(2*time.Second), "native"))

	entries, err := s.BySurface("a", 0, now.Add(time.Hour).UnixNano())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Oldest first.
	assert.Equal(t, "latin", entries[0].Target)
	assert.Equal(t, "native", entries[1].Target)
}

func TestSuppressionCounts(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.BumpSuppression("suppress_redundant"))
	}
	require.NoError(t, s.BumpSuppression("suppress_rate_limited"))

	counts, err := s.SuppressionCounts()
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["suppress_redundant"])
	assert.Equal(t, int64(1), counts["suppress_rate_limited"])
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.RecordSwitch(entry("s1", now.Add(-48*time.Hour), "latin"))
	s.RecordSwitch(entry("s1", now.Add(-36*time.Hour), "native"))
	s.RecordSwitch(entry("s1", now, "latin"))

	removed, err := s.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	entries, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.RecordSwitch(entry("s1", time.Now(), "native"))
	require.NoError(t, err)
	s.Close()

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
