package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSearchStore_RecordAndQueryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.db")
	s, err := OpenSearchStore(path)
	require.NoError(t, err)
	defer s.Close()

	issuedAt := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.RecordSearch("tok-1", "rare groove", 0, issuedAt))

	receivedAt := issuedAt.Add(3 * time.Second)
	files := []SearchResultFile{
		{VirtualPath: "music\\rare\\track1.mp3", Size: 5_000_000, BitrateKbps: 320, VBR: false},
		{VirtualPath: "music\\rare\\track2.flac", Size: 30_000_000, SampleRate: 44100, DurationNS: int64(4 * time.Minute)},
	}
	require.NoError(t, s.RecordResponse("tok-1", "alice", files, receivedAt))
	require.NoError(t, s.RecordResponse("tok-1", "bob", nil, receivedAt.Add(time.Second)))

	responses, err := s.ResponsesForSearch("tok-1")
	require.NoError(t, err)
	require.Len(t, responses, 2)

	require.Equal(t, "bob", responses[0].Username)
	require.Empty(t, responses[0].Files)

	require.Equal(t, "alice", responses[1].Username)
	require.Len(t, responses[1].Files, 2)
	require.Equal(t, "music\\rare\\track1.mp3", responses[1].Files[0].VirtualPath)
	require.Equal(t, 320, responses[1].Files[0].BitrateKbps)
}

func TestSearchStore_ResponsesForUnknownSearchIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.db")
	s, err := OpenSearchStore(path)
	require.NoError(t, err)
	defer s.Close()

	responses, err := s.ResponsesForSearch("no-such-token")
	require.NoError(t, err)
	require.Empty(t, responses)
}
