// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagnetLink(t *testing.T) {
	s := &Stream{
		InfoHash:     "deadbeef",
		TorrentName:  "Some Movie 2024",
		AnnounceList: []string{"udp://tracker.example:1337/announce", "http://t2.example/announce"},
	}
	m := s.MagnetLink()
	assert.Contains(t, m, "magnet:?xt=urn:btih:deadbeef")
	assert.Contains(t, m, "dn=Some+Movie+2024")
	assert.Contains(t, m, "tr=udp%3A%2F%2Ftracker.example%3A1337%2Fannounce")
}

func TestGetEpisode(t *testing.T) {
	s := &Stream{
		Episodes: []Episode{
			{Season: 1, Episode: 1, Filename: "s01e01.mkv", FileIndex: 0},
			{Season: 1, Episode: 2, Filename: "s01e02.mkv", FileIndex: 1},
		},
	}

	e := s.GetEpisode(1, 2)
	require.NotNil(t, e)
	assert.Equal(t, "s01e02.mkv", e.Filename)

	assert.Nil(t, s.GetEpisode(2, 1))
	assert.Nil(t, s.GetEpisode(0, 0), "movie request selects the main file")
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "streams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &Stream{
		InfoHash:     "DEADBEEF01",
		TorrentName:  "Show.S01.1080p",
		FileIndex:    -1,
		Size:         1 << 30,
		AnnounceList: []string{"udp://tracker.example:1337"},
		Episodes: []Episode{
			{Season: 1, Episode: 1, Title: "Pilot", Filename: "e1.mkv", FileIndex: 0, Size: 1 << 29},
			{Season: 1, Episode: 2, Title: "Two", Filename: "e2.mkv", FileIndex: 1, Size: 1 << 29},
		},
	}
	require.NoError(t, store.Upsert(ctx, in))

	// Lookup is case-insensitive on the hash.
	got, err := store.GetByInfoHash(ctx, "deadbeef01")
	require.NoError(t, err)
	assert.Equal(t, "Show.S01.1080p", got.TorrentName)
	assert.Equal(t, []string{"udp://tracker.example:1337"}, got.AnnounceList)
	require.Len(t, got.Episodes, 2)
	assert.Equal(t, "Pilot", got.Episodes[0].Title)
}

func TestSQLiteStoreNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByInfoHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreUpsertReplacesEpisodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := &Stream{InfoHash: "aa", TorrentName: "t", Episodes: []Episode{{Season: 1, Episode: 1}}}
	require.NoError(t, store.Upsert(ctx, s))

	s.Episodes = []Episode{{Season: 2, Episode: 1}}
	require.NoError(t, store.Upsert(ctx, s))

	got, err := store.GetByInfoHash(ctx, "aa")
	require.NoError(t, err)
	require.Len(t, got.Episodes, 1)
	assert.Equal(t, 2, got.Episodes[0].Season)
}
