package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go-music-downloader/internal/database"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/playlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnvironment builds an environment on temp dirs with an in-memory index.
func testEnvironment(t *testing.T) *environment {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "music.db"))
	require.NoError(t, err)
	idx, err := index.NewMemIndex()
	require.NoError(t, err)
	env := &environment{
		cfg:       models.Config{SavePath: filepath.Join(dir, "downloads"), PlaylistPath: filepath.Join(dir, "playlists")},
		db:        db,
		index:     idx,
		playlists: playlist.NewStore(filepath.Join(dir, "playlists")),
	}
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func storeTrack(t *testing.T, env *environment, id, title string) models.DownloadEntry {
	t.Helper()
	require.NoError(t, os.MkdirAll(env.cfg.SavePath, 0750))
	path := filepath.Join(env.cfg.SavePath, id+".m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio "+id), 0600))
	entry := models.DownloadEntry{
		VideoID:  id,
		Title:    title,
		Author:   "Artist",
		Link:     models.YouTubePrefix + id,
		Filename: filepath.Base(path),
		Folder:   env.cfg.SavePath,
		Status:   models.StatusDownloaded,
	}
	require.NoError(t, env.db.PutEntry(entry))
	require.NoError(t, index.IndexEntry(env.index, entry))
	return entry
}

func TestParsePosition(t *testing.T) {
	idx, err := parsePosition("3")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	for _, bad := range []string{"0", "-1", "x", ""} {
		_, err := parsePosition(bad)
		assert.Error(t, err, bad)
	}
}

func TestEntryResolver(t *testing.T) {
	env := testEnvironment(t)
	entry := storeTrack(t, env, "aaaaaaaaaaa", "Song A")
	require.NoError(t, env.db.PutEntry(models.DownloadEntry{VideoID: "failedfailx", Status: models.StatusError}))

	resolve := entryResolver(env.db, "")
	uri, secs, ok := resolve(entry.Track())
	require.True(t, ok)
	assert.True(t, filepath.IsAbs(uri))
	assert.Equal(t, float64(-1), secs)

	relative := entryResolver(env.db, filepath.Dir(env.cfg.SavePath))
	uri, _, ok = relative(entry.Track())
	require.True(t, ok)
	assert.Equal(t, "downloads/aaaaaaaaaaa.m4a", uri)

	_, _, ok = resolve(models.Track{ID: "failedfailx"})
	assert.False(t, ok, "failed downloads are not exported")
	_, _, ok = resolve(models.Track{ID: "unknownnnnn"})
	assert.False(t, ok)

	require.NoError(t, os.Remove(filepath.Join(entry.Folder, entry.Filename)))
	_, _, ok = resolve(entry.Track())
	assert.False(t, ok, "missing files are not exported")
}

func TestPlaylistEntries(t *testing.T) {
	env := testEnvironment(t)
	a := storeTrack(t, env, "aaaaaaaaaaa", "Song A")
	b := storeTrack(t, env, "bbbbbbbbbbb", "Song B")

	orig := globalConfig
	defer func() { globalConfig = orig }()
	globalConfig.PlaylistPath = env.cfg.PlaylistPath

	require.NoError(t, env.playlists.Create("mix"))
	for _, tr := range []models.Track{b.Track(), {ID: "notindbxxxx", Title: "ghost"}, a.Track()} {
		_, err := env.playlists.Append("mix", tr)
		require.NoError(t, err)
	}

	entries, err := env.db.Entries()
	require.NoError(t, err)
	selected, err := playlistEntries("mix", entries)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "bbbbbbbbbbb", selected[0].VideoID)
	assert.Equal(t, "aaaaaaaaaaa", selected[1].VideoID)

	_, err = playlistEntries("nope", entries)
	assert.ErrorIs(t, err, playlist.ErrNotFound)
}

func TestRemoveEntry(t *testing.T) {
	env := testEnvironment(t)
	kept := storeTrack(t, env, "keepkeepkee", "Keep File")
	gone := storeTrack(t, env, "deletedelet", "Delete File")

	require.NoError(t, removeEntry(env, kept, true))
	assert.FileExists(t, filepath.Join(kept.Folder, kept.Filename))
	_, err := env.db.GetEntry(kept.VideoID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, removeEntry(env, gone, false))
	assert.NoFileExists(t, filepath.Join(gone.Folder, gone.Filename))
	_, err = env.db.GetEntry(gone.VideoID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	hits, err := index.Search(env.index, "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEnvironmentHooks(t *testing.T) {
	env := testEnvironment(t)

	names := func(playlistName string) []string {
		var out []string
		for _, h := range env.hooks(playlistName) {
			out = append(out, h.Name)
		}
		return out
	}

	assert.Equal(t, []string{"database record", "playlist downloads", "library index"}, names(""))
	assert.Equal(t, []string{"database record", "playlist downloads", "library index"}, names(models.DownloadsPlaylist))
	assert.Equal(t, []string{"database record", "playlist downloads", "playlist mix", "library index"}, names("mix"))

	env.cfg.Download.SaveThumbnail = true
	assert.Equal(t, "thumbnail", names("")[3])
}

func TestEnsurePlaylist(t *testing.T) {
	store := playlist.NewStore(t.TempDir())
	require.NoError(t, ensurePlaylist(store, ""))
	require.NoError(t, ensurePlaylist(store, models.DownloadsPlaylist))
	assert.False(t, store.Exists(models.DownloadsPlaylist))

	require.NoError(t, ensurePlaylist(store, "road-trip"))
	assert.True(t, store.Exists("road-trip"))
	require.NoError(t, ensurePlaylist(store, "road-trip"))
}

func TestPrintTables(t *testing.T) {
	var buf bytes.Buffer
	printTracks(&buf, nil)
	assert.Equal(t, "(empty)\n", buf.String())

	buf.Reset()
	printTracks(&buf, []models.Track{{ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Author: "Rick Astley"}})
	assert.Contains(t, buf.String(), "Never Gonna Give You Up")
	assert.Contains(t, buf.String(), "dQw4w9WgXcQ")

	buf.Reset()
	printSearchResults(&buf, []models.SearchResult{{ID: "dQw4w9WgXcQ", Title: "Never Gonna", Channel: "Rick", Duration: "3:33"}})
	assert.Contains(t, buf.String(), "3:33")

	buf.Reset()
	printEntries(&buf, []models.DownloadEntry{{VideoID: "dQw4w9WgXcQ", Title: "Never", Status: models.StatusError}})
	assert.Contains(t, buf.String(), models.StatusError)
}

func TestDbViewRejectsUnknownStatus(t *testing.T) {
	orig := dbViewStatusFlag
	defer func() { dbViewStatusFlag = orig }()

	dbViewStatusFlag = "Pending"
	err := runDbView(dbViewCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}
