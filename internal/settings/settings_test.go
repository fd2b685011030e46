package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go-music-downloader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampVolume(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0}, {0, 0}, {42, 42}, {100, 100}, {150, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampVolume(tt.in), "ClampVolume(%d)", tt.in)
	}
}

func TestParsePlaybackMode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "normal", want: ModeNormal},
		{input: "Shuffle", want: ModeShuffle},
		{input: " repeat ", want: ModeRepeat},
		{input: "repeat-one", want: ModeRepeatOne},
		{input: "repeat_one", want: ModeRepeatOne},
		{input: "loop", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePlaybackMode(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidPlaybackMode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, models.Settings{Volume: 50, PlaybackMode: "normal"}, got)
}

func TestLoad_FileValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.Settings
		wantErr bool
	}{
		{name: "full", content: `{"volume": 80, "playback_mode": "shuffle"}`, want: models.Settings{Volume: 80, PlaybackMode: ModeShuffle}},
		{name: "partial keeps defaults", content: `{"playback_mode": "repeat"}`, want: models.Settings{Volume: 50, PlaybackMode: ModeRepeat}},
		{name: "volume clamped", content: `{"volume": 400, "playback_mode": "normal"}`, want: models.Settings{Volume: 100, PlaybackMode: ModeNormal}},
		{name: "unknown mode falls back", content: `{"volume": 10, "playback_mode": "party"}`, want: models.Settings{Volume: 10, PlaybackMode: ModeNormal}},
		{name: "invalid json", content: `{"volume":`, want: Defaults(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			got, err := NewStore(path).Load()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveAndUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.json")
	store := NewStore(path)

	saved, err := store.Save(models.Settings{Volume: 120, PlaybackMode: "Repeat-One"})
	require.NoError(t, err)
	assert.Equal(t, models.Settings{Volume: 100, PlaybackMode: ModeRepeatOne}, saved)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"volume": 100, "playback_mode": "repeat_one"}`, string(data))

	_, err = store.Save(models.Settings{Volume: 10, PlaybackMode: "party"})
	assert.True(t, errors.Is(err, ErrInvalidPlaybackMode))

	updated, err := store.Update(func(s *models.Settings) { s.Volume = 30 })
	require.NoError(t, err)
	assert.Equal(t, models.Settings{Volume: 30, PlaybackMode: ModeRepeatOne}, updated)

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)
}

func TestUpdateReplacesUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"volume":`), 0600))
	store := NewStore(path)

	updated, err := store.Update(func(s *models.Settings) { s.PlaybackMode = ModeShuffle })
	require.NoError(t, err)
	assert.Equal(t, models.Settings{Volume: DefaultVolume, PlaybackMode: ModeShuffle}, updated)

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)
}
