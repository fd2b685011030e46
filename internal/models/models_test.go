package models

import (
	"encoding/json"
	"testing"
)

func TestStatusConstants(t *testing.T) {
	// Verify status constants have expected values
	if StatusDownloaded != "Downloaded" {
		t.Errorf("StatusDownloaded = %q, want %q", StatusDownloaded, "Downloaded")
	}
	if StatusError != "Error" {
		t.Errorf("StatusError = %q, want %q", StatusError, "Error")
	}
}

func TestPlaylistFile_JSON(t *testing.T) {
	pl := PlaylistFile{Musics: []Track{
		{ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Author: "Rick Astley"},
	}}

	data, err := json.Marshal(pl)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"musics":[{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","author":"Rick Astley"}]}`
	if string(data) != expected {
		t.Errorf("Marshal = %s, want %s", data, expected)
	}
}

func TestSettings_JSON(t *testing.T) {
	var s Settings
	if err := json.Unmarshal([]byte(`{"volume": 35, "playback_mode": "shuffle"}`), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if s.Volume != 35 {
		t.Errorf("Volume = %d, want 35", s.Volume)
	}
	if s.PlaybackMode != "shuffle" {
		t.Errorf("PlaybackMode = %q, want %q", s.PlaybackMode, "shuffle")
	}
}

func TestSearchResult_FirstThumbnail(t *testing.T) {
	r := SearchResult{ID: "abcdefghijk", Title: "Song", Channel: "Band"}
	if r.FirstThumbnail() != "" {
		t.Errorf("FirstThumbnail() on empty list = %q, want empty", r.FirstThumbnail())
	}
	r.Thumbnails = []Thumbnail{{URL: "https://i.ytimg.com/a.jpg"}, {URL: "https://i.ytimg.com/b.jpg"}}
	if r.FirstThumbnail() != "https://i.ytimg.com/a.jpg" {
		t.Errorf("FirstThumbnail() = %q", r.FirstThumbnail())
	}
}

func TestDownloadEntry_Track(t *testing.T) {
	e := DownloadEntry{VideoID: "abcdefghijk", Title: "Song", Author: "Band", Status: StatusDownloaded}
	if e.Track() != (Track{ID: "abcdefghijk", Title: "Song", Author: "Band"}) {
		t.Errorf("Track() = %+v", e.Track())
	}
	if DatabaseKey(e.VideoID) != "v_abcdefghijk" {
		t.Errorf("DatabaseKey = %q", DatabaseKey(e.VideoID))
	}
}

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare id", input: "dQw4w9WgXcQ", expected: YouTubePrefix + "dQw4w9WgXcQ"},
		{name: "bare id with spaces", input: "  dQw4w9WgXcQ ", expected: YouTubePrefix + "dQw4w9WgXcQ"},
		{name: "full link untouched", input: "https://youtu.be/dQw4w9WgXcQ", expected: "https://youtu.be/dQw4w9WgXcQ"},
		{name: "too short", input: "abc", expected: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeLink(tt.input); got != tt.expected {
				t.Errorf("NormalizeLink(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestVideoIDFromLink(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare id", input: "dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "watch link", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "watch link with extra params", input: "https://youtube.com/watch?list=PL1&v=dQw4w9WgXcQ&t=10", expected: "dQw4w9WgXcQ"},
		{name: "mobile link", input: "https://m.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "music link", input: "https://music.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "short link", input: "https://youtu.be/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "shorts", input: "https://www.youtube.com/shorts/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "embed", input: "https://www.youtube.com/embed/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "other host", input: "https://example.com/watch?v=dQw4w9WgXcQ", expected: ""},
		{name: "invalid id", input: "https://www.youtube.com/watch?v=short", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VideoIDFromLink(tt.input); got != tt.expected {
				t.Errorf("VideoIDFromLink(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
