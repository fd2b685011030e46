package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGeneratePath_BasicSubstitution(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		data     map[string]string
		expected string
		wantErr  bool
	}{
		{
			name:     "video id only",
			pattern:  "{videoId}",
			data:     map[string]string{"videoId": "dQw4w9WgXcQ"},
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "video id keeps leading dash and case",
			pattern:  "{videoId}",
			data:     map[string]string{"videoId": "-Abc_def123"},
			expected: "-Abc_def123",
		},
		{
			name:     "author folder and title",
			pattern:  "{author}/{title}",
			data:     map[string]string{"author": "Rick Astley", "title": "Never Gonna Give You Up"},
			expected: "rick_astley/never_gonna_give_you_up",
		},
		{
			name:     "title with id suffix",
			pattern:  "{title}-{videoId}",
			data:     map[string]string{"title": "Song", "videoId": "dQw4w9WgXcQ"},
			expected: "song-dQw4w9WgXcQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratePath(tt.pattern, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("GeneratePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != filepath.FromSlash(tt.expected) {
				t.Errorf("GeneratePath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGeneratePath_EmptyValues(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		data     map[string]string
		expected string
	}{
		{
			name:     "missing value uses fallback",
			pattern:  "{author}/{title}",
			data:     map[string]string{"title": "Test"},
			expected: "empty_author/test",
		},
		{
			name:     "empty string value uses fallback",
			pattern:  "{author}/{title}",
			data:     map[string]string{"author": "", "title": "Test"},
			expected: "empty_author/test",
		},
		{
			name:     "value that slugs to nothing",
			pattern:  "{title}",
			data:     map[string]string{"title": "!!!"},
			expected: "empty_title",
		},
		{
			name:     "all empty values",
			pattern:  "{author}/{videoId}",
			data:     map[string]string{},
			expected: "empty_author/empty_videoId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratePath(tt.pattern, tt.data)
			if err != nil {
				t.Fatalf("GeneratePath() unexpected error: %v", err)
			}
			if got != filepath.FromSlash(tt.expected) {
				t.Errorf("GeneratePath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGeneratePath_UnknownTags(t *testing.T) {
	tests := []struct {
		pattern string
		data    map[string]string
		name    string
	}{
		{
			name:    "unknown tag",
			pattern: "{unknownTag}",
			data:    map[string]string{"unknownTag": "value"},
		},
		{
			name:    "mixed known and unknown tags",
			pattern: "{title}/{album}",
			data:    map[string]string{"title": "Test", "album": "value"},
		},
		{
			name:    "wrong case in tag name",
			pattern: "{videoid}",
			data:    map[string]string{"videoId": "dQw4w9WgXcQ"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GeneratePath(tt.pattern, tt.data)
			if err == nil {
				t.Fatalf("GeneratePath() expected error for unknown tag, got nil")
			}
			if !strings.Contains(err.Error(), "unknown tag") {
				t.Errorf("GeneratePath() error should mention 'unknown tag', got: %v", err)
			}
		})
	}
}

func TestGeneratePath_SpecialCharacters(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		data     map[string]string
		expected string
	}{
		{
			name:     "special characters sanitized",
			pattern:  "{title}",
			data:     map[string]string{"title": "Song (Official Video) [HD]"},
			expected: "song_official_video_hd",
		},
		{
			name:     "colon becomes dash",
			pattern:  "{title}",
			data:     map[string]string{"title": "Artist: Song"},
			expected: "artist-song",
		},
		{
			name:     "slash in title does not create a folder",
			pattern:  "{title}",
			data:     map[string]string{"title": "AC/DC Live"},
			expected: "acdc_live",
		},
		{
			name:     "invalid video id is slugged",
			pattern:  "{videoId}",
			data:     map[string]string{"videoId": "abc/def"},
			expected: "abcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratePath(tt.pattern, tt.data)
			if err != nil {
				t.Fatalf("GeneratePath() unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("GeneratePath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGeneratePath_PathTraversal(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		data    map[string]string
		wantErr bool
	}{
		{
			name:    "traversal in data is flattened",
			pattern: "{title}",
			data:    map[string]string{"title": "../../../etc/passwd"},
		},
		{
			name:    "dot dot title",
			pattern: "{title}",
			data:    map[string]string{"title": ".."},
			wantErr: true,
		},
		{
			name:    "traversal in pattern",
			pattern: "../{videoId}",
			data:    map[string]string{"videoId": "dQw4w9WgXcQ"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratePath(tt.pattern, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GeneratePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, segment := range strings.Split(filepath.ToSlash(got), "/") {
				if segment == ".." {
					t.Errorf("GeneratePath() result contains path traversal: %v", got)
				}
			}
		})
	}
}

func TestGeneratePath_NoPlaceholders(t *testing.T) {
	got, err := GeneratePath("static/path/here", map[string]string{})
	if err != nil {
		t.Errorf("GeneratePath() unexpected error: %v", err)
	}
	if got != filepath.FromSlash("static/path/here") {
		t.Errorf("GeneratePath() = %v, want static/path/here", got)
	}
}

func TestGeneratePath_EmptyPattern(t *testing.T) {
	if _, err := GeneratePath("", nil); err == nil {
		t.Error("GeneratePath() expected error for empty pattern")
	}
}

func TestGeneratePath_AllAllowedTags(t *testing.T) {
	for _, tag := range []string{"videoId", "title", "author"} {
		t.Run(tag, func(t *testing.T) {
			got, err := GeneratePath("{"+tag+"}", map[string]string{tag: "test-value"})
			if err != nil {
				t.Errorf("GeneratePath() with tag %s returned error: %v", tag, err)
			}
			if got != "test-value" {
				t.Errorf("GeneratePath() with tag %s = %v, want test-value", tag, got)
			}
		})
	}
}
