package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/models"

	"github.com/grafov/m3u8"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotFound        = errors.New("playlist not found")
	ErrExists          = errors.New("playlist already exists")
	ErrInvalidName     = errors.New("invalid playlist name")
	ErrIndexOutOfRange = errors.New("track index out of range")
)

const fileExt = ".json"

// Store keeps one JSON file per playlist in a directory. Every change
// rewrites the whole file.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory playlists are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateName rejects names that are empty or would escape the playlist directory.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if trimmed == "." || trimmed == ".." || strings.ContainsAny(trimmed, `/\`) || strings.ContainsRune(trimmed, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

// List returns the playlist names, sorted. A missing directory yields no playlists.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading playlist directory %s: %w", s.dir, err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a playlist file exists for name.
func (s *Store) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	info, err := os.Stat(s.path(name))
	return err == nil && !info.IsDir()
}

// Create writes a new, empty playlist.
func (s *Store) Create(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Exists(name) {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	return s.save(name, models.PlaylistFile{Musics: []models.Track{}})
}

// Load reads a playlist.
func (s *Store) Load(name string) (models.PlaylistFile, error) {
	if err := ValidateName(name); err != nil {
		return models.PlaylistFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name)
}

func (s *Store) load(name string) (models.PlaylistFile, error) {
	var pl models.PlaylistFile
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return pl, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return pl, fmt.Errorf("reading playlist %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &pl); err != nil {
		return pl, fmt.Errorf("decoding playlist %s: %w", name, err)
	}
	if pl.Musics == nil {
		pl.Musics = []models.Track{}
	}
	return pl, nil
}

// Save replaces the playlist's contents.
func (s *Store) Save(name string, pl models.PlaylistFile) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(name, pl)
}

func (s *Store) save(name string, pl models.PlaylistFile) error {
	if pl.Musics == nil {
		pl.Musics = []models.Track{}
	}
	if err := helpers.WriteJSONAtomic(s.path(name), pl); err != nil {
		return fmt.Errorf("saving playlist %s: %w", name, err)
	}
	return nil
}

// update loads name, applies fn and saves the result when fn reports a change.
func (s *Store) update(name string, fn func(pl *models.PlaylistFile) (bool, error)) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pl, err := s.load(name)
	if err != nil {
		return err
	}
	changed, err := fn(&pl)
	if err != nil || !changed {
		return err
	}
	return s.save(name, pl)
}

// Append adds track to the end of the playlist. The downloads playlist is
// created on demand; any other playlist must already exist. A track whose id
// is already present is not added again and Append returns false.
func (s *Store) Append(name string, track models.Track) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	if track.ID == "" {
		return false, fmt.Errorf("track has no id")
	}

	if name == models.DownloadsPlaylist {
		s.mu.Lock()
		if !s.Exists(name) {
			if err := s.save(name, models.PlaylistFile{}); err != nil {
				s.mu.Unlock()
				return false, err
			}
			log.Debugf("Created playlist %s", name)
		}
		s.mu.Unlock()
	}

	added := false
	err := s.update(name, func(pl *models.PlaylistFile) (bool, error) {
		for _, existing := range pl.Musics {
			if existing.ID == track.ID {
				return false, nil
			}
		}
		pl.Musics = append(pl.Musics, track)
		added = true
		return true, nil
	})
	return added, err
}

// Remove deletes the track at index and returns it.
func (s *Store) Remove(name string, index int) (models.Track, error) {
	var removed models.Track
	err := s.update(name, func(pl *models.PlaylistFile) (bool, error) {
		if index < 0 || index >= len(pl.Musics) {
			return false, fmt.Errorf("%w: %d (playlist has %d tracks)", ErrIndexOutOfRange, index, len(pl.Musics))
		}
		removed = pl.Musics[index]
		pl.Musics = append(pl.Musics[:index], pl.Musics[index+1:]...)
		return true, nil
	})
	return removed, err
}

// Move takes the track at from and reinserts it at to, shifting the tracks in between.
func (s *Store) Move(name string, from, to int) error {
	return s.update(name, func(pl *models.PlaylistFile) (bool, error) {
		n := len(pl.Musics)
		if from < 0 || from >= n || to < 0 || to >= n {
			return false, fmt.Errorf("%w: move %d -> %d (playlist has %d tracks)", ErrIndexOutOfRange, from, to, n)
		}
		if from == to {
			return false, nil
		}
		track := pl.Musics[from]
		rest := append(pl.Musics[:from:from], pl.Musics[from+1:]...)
		moved := make([]models.Track, 0, n)
		moved = append(moved, rest[:to]...)
		moved = append(moved, track)
		moved = append(moved, rest[to:]...)
		pl.Musics = moved
		return true, nil
	})
}

// Delete removes the playlist file.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("deleting playlist %s: %w", name, err)
	}
	return nil
}

// Rename moves a playlist to a new name that must not be taken.
func (s *Store) Rename(oldName, newName string) error {
	if err := ValidateName(oldName); err != nil {
		return err
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Exists(oldName) {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if s.Exists(newName) {
		return fmt.Errorf("%w: %s", ErrExists, newName)
	}
	if err := os.Rename(s.path(oldName), s.path(newName)); err != nil {
		return fmt.Errorf("renaming playlist %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// ResolveFunc maps a track to the location of its audio file and its duration
// in seconds (negative when unknown). ok=false leaves the track out of an export.
type ResolveFunc func(track models.Track) (uri string, seconds float64, ok bool)

// Export writes the playlist to w as an extended M3U playlist and returns the
// number of tracks written.
func (s *Store) Export(name string, w io.Writer, resolve ResolveFunc) (int, error) {
	pl, err := s.Load(name)
	if err != nil {
		return 0, err
	}

	capacity := uint(len(pl.Musics))
	if capacity == 0 {
		capacity = 1
	}
	media, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return 0, fmt.Errorf("creating m3u playlist: %w", err)
	}

	written := 0
	for _, track := range pl.Musics {
		uri, seconds, ok := resolve(track)
		if !ok {
			log.Warnf("Skipping %q (%s): no local file", track.Title, track.ID)
			continue
		}
		title := track.Title
		if track.Author != "" {
			title = track.Author + " - " + track.Title
		}
		if err := media.Append(uri, seconds, title); err != nil {
			return written, fmt.Errorf("adding %s to m3u playlist: %w", track.ID, err)
		}
		written++
	}
	media.Close()

	if _, err := media.Encode().WriteTo(w); err != nil {
		return written, fmt.Errorf("writing m3u playlist: %w", err)
	}
	return written, nil
}
