package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/models"

	log "github.com/sirupsen/logrus"
)

// Playback modes.
const (
	ModeNormal    = "normal"
	ModeRepeat    = "repeat"
	ModeRepeatOne = "repeat_one"
	ModeShuffle   = "shuffle"
)

const (
	DefaultVolume = 50
	MinVolume     = 0
	MaxVolume     = 100
)

var ErrInvalidPlaybackMode = errors.New("invalid playback mode")

// Modes lists the accepted playback modes.
var Modes = []string{ModeNormal, ModeRepeat, ModeRepeatOne, ModeShuffle}

// Defaults returns the settings used when no file exists yet.
func Defaults() models.Settings {
	return models.Settings{Volume: DefaultVolume, PlaybackMode: ModeNormal}
}

// ClampVolume limits v to the 0..100 range.
func ClampVolume(v int) int {
	return max(MinVolume, min(MaxVolume, v))
}

// ParsePlaybackMode normalizes mode and checks it is one of Modes.
func ParsePlaybackMode(mode string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, m := range Modes {
		if m == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrInvalidPlaybackMode, mode, strings.Join(Modes, ", "))
}

// Store reads and writes the settings file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings. A missing file yields Defaults; fields absent from
// the file keep their default values.
func (s *Store) Load() (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := Defaults()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("reading settings %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return Defaults(), fmt.Errorf("decoding settings %s: %w", s.path, err)
	}

	settings.Volume = ClampVolume(settings.Volume)
	if mode, err := ParsePlaybackMode(settings.PlaybackMode); err == nil {
		settings.PlaybackMode = mode
	} else {
		settings.PlaybackMode = ModeNormal
	}
	return settings, nil
}

// Save validates and writes the settings, returning what was stored.
func (s *Store) Save(settings models.Settings) (models.Settings, error) {
	mode, err := ParsePlaybackMode(settings.PlaybackMode)
	if err != nil {
		return settings, err
	}
	settings.PlaybackMode = mode
	settings.Volume = ClampVolume(settings.Volume)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := helpers.WriteJSONAtomic(s.path, settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// Update loads the current settings, applies fn and saves the result. An
// unreadable file is replaced, starting from the defaults.
func (s *Store) Update(fn func(*models.Settings)) (models.Settings, error) {
	current, err := s.Load()
	if err != nil {
		log.WithError(err).Warn("Existing settings file is unreadable, starting from defaults")
		current = Defaults()
	}
	fn(&current)
	return s.Save(current)
}
