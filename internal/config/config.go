package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-music-downloader/internal/api"
	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/paths"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultSavePath            = "downloads"
	DefaultPlaylistPath        = "playlists"
	DefaultThumbnailPath       = "thumbnails"
	DefaultSettingsPath        = "settings.json"
	DefaultDatabaseFile        = "music.db"      // Inside SavePath unless DatabasePath is set
	DefaultBleveIndexDir       = "library.bleve" // Inside SavePath unless BleveIndexPath is set
	DefaultLogApiRequests      = false
	DefaultAPIClientTimeoutSec = 10
	DefaultMaxRetries          = 3
	DefaultInitialRetryDelayMs = 1000
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultConfigName          = "config"
	DefaultConfigType          = "toml"
	EnvPrefix                  = "MUSICDL"

	DefaultSearchLimit    = 15
	DefaultSearchLanguage = "en"
	DefaultSearchRegion   = "US"

	DefaultFilenamePattern = "{videoId}"
	DefaultSaveThumbnail   = true
	DefaultSkipExisting    = false

	DefaultTorrentMagnetLinks = false
	DefaultTorrentOverwrite   = false
)

var logFormats = []string{"text", "json"}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault("playlistpath", DefaultPlaylistPath)
	v.SetDefault("thumbnailpath", DefaultThumbnailPath)
	v.SetDefault("settingspath", DefaultSettingsPath)
	v.SetDefault("databasepath", "")
	v.SetDefault("bleveindexpath", "")
	v.SetDefault("logapirequests", DefaultLogApiRequests)
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("maxretries", DefaultMaxRetries)
	v.SetDefault("initialretrydelayms", DefaultInitialRetryDelayMs)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)

	v.SetDefault("search.limit", DefaultSearchLimit)
	v.SetDefault("search.language", DefaultSearchLanguage)
	v.SetDefault("search.region", DefaultSearchRegion)

	v.SetDefault("download.filenamepattern", DefaultFilenamePattern)
	v.SetDefault("download.playlist", models.DownloadsPlaylist)
	v.SetDefault("download.preferredcontainer", "")
	v.SetDefault("download.savethumbnail", DefaultSaveThumbnail)
	v.SetDefault("download.skipexisting", DefaultSkipExisting)
	v.SetDefault("download.skipconfirmation", false)

	v.SetDefault("torrent.outputdir", "")
	v.SetDefault("torrent.trackers", []string{})
	v.SetDefault("torrent.magnetlinks", DefaultTorrentMagnetLinks)
	v.SetDefault("torrent.overwrite", DefaultTorrentOverwrite)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath      *string
	LogLevel            *string // --log-level
	LogFormat           *string // --log-format
	LogApiRequests      *bool   // --log-api
	SavePath            *string // --save-path
	PlaylistPath        *string // --playlist-path
	ThumbnailPath       *string // --thumbnail-path
	SettingsPath        *string // --settings-path
	DatabasePath        *string // --database-path
	BleveIndexPath      *string // --bleve-index-path
	APIClientTimeoutSec *int    // --api-timeout
	MaxRetries          *int    // --max-retries
	InitialRetryDelayMs *int    // --retry-delay

	Search   *CliSearchFlags
	Download *CliDownloadFlags
	Torrent  *CliTorrentFlags
}

type CliSearchFlags struct {
	Limit    *int    // --limit
	Language *string // --lang
	Region   *string // --region
}

type CliDownloadFlags struct {
	FilenamePattern    *string // --filename-pattern
	Playlist           *string // --playlist
	PreferredContainer *string // --container
	SaveThumbnail      *bool   // --thumbnail
	SkipExisting       *bool   // --skip-existing
	SkipConfirmation   *bool   // --yes
}

type CliTorrentFlags struct {
	AnnounceURLs *[]string // --announce
	OutputDir    *string   // -o
	Overwrite    *bool     // -f
	MagnetLinks  *bool     // --magnet-links
}

// newViper returns a Viper instance with defaults, env binding and the config
// file location applied. An explicit path must exist; otherwise config.toml is
// looked up in the working directory and then ~/.config/music-downloader.
func newViper(configFilePath *string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)

	if configFilePath != nil && *configFilePath != "" {
		v.SetConfigFile(*configFilePath)
		return v
	}
	v.SetConfigName(DefaultConfigName)
	v.SetConfigType(DefaultConfigType)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "music-downloader"))
	}
	return v
}

// Initialize loads configuration based on defaults, config file, and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	var finalCfg models.Config

	v := newViper(flags.ConfigFilePath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			log.Debug("[Initialize] No config file found. Using defaults and CLI flags only.")
		case flags.ConfigFilePath != nil && errors.Is(err, os.ErrNotExist):
			log.Warnf("[Initialize] Config file '%s' not found. Using defaults and CLI flags only.", *flags.ConfigFilePath)
		default:
			return models.Config{}, nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		log.Debugf("[Initialize] Read config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&finalCfg, flags)

	if finalCfg.DatabasePath == "" {
		finalCfg.DatabasePath = filepath.Join(finalCfg.SavePath, DefaultDatabaseFile)
	}
	if finalCfg.BleveIndexPath == "" {
		finalCfg.BleveIndexPath = filepath.Join(finalCfg.SavePath, DefaultBleveIndexDir)
	}
	if finalCfg.Torrent.OutputDir == "" {
		finalCfg.Torrent.OutputDir = finalCfg.SavePath
	}

	if err := Validate(finalCfg); err != nil {
		return models.Config{}, nil, err
	}

	var finalTransport http.RoundTripper = http.DefaultTransport
	if finalCfg.LogApiRequests {
		logFilePath := "api.log"
		if _, statErr := os.Stat(finalCfg.SavePath); statErr == nil {
			logFilePath = filepath.Join(finalCfg.SavePath, logFilePath)
		} else {
			log.Warnf("SavePath '%s' not found, saving api.log to current directory.", finalCfg.SavePath)
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			finalTransport = loggingTransport
		}
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, finalTransport, nil
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	setString(&cfg.SavePath, flags.SavePath)
	setString(&cfg.PlaylistPath, flags.PlaylistPath)
	setString(&cfg.ThumbnailPath, flags.ThumbnailPath)
	setString(&cfg.SettingsPath, flags.SettingsPath)
	setString(&cfg.DatabasePath, flags.DatabasePath)
	setString(&cfg.BleveIndexPath, flags.BleveIndexPath)
	setString(&cfg.LogLevel, flags.LogLevel)
	setString(&cfg.LogFormat, flags.LogFormat)
	setBool(&cfg.LogApiRequests, flags.LogApiRequests)
	setInt(&cfg.APIClientTimeoutSec, flags.APIClientTimeoutSec)
	setInt(&cfg.MaxRetries, flags.MaxRetries)
	setInt(&cfg.InitialRetryDelayMs, flags.InitialRetryDelayMs)

	if flags.Search != nil {
		setInt(&cfg.Search.Limit, flags.Search.Limit)
		setString(&cfg.Search.Language, flags.Search.Language)
		setString(&cfg.Search.Region, flags.Search.Region)
	}

	if flags.Download != nil {
		setString(&cfg.Download.FilenamePattern, flags.Download.FilenamePattern)
		setString(&cfg.Download.Playlist, flags.Download.Playlist)
		setString(&cfg.Download.PreferredContainer, flags.Download.PreferredContainer)
		setBool(&cfg.Download.SaveThumbnail, flags.Download.SaveThumbnail)
		setBool(&cfg.Download.SkipExisting, flags.Download.SkipExisting)
		setBool(&cfg.Download.SkipConfirmation, flags.Download.SkipConfirmation)
	}

	if flags.Torrent != nil {
		if flags.Torrent.AnnounceURLs != nil && len(*flags.Torrent.AnnounceURLs) > 0 {
			cfg.Torrent.Trackers = *flags.Torrent.AnnounceURLs
		}
		setString(&cfg.Torrent.OutputDir, flags.Torrent.OutputDir)
		setBool(&cfg.Torrent.Overwrite, flags.Torrent.Overwrite)
		setBool(&cfg.Torrent.MagnetLinks, flags.Torrent.MagnetLinks)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// Validate checks the merged configuration for values that would fail later.
func Validate(cfg models.Config) error {
	var problems []string

	if cfg.SavePath == "" {
		problems = append(problems, "SavePath cannot be empty (set via --save-path flag or SavePath in config)")
	}
	if cfg.PlaylistPath == "" {
		problems = append(problems, "PlaylistPath cannot be empty")
	}
	if cfg.Search.Limit <= 0 {
		problems = append(problems, fmt.Sprintf("Search.Limit must be positive, got %d", cfg.Search.Limit))
	}
	if cfg.APIClientTimeoutSec <= 0 {
		problems = append(problems, fmt.Sprintf("ApiClientTimeoutSec must be positive, got %d", cfg.APIClientTimeoutSec))
	}
	if cfg.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("MaxRetries must be at least 1, got %d", cfg.MaxRetries))
	}
	if cfg.InitialRetryDelayMs < 0 {
		problems = append(problems, fmt.Sprintf("InitialRetryDelayMs cannot be negative, got %d", cfg.InitialRetryDelayMs))
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("invalid LogLevel %q", cfg.LogLevel))
	}
	if !helpers.StringSliceContains(logFormats, cfg.LogFormat) {
		problems = append(problems, fmt.Sprintf("LogFormat must be text or json, got %q", cfg.LogFormat))
	}
	if _, err := paths.GeneratePath(cfg.Download.FilenamePattern, map[string]string{
		"videoId": "dQw4w9WgXcQ", "title": "title", "author": "author",
	}); err != nil {
		problems = append(problems, fmt.Sprintf("Download.FilenamePattern: %v", err))
	}
	if err := validatePlaylistName(cfg.Download.Playlist); err != nil {
		problems = append(problems, fmt.Sprintf("Download.Playlist: %v", err))
	}
	switch strings.TrimPrefix(strings.ToLower(cfg.Download.PreferredContainer), ".") {
	case "", "m4a", "webm":
	default:
		problems = append(problems, fmt.Sprintf("Download.PreferredContainer must be m4a, webm or empty, got %q", cfg.Download.PreferredContainer))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validatePlaylistName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid playlist name %q", name)
	}
	return nil
}
