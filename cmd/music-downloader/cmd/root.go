package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go-music-downloader/internal/api"
	"go-music-downloader/internal/config"
	"go-music-downloader/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Persistent flag values
var (
	cfgFile             string
	logLevel            string
	logFormat           string
	logApiFlag          bool
	savePathFlag        string
	playlistPathFlag    string
	thumbnailPathFlag   string
	settingsPathFlag    string
	databasePathFlag    string
	bleveIndexPathFlag  string
	apiTimeoutFlag      int
	maxRetriesFlag      int
	initialRetryDelayMs int
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper = http.DefaultTransport

// now is swapped in tests.
var now = time.Now

var rootCmd = &cobra.Command{
	Use:   "music-downloader",
	Short: "Search YouTube, download audio and manage playlists",
	Long: `Music Downloader searches YouTube, downloads the audio track of videos
into a local library and keeps JSON playlists of what you have.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadGlobalConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { api.CloseAllLoggingTransports() },
	Args:              cobra.NoArgs,
	Run:               runRoot,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml or ~/.config/music-downloader/config.toml)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	pf.StringVar(&savePathFlag, "save-path", "", "Directory to save audio files (overrides config)")
	pf.StringVar(&playlistPathFlag, "playlist-path", "", "Directory holding playlist JSON files (overrides config)")
	pf.StringVar(&thumbnailPathFlag, "thumbnail-path", "", "Directory to save thumbnails (overrides config)")
	pf.StringVar(&settingsPathFlag, "settings-path", "", "Settings JSON file (overrides config)")
	pf.StringVar(&databasePathFlag, "database-path", "", "Download database path (default <save-path>/music.db)")
	pf.StringVar(&bleveIndexPathFlag, "bleve-index-path", "", "Library search index path (default <save-path>/library.bleve)")
	pf.IntVar(&apiTimeoutFlag, "api-timeout", 0, "Timeout for API HTTP requests in seconds (overrides config)")
	pf.IntVar(&maxRetriesFlag, "max-retries", 0, "Attempts per API request or download (overrides config)")
	pf.IntVar(&initialRetryDelayMs, "retry-delay", 0, "Base delay between retries in ms (overrides config)")
}

func runRoot(cmd *cobra.Command, args []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s! Run '%s --help' to see what I can do.\n", greeting(now().Hour()), cmd.Root().Name())
}

// greeting picks the salutation for the given hour of the day.
func greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good Morning"
	case hour >= 12 && hour < 18:
		return "Good Afternoon"
	default:
		return "Good Evening"
	}
}

// initLogging configures logrus from the --log-level and --log-format values.
func initLogging(level, format string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level '%s', using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
}

// loadGlobalConfig merges defaults, config file, environment and the flags the
// user actually set, then prepares logging and the shared HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	initLogging(logLevel, logFormat)

	cliFlags := config.CliFlags{
		ConfigFilePath:      changedString(flags, "config"),
		LogLevel:            changedString(flags, "log-level"),
		LogFormat:           changedString(flags, "log-format"),
		LogApiRequests:      changedBool(flags, "log-api"),
		SavePath:            changedString(flags, "save-path"),
		PlaylistPath:        changedString(flags, "playlist-path"),
		ThumbnailPath:       changedString(flags, "thumbnail-path"),
		SettingsPath:        changedString(flags, "settings-path"),
		DatabasePath:        changedString(flags, "database-path"),
		BleveIndexPath:      changedString(flags, "bleve-index-path"),
		APIClientTimeoutSec: changedInt(flags, "api-timeout"),
		MaxRetries:          changedInt(flags, "max-retries"),
		InitialRetryDelayMs: changedInt(flags, "retry-delay"),
		Search:              searchCliFlags(flags),
		Download:            downloadCliFlags(flags),
		Torrent:             torrentCliFlags(flags),
	}

	cfg, transport, err := config.Initialize(cliFlags)
	if err != nil {
		return err
	}
	globalConfig = cfg
	globalHttpTransport = transport

	// LogLevel and LogFormat may come from the config file.
	initLogging(cfg.LogLevel, cfg.LogFormat)
	return nil
}

// changedString returns the value of flag name when the user set it on this
// command line, nil otherwise. Reading the flag itself lets several commands
// define the same flag name.
func changedString(flags *pflag.FlagSet, name string) *string {
	if f := flags.Lookup(name); f == nil || !f.Changed {
		return nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return nil
	}
	return &v
}

func changedInt(flags *pflag.FlagSet, name string) *int {
	if f := flags.Lookup(name); f == nil || !f.Changed {
		return nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return nil
	}
	return &v
}

func changedBool(flags *pflag.FlagSet, name string) *bool {
	if f := flags.Lookup(name); f == nil || !f.Changed {
		return nil
	}
	v, err := flags.GetBool(name)
	if err != nil {
		return nil
	}
	return &v
}

func changedStrings(flags *pflag.FlagSet, name string) *[]string {
	if f := flags.Lookup(name); f == nil || !f.Changed {
		return nil
	}
	v, err := flags.GetStringSlice(name)
	if err != nil {
		return nil
	}
	return &v
}

// httpClient returns a client using the shared transport. A zero timeout means
// none, which suits streaming downloads.
func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: globalHttpTransport}
}
