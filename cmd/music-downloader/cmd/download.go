package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go-music-downloader/internal/config"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/playlist"
	"go-music-downloader/internal/queue"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Download flag values, shared by every command that queues downloads.
var (
	downloadPatternFlag      string
	downloadPlaylistFlag     string
	downloadContainerFlag    string
	downloadThumbnailFlag    bool
	downloadSkipExistingFlag bool
	downloadYesFlag          bool
)

var downloadCmd = &cobra.Command{
	Use:   "download LINK_OR_ID...",
	Short: "Download the audio of one or more videos",
	Long: `Queues each link (or bare 11-character video ID) and downloads them one at a time,
in order. Every finished track is recorded in the database, appended to the
downloads playlist and indexed for 'library search'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addDownloadFlags(downloadCmd)
}

// addDownloadFlags registers the download flags on cmd.
func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&downloadPatternFlag, "filename-pattern", config.DefaultFilenamePattern, "File name pattern using {videoId}, {title}, {author} (overrides config)")
	cmd.Flags().StringVarP(&downloadPlaylistFlag, "playlist", "p", "", "Also append downloads to this playlist (created if missing)")
	cmd.Flags().StringVar(&downloadContainerFlag, "container", "", "Preferred audio container: m4a or webm (overrides config)")
	cmd.Flags().BoolVar(&downloadThumbnailFlag, "thumbnail", config.DefaultSaveThumbnail, "Save the video thumbnail (overrides config)")
	cmd.Flags().BoolVar(&downloadSkipExistingFlag, "skip-existing", false, "Reuse files already on disk instead of downloading (overrides config)")
	cmd.Flags().BoolVarP(&downloadYesFlag, "yes", "y", false, "Skip confirmation prompts")
}

func downloadCliFlags(flags *pflag.FlagSet) *config.CliDownloadFlags {
	return &config.CliDownloadFlags{
		FilenamePattern:    changedString(flags, "filename-pattern"),
		Playlist:           changedString(flags, "playlist"),
		PreferredContainer: changedString(flags, "container"),
		SaveThumbnail:      changedBool(flags, "thumbnail"),
		SkipExisting:       changedBool(flags, "skip-existing"),
		SkipConfirmation:   changedBool(flags, "yes"),
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	return downloadLinks(cmd.Context(), globalConfig, args)
}

// downloadLinks queues links and processes them on the download manager
// until the queue drains or the user interrupts.
func downloadLinks(ctx context.Context, cfg models.Config, links []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	env, err := openEnvironment(cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			log.WithError(err).Error("Error closing stores")
		}
	}()

	if err := ensurePlaylist(env.playlists, cfg.Download.Playlist); err != nil {
		return err
	}

	display := newProgressDisplay(len(links))
	var failures int
	manager := queue.NewManager(env.newDownloader(), queue.Options{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.InitialRetryDelayMs) * time.Millisecond,
		OnStart:    display.start,
		OnProgress: display.progress,
		OnResult: func(outcome queue.Outcome) {
			if errors.Is(outcome.Err, context.Canceled) {
				log.Infof("Download of %s cancelled", outcome.Item.Link)
				return
			}
			display.result(outcome)
			if outcome.Err != nil {
				failures++
				if err := queue.RecordFailure(env.db, outcome); err != nil {
					log.WithError(err).Debug("Could not record failed download")
				}
			}
		},
	}, env.hooks(cfg.Download.Playlist)...)

	queued := 0
	for _, link := range links {
		if _, err := manager.Add(link); err != nil {
			log.WithError(err).Warnf("Not queueing %q", link)
			continue
		}
		queued++
	}
	if queued == 0 {
		display.stop()
		return errors.New("nothing to download")
	}
	display.total = queued

	go interruptOnSignal(ctx, sigs, manager.Interrupt, cancel)
	manager.Start(ctx)
	manager.Wait()
	display.stop()

	if pending := manager.Pending(); len(pending) > 0 {
		log.Warnf("Interrupted with %d link(s) still queued.", len(pending))
	}
	if failures > 0 {
		return fmt.Errorf("%d download(s) failed", failures)
	}
	return nil
}

// interruptOnSignal stops the queue before its next item on the first signal
// and aborts the download in flight on the second. It returns once ctx is done.
func interruptOnSignal(ctx context.Context, sigs <-chan os.Signal, interrupt func(), cancel context.CancelFunc) {
	interrupted := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if !interrupted {
				interrupted = true
				log.Warn("Interrupted: finishing the current download. Press Ctrl-C again to abort it.")
				interrupt()
				continue
			}
			log.Warn("Aborting the current download.")
			cancel()
			return
		}
	}
}

// ensurePlaylist creates name unless it already exists. The downloads playlist
// is created on demand by the store.
func ensurePlaylist(store *playlist.Store, name string) error {
	if name == "" || name == models.DownloadsPlaylist || store.Exists(name) {
		return nil
	}
	if err := store.Create(name); err != nil && !errors.Is(err, playlist.ErrExists) {
		return err
	}
	log.Infof("Created playlist %s", name)
	return nil
}
