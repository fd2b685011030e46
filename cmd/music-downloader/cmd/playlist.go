package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"go-music-downloader/internal/database"
	"go-music-downloader/internal/library"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/playlist"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	playlistExportOutput   string
	playlistExportRelative bool
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Manage JSON playlists",
	Long: `Playlists are stored one per file as <playlist-path>/<name>.json. The downloads
playlist lists every track that has been downloaded.`,
}

var playlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List playlists and their track counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := playlistStore()
		names, err := store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No playlists in %s.\n", store.Dir())
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Name\tTracks")
		fmt.Fprintln(tw, "----\t------")
		for _, name := range names {
			pl, err := store.Load(name)
			if err != nil {
				log.WithError(err).Warnf("Could not read playlist %s", name)
				fmt.Fprintf(tw, "%s\t?\n", name)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\n", name, len(pl.Musics))
		}
		return tw.Flush()
	},
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := playlistStore().Create(args[0]); err != nil {
			return err
		}
		log.Infof("Created playlist %s", args[0])
		return nil
	},
}

var playlistShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the tracks of a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := playlistStore().Load(args[0])
		if err != nil {
			return err
		}
		printTracks(cmd.OutOrStdout(), pl.Musics)
		return nil
	},
}

var playlistAddCmd = &cobra.Command{
	Use:   "add NAME VIDEO_ID...",
	Short: "Append downloaded tracks to a playlist",
	Long: `Appends tracks to a playlist. Titles and authors are taken from the download
database, so the videos must have been downloaded first. Tracks already in the
playlist are left where they are.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		store := playlistStore()
		if !store.Exists(name) && name != models.DownloadsPlaylist {
			return fmt.Errorf("%w: %s", playlist.ErrNotFound, name)
		}

		db, err := database.Open(globalConfig.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		added := 0
		for _, arg := range args[1:] {
			id := models.VideoIDFromLink(arg)
			if id == "" {
				log.Warnf("%q is not a video id or link, skipping", arg)
				continue
			}
			entry, err := db.GetEntry(id)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					log.Warnf("%s has not been downloaded, skipping", id)
					continue
				}
				return err
			}
			ok, err := store.Append(name, entry.Track())
			if err != nil {
				return err
			}
			if !ok {
				log.Infof("%s is already in %s", id, name)
				continue
			}
			added++
		}
		log.Infof("Added %d track(s) to %s", added, name)
		return nil
	},
}

var playlistRemoveCmd = &cobra.Command{
	Use:   "remove NAME POSITION",
	Short: "Remove the track at POSITION (1-based)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := parsePosition(args[1])
		if err != nil {
			return err
		}
		track, err := playlistStore().Remove(args[0], pos)
		if err != nil {
			return err
		}
		log.Infof("Removed %q from %s", track.Title, args[0])
		return nil
	},
}

var playlistMoveCmd = &cobra.Command{
	Use:   "move NAME FROM TO",
	Short: "Move a track to a new position (1-based)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parsePosition(args[1])
		if err != nil {
			return err
		}
		to, err := parsePosition(args[2])
		if err != nil {
			return err
		}
		return playlistStore().Move(args[0], from, to)
	},
}

var playlistDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a playlist file (audio files are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Delete playlist %s?", args[0]), globalConfig.Download.SkipConfirmation) {
			log.Info("Deletion canceled.")
			return nil
		}
		if err := playlistStore().Delete(args[0]); err != nil {
			return err
		}
		log.Infof("Deleted playlist %s", args[0])
		return nil
	},
}

var playlistRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return playlistStore().Rename(args[0], args[1])
	},
}

var playlistExportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Export a playlist as an extended M3U file",
	Long: `Writes the playlist as extended M3U, pointing at the downloaded audio files.
Tracks that are not on disk are left out. Writes to stdout unless --output is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlaylistExport,
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistListCmd, playlistCreateCmd, playlistShowCmd, playlistAddCmd,
		playlistRemoveCmd, playlistMoveCmd, playlistDeleteCmd, playlistRenameCmd, playlistExportCmd)

	playlistDeleteCmd.Flags().BoolVarP(&downloadYesFlag, "yes", "y", false, "Skip confirmation prompt")
	playlistExportCmd.Flags().StringVarP(&playlistExportOutput, "output", "o", "", "Write the M3U playlist to this file")
	playlistExportCmd.Flags().BoolVar(&playlistExportRelative, "relative", false, "Use paths relative to the output file")
}

func playlistStore() *playlist.Store {
	return playlist.NewStore(globalConfig.PlaylistPath)
}

// parsePosition turns a 1-based position argument into an index.
func parsePosition(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid position %q: must be a number starting at 1", arg)
	}
	return n - 1, nil
}

func printTracks(w io.Writer, tracks []models.Track) {
	if len(tracks) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTitle\tAuthor\tVideo ID")
	fmt.Fprintln(tw, "-\t-----\t------\t--------")
	for i, t := range tracks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, truncateString(t.Title, 50), truncateString(t.Author, 25), t.ID)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing track table")
	}
}

func runPlaylistExport(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	baseDir := ""
	if playlistExportOutput != "" && playlistExportRelative {
		baseDir = filepath.Dir(playlistExportOutput)
	}
	resolve := entryResolver(db, baseDir)

	if playlistExportOutput == "" {
		_, err := playlistStore().Export(args[0], cmd.OutOrStdout(), resolve)
		return err
	}

	f, err := os.Create(playlistExportOutput)
	if err != nil {
		return fmt.Errorf("creating %s: %w", playlistExportOutput, err)
	}
	n, err := playlistStore().Export(args[0], f, resolve)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	log.Infof("Exported %d track(s) to %s", n, playlistExportOutput)
	return nil
}

// entryResolver locates a track's audio file through the database. With a
// baseDir, paths are made relative to it; otherwise they are absolute.
func entryResolver(db *database.DB, baseDir string) playlist.ResolveFunc {
	return func(track models.Track) (string, float64, bool) {
		entry, err := db.GetEntry(track.ID)
		if err != nil || entry.Status != models.StatusDownloaded {
			return "", 0, false
		}
		path := library.EntryPath(entry)
		if _, err := os.Stat(path); err != nil {
			return "", 0, false
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", 0, false
		}
		if baseDir != "" {
			absBase, err := filepath.Abs(baseDir)
			if err == nil {
				if rel, err := filepath.Rel(absBase, abs); err == nil {
					return filepath.ToSlash(rel), -1, true
				}
			}
		}
		return abs, -1, true
	}
}
