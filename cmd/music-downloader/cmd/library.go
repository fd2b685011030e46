package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"go-music-downloader/internal/config"
	"go-music-downloader/internal/database"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/library"
	"go-music-downloader/internal/models"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	librarySearchLimitFlag int
	torrentAnnounceURLs    []string
	torrentOutputDir       string
	torrentOverwrite       bool
	torrentMagnetLinks     bool
	torrentNameFlag        string
	torrentPlaylistFlag    string
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Search and share the local music library",
}

var librarySearchCmd = &cobra.Command{
	Use:   "search [QUERY...]",
	Short: "Full-text search over downloaded tracks",
	Long: `Searches the local library index. Plain words match titles and authors; field
queries such as author:astley or title:"never gonna" are supported. With no query
every indexed track is listed.`,
	RunE: runLibrarySearch,
}

var libraryReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the library index from the download database",
	Args:  cobra.NoArgs,
	RunE:  runLibraryReindex,
}

var libraryTorrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate a .torrent of the downloaded audio files",
	Long: `Generates a single BitTorrent metainfo (.torrent) file containing every
downloaded audio file, or only the tracks of one playlist with --playlist.
You must specify tracker announce URLs with --announce or Torrent.Trackers.`,
	Args: cobra.NoArgs,
	RunE: runLibraryTorrent,
}

func init() {
	rootCmd.AddCommand(libraryCmd)
	libraryCmd.AddCommand(librarySearchCmd, libraryReindexCmd, libraryTorrentCmd)

	librarySearchCmd.Flags().IntVarP(&librarySearchLimitFlag, "limit", "l", 20, "Maximum number of hits")

	libraryTorrentCmd.Flags().StringSliceVar(&torrentAnnounceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	libraryTorrentCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save the .torrent file (default: save path)")
	libraryTorrentCmd.Flags().BoolVarP(&torrentOverwrite, "overwrite", "f", false, "Overwrite an existing .torrent file")
	libraryTorrentCmd.Flags().BoolVar(&torrentMagnetLinks, "magnet-links", false, "Also write a -magnet.txt file with the magnet link")
	libraryTorrentCmd.Flags().StringVar(&torrentNameFlag, "name", "", "Torrent name (default: music-library or the playlist name)")
	libraryTorrentCmd.Flags().StringVar(&torrentPlaylistFlag, "playlist", "", "Only include the tracks of this playlist")
}

func torrentCliFlags(flags *pflag.FlagSet) *config.CliTorrentFlags {
	return &config.CliTorrentFlags{
		AnnounceURLs: changedStrings(flags, "announce"),
		OutputDir:    changedString(flags, "output-dir"),
		Overwrite:    changedBool(flags, "overwrite"),
		MagnetLinks:  changedBool(flags, "magnet-links"),
	}
}

func runLibrarySearch(cmd *cobra.Command, args []string) error {
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	query := strings.Join(args, " ")
	hits, err := index.Search(idx, query, librarySearchLimitFlag)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching tracks. Run 'library reindex' if the index is out of date.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tTitle\tAuthor\tFile\tVideo ID")
	fmt.Fprintln(tw, "-----\t-----\t------\t----\t--------")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", h.Score, truncateString(h.Title, 50), truncateString(h.Author, 25), h.Filename, h.ID)
	}
	return tw.Flush()
}

func runLibraryReindex(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	entries, err := db.Entries()
	db.Close()
	if err != nil {
		return err
	}

	if err := os.RemoveAll(globalConfig.BleveIndexPath); err != nil {
		return fmt.Errorf("removing old index %s: %w", globalConfig.BleveIndexPath, err)
	}
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	count := library.Reindex(idx, entries)
	log.Infof("Indexed %d of %d database entries.", count, len(entries))
	return nil
}

func runLibraryTorrent(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	if len(cfg.Torrent.Trackers) == 0 {
		return errors.New("at least one --announce URL is required")
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	entries, err := db.Entries()
	db.Close()
	if err != nil {
		return err
	}

	name := torrentNameFlag
	if torrentPlaylistFlag != "" {
		entries, err = playlistEntries(torrentPlaylistFlag, entries)
		if err != nil {
			return err
		}
		if name == "" {
			name = torrentPlaylistFlag
		}
	}

	res, err := library.GenerateTorrent(entries, library.TorrentOptions{
		Name:       name,
		BaseDir:    cfg.SavePath,
		OutputDir:  cfg.Torrent.OutputDir,
		Trackers:   cfg.Torrent.Trackers,
		Overwrite:  cfg.Torrent.Overwrite,
		MagnetLink: cfg.Torrent.MagnetLinks,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Skipped {
		fmt.Fprintf(out, "Torrent already exists: %s (use --overwrite to replace)\n", res.TorrentPath)
		return nil
	}
	fmt.Fprintf(out, "Torrent: %s (%d files, %s)\n", res.TorrentPath, res.Files, humanize.Bytes(uint64(res.TotalSize)))
	fmt.Fprintf(out, "Magnet:  %s\n", res.MagnetURI)
	if res.MagnetPath != "" {
		fmt.Fprintf(out, "Magnet link saved to %s\n", res.MagnetPath)
	}
	return nil
}

// playlistEntries keeps the entries of tracks in the named playlist, in playlist order.
func playlistEntries(name string, entries []models.DownloadEntry) ([]models.DownloadEntry, error) {
	pl, err := playlistStore().Load(name)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.DownloadEntry, len(entries))
	for _, e := range entries {
		byID[e.VideoID] = e
	}
	selected := make([]models.DownloadEntry, 0, len(pl.Musics))
	for _, track := range pl.Musics {
		if e, ok := byID[track.ID]; ok {
			selected = append(selected, e)
		} else {
			log.Warnf("%s (%q) is not in the download database, leaving it out", track.ID, track.Title)
		}
	}
	return selected, nil
}
