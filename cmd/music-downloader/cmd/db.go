package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go-music-downloader/internal/database"
	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/library"
	"go-music-downloader/internal/models"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Package-level variables for db flags
var (
	dbVerifyCheckHashFlag bool
	dbRemoveKeepFileFlag  bool
	dbViewStatusFlag      string
)

// dbCmd represents the base command for database operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the download database",
	Long:  `Perform operations like viewing, verifying, or managing entries in the download database.`,
}

var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View entries stored in the database",
	Long:  `Lists the tracks that have been recorded in the database, downloaded or failed.`,
	Args:  cobra.NoArgs,
	RunE:  runDbView,
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify database entries against the filesystem and optionally redownload",
	Long: `Checks that the files listed in the database exist at their expected locations,
optionally verifies their BLAKE3 hashes, and offers to redownload missing,
mismatched or failed tracks.`,
	Args: cobra.NoArgs,
	RunE: runDbVerify,
}

var dbRemoveCmd = &cobra.Command{
	Use:   "remove VIDEO_ID...",
	Short: "Remove tracks from the database, the library index and disk",
	Long: `Removes the database entry and library index document of each track and deletes
its audio file unless --keep-file is given. Playlists are not changed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDbRemove,
}

var dbRedownloadCmd = &cobra.Command{
	Use:   "redownload VIDEO_ID...",
	Short: "Download tracks recorded in the database again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDbRedownload,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd, dbVerifyCmd, dbRemoveCmd, dbRedownloadCmd)

	dbViewCmd.Flags().StringVar(&dbViewStatusFlag, "status", "", "Only show entries with this status (Downloaded, Error)")
	dbVerifyCmd.Flags().BoolVar(&dbVerifyCheckHashFlag, "check-hash", false, "Also compare BLAKE3 hashes of existing files")
	dbVerifyCmd.Flags().BoolVarP(&downloadYesFlag, "yes", "y", false, "Redownload every problem without prompting")
	dbRemoveCmd.Flags().BoolVar(&dbRemoveKeepFileFlag, "keep-file", false, "Only remove database and index entries, keep the audio file")
	dbRemoveCmd.Flags().BoolVarP(&downloadYesFlag, "yes", "y", false, "Skip confirmation prompt")
	addDownloadFlags(dbRedownloadCmd)
}

// entryStatuses are the statuses a database entry can have.
var entryStatuses = []string{models.StatusDownloaded, models.StatusError}

func runDbView(cmd *cobra.Command, args []string) error {
	if dbViewStatusFlag != "" && !helpers.StringSliceContains(entryStatuses, dbViewStatusFlag) {
		return fmt.Errorf("unknown status %q: want one of %s", dbViewStatusFlag, strings.Join(entryStatuses, ", "))
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Entries()
	if err != nil {
		return err
	}
	if dbViewStatusFlag != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if strings.EqualFold(e.Status, dbViewStatusFlag) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	printEntries(cmd.OutOrStdout(), entries)
	log.Infof("Displayed %d entries.", len(entries))
	return nil
}

func printEntries(w io.Writer, entries []models.DownloadEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Video ID\tTitle\tAuthor\tFile\tSize\tStatus\tDownloaded")
	fmt.Fprintln(tw, "--------\t-----\t------\t----\t----\t------\t----------")
	for _, e := range entries {
		when := ""
		if e.Timestamp > 0 {
			when = humanize.Time(time.Unix(e.Timestamp, 0))
		}
		file := library.EntryPath(e)
		if e.Filename == "" {
			file = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.VideoID,
			truncateString(e.Title, 40),
			truncateString(e.Author, 20),
			truncateString(file, 40),
			humanize.Bytes(uint64(max(e.Size, 0))),
			e.Status,
			when,
		)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
}

func runDbVerify(cmd *cobra.Command, args []string) error {
	log.Info("Verifying database entries against filesystem...")

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	entries, err := db.Entries()
	db.Close()
	if err != nil {
		return err
	}

	stats, problems := library.Verify(entries, dbVerifyCheckHashFlag)
	log.Infof("Scan Summary: Total Entries=%d, OK=%d, Missing=%d, Mismatch=%d, Failed=%d",
		stats.TotalEntries, stats.FoundOk, stats.Missing, stats.FoundHashMismatch, stats.Failed)

	if len(problems) == 0 {
		log.Info("No missing, mismatched or failed tracks found.")
		return nil
	}

	var links []string
	for _, p := range problems {
		label := fmt.Sprintf("%q (%s) - %s. Redownload?", p.Entry.Title, p.Entry.VideoID, p.Reason)
		if !confirm(label, globalConfig.Download.SkipConfirmation) {
			log.Infof("Skipping redownload for %s.", p.Entry.VideoID)
			continue
		}
		links = append(links, redownloadLink(p.Entry))
	}
	if len(links) == 0 {
		return nil
	}
	return redownload(cmd, links)
}

// redownloadLink prefers the recorded link and falls back to the video id.
func redownloadLink(entry models.DownloadEntry) string {
	if entry.Link != "" {
		return entry.Link
	}
	return models.NormalizeLink(entry.VideoID)
}

// redownload queues links with SkipExisting off so damaged files get replaced.
func redownload(cmd *cobra.Command, links []string) error {
	cfg := globalConfig
	cfg.Download.SkipExisting = false
	return downloadLinks(cmd.Context(), cfg, links)
}

func runDbRedownload(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	var links []string
	for _, arg := range args {
		id := models.VideoIDFromLink(arg)
		entry, err := db.GetEntry(id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) || id == "" {
				log.Errorf("No database entry found for %q", arg)
				continue
			}
			db.Close()
			return err
		}
		links = append(links, redownloadLink(entry))
	}
	db.Close()

	if len(links) == 0 {
		return errors.New("nothing to redownload")
	}
	return redownload(cmd, links)
}

func runDbRemove(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(globalConfig, true)
	if err != nil {
		return err
	}
	defer env.Close()

	var entries []models.DownloadEntry
	for _, arg := range args {
		id := models.VideoIDFromLink(arg)
		entry, err := env.db.GetEntry(id)
		if err != nil {
			log.WithError(err).Warnf("No database entry for %q", arg)
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return errors.New("no matching entries")
	}

	printEntries(cmd.OutOrStdout(), entries)
	if !confirm(fmt.Sprintf("Remove %d entries? This cannot be undone.", len(entries)), globalConfig.Download.SkipConfirmation) {
		log.Info("Removal canceled.")
		return nil
	}

	var errs []error
	for _, entry := range entries {
		if err := removeEntry(env, entry, dbRemoveKeepFileFlag); err != nil {
			errs = append(errs, err)
		}
	}
	log.Infof("Removal complete: %d removed, %d errors", len(entries)-len(errs), len(errs))
	return errors.Join(errs...)
}

// removeEntry deletes the audio file (unless keepFile), the index document and
// the database record of entry.
func removeEntry(env *environment, entry models.DownloadEntry, keepFile bool) error {
	if !keepFile && entry.Filename != "" {
		path := library.EntryPath(entry)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file %s: %w", path, err)
		}
		log.Infof("Deleted file: %s", path)
	}
	if env.index != nil {
		if err := index.DeleteEntry(env.index, entry.VideoID); err != nil {
			log.WithError(err).Warn("Could not remove index document")
		}
	}
	if err := env.db.DeleteEntry(entry.VideoID); err != nil {
		return fmt.Errorf("failed to delete database entry for %s: %w", entry.VideoID, err)
	}
	return nil
}
