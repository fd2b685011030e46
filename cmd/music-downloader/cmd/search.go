package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go-music-downloader/internal/api"
	"go-music-downloader/internal/config"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/thumbnails"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	searchLimitFlag      int
	searchLanguageFlag   string
	searchRegionFlag     string
	searchThumbnailsFlag bool
	searchDownloadFlag   string
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search YouTube for music",
	Long: `Searches YouTube and lists the results. Use --thumbnails to save the preview
images and --download to queue some of the results, e.g. --download 1,3-5 or --download all.
Passing --download ? asks which results to download.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimitFlag, "limit", "l", config.DefaultSearchLimit, "Maximum number of results (overrides config)")
	searchCmd.Flags().StringVar(&searchLanguageFlag, "lang", config.DefaultSearchLanguage, "Interface language sent to YouTube (overrides config)")
	searchCmd.Flags().StringVar(&searchRegionFlag, "region", config.DefaultSearchRegion, "Region sent to YouTube (overrides config)")
	searchCmd.Flags().BoolVarP(&searchThumbnailsFlag, "thumbnails", "t", false, "Save result thumbnails to the thumbnail directory")
	searchCmd.Flags().StringVarP(&searchDownloadFlag, "download", "d", "", "Download the selected results (1,3-5, all or ?)")
	addDownloadFlags(searchCmd)
}

func searchCliFlags(flags *pflag.FlagSet) *config.CliSearchFlags {
	return &config.CliSearchFlags{
		Limit:    changedInt(flags, "limit"),
		Language: changedString(flags, "lang"),
		Region:   changedString(flags, "region"),
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	query := strings.Join(args, " ")

	client := api.NewClient(httpClient(time.Duration(cfg.APIClientTimeoutSec)*time.Second), cfg)
	log.Debugf("Searching for %q", query)
	outcome := <-client.SearchAsync(ctx, query, cfg.Search.Limit)
	if outcome.Err != nil {
		if errors.Is(outcome.Err, api.ErrRateLimited) {
			return fmt.Errorf("YouTube is rate limiting requests, try again later: %w", outcome.Err)
		}
		return fmt.Errorf("search failed: %w", outcome.Err)
	}

	results := outcome.Results
	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results for %q.\n", query)
		return nil
	}
	printSearchResults(cmd.OutOrStdout(), results)

	if searchThumbnailsFlag {
		loadThumbnails(ctx, cfg, results)
	}

	if !cmd.Flags().Changed("download") {
		return nil
	}
	selection := searchDownloadFlag
	if selection == "?" {
		if !isTerminal(os.Stdin) {
			return errors.New("--download ? needs an interactive terminal")
		}
		input, err := promptLine(os.Stdin, os.Stdout, "Enter numbers to download (e.g., 1,3,5 or 1-3 or 'all', or 'q' to cancel): ")
		if err != nil {
			return fmt.Errorf("reading selection: %w", err)
		}
		if input == "" || strings.EqualFold(input, "q") {
			log.Info("Nothing selected.")
			return nil
		}
		selection = input
	}

	links := selectedLinks(results, parseSelection(selection, len(results)))
	if len(links) == 0 {
		return fmt.Errorf("no downloadable results in selection %q", selection)
	}
	if !confirm(fmt.Sprintf("Download %d track(s)?", len(links)), cfg.Download.SkipConfirmation) {
		log.Info("Download cancelled.")
		return nil
	}
	return downloadLinks(ctx, cfg, links)
}

// selectedLinks returns the links of the chosen results, skipping results without one.
func selectedLinks(results []models.SearchResult, indices []int) []string {
	links := make([]string, 0, len(indices))
	for _, i := range indices {
		if results[i].Link == "" {
			log.Warnf("Result %d (%q) has no link, skipping", i+1, results[i].Title)
			continue
		}
		links = append(links, results[i].Link)
	}
	return links
}

func printSearchResults(w io.Writer, results []models.SearchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTitle\tChannel\tDuration\tViews\tPublished\tVideo ID")
	fmt.Fprintln(tw, "-\t-----\t-------\t--------\t-----\t---------\t--------")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			truncateString(r.Title, 50),
			truncateString(r.Channel, 25),
			r.Duration,
			r.ViewCount,
			r.PublishedTime,
			r.ID,
		)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing search results table")
	}
}

// loadThumbnails saves every result's thumbnail, reporting each one as it lands.
func loadThumbnails(ctx context.Context, cfg models.Config, results []models.SearchResult) {
	loader := thumbnails.NewLoader(httpClient(time.Duration(cfg.APIClientTimeoutSec)*time.Second), cfg.ThumbnailPath)
	saved := 0
	errc := loader.LoadAsync(ctx, results, func(i int, path string, err error) {
		if err != nil {
			log.WithError(err).Warnf("Thumbnail for result %d not saved", i+1)
			return
		}
		saved++
		log.Debugf("Thumbnail for result %d saved to %s", i+1, path)
	})
	if err := <-errc; err != nil {
		log.WithError(err).Warn("Thumbnail loading stopped early")
	}
	log.Infof("Saved %d of %d thumbnails to %s", saved, len(results), cfg.ThumbnailPath)
}
