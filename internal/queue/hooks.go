package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go-music-downloader/internal/database"
	"go-music-downloader/internal/downloader"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/playlist"
	"go-music-downloader/internal/thumbnails"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// Hook is a named step run after a successful download.
type Hook struct {
	Name string
	Run  func(ctx context.Context, item Item, result downloader.Result) error
}

// EntryFromResult builds the database record for a finished download.
func EntryFromResult(item Item, result downloader.Result) models.DownloadEntry {
	return models.DownloadEntry{
		VideoID:   result.Track.ID,
		Title:     result.Track.Title,
		Author:    result.Track.Author,
		Link:      item.Link,
		Filename:  filepath.Base(result.Path),
		Folder:    filepath.Dir(result.Path),
		MimeType:  result.MimeType,
		Blake3:    result.Hash,
		Size:      result.Size,
		Status:    models.StatusDownloaded,
		Timestamp: time.Now().Unix(),
	}
}

// RecordHook stores the download in the database, keeping a thumbnail path
// recorded by an earlier run.
func RecordHook(db *database.DB) Hook {
	return Hook{Name: "database record", Run: func(_ context.Context, item Item, result downloader.Result) error {
		entry := EntryFromResult(item, result)
		if previous, err := db.GetEntry(entry.VideoID); err == nil {
			entry.Thumbnail = previous.Thumbnail
		}
		return db.PutEntry(entry)
	}}
}

// PlaylistHook appends the track to the named playlist.
func PlaylistHook(store *playlist.Store, name string) Hook {
	return Hook{Name: "playlist " + name, Run: func(_ context.Context, _ Item, result downloader.Result) error {
		added, err := store.Append(name, result.Track)
		if err != nil {
			return err
		}
		if !added {
			log.Debugf("%s is already in playlist %s", result.Track.ID, name)
		}
		return nil
	}}
}

// IndexHook adds the track to the library search index.
func IndexHook(idx bleve.Index) Hook {
	return Hook{Name: "library index", Run: func(_ context.Context, item Item, result downloader.Result) error {
		return index.IndexEntry(idx, EntryFromResult(item, result))
	}}
}

// ThumbnailHook saves the video's thumbnail and, when db is set, records its path.
func ThumbnailHook(loader *thumbnails.Loader, db *database.DB) Hook {
	return Hook{Name: "thumbnail", Run: func(ctx context.Context, _ Item, result downloader.Result) error {
		if result.ThumbnailURL == "" {
			return nil
		}
		path, err := loader.Fetch(ctx, result.Track.ID, result.ThumbnailURL)
		if err != nil {
			return err
		}
		if db == nil {
			return nil
		}
		entry, err := db.GetEntry(result.Track.ID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil
			}
			return err
		}
		entry.Thumbnail = path
		return db.PutEntry(entry)
	}}
}

// RecordFailure stores an Error record for a link that could not be downloaded.
// Cancelled downloads are not failures and leave the database alone. Links
// without a recognisable video id are only logged.
func RecordFailure(db *database.DB, outcome Outcome) error {
	if outcome.Err == nil || errors.Is(outcome.Err, context.Canceled) {
		return nil
	}
	videoID := outcome.Result.Track.ID
	if videoID == "" {
		videoID = models.VideoIDFromLink(outcome.Item.Link)
	}
	if videoID == "" {
		return fmt.Errorf("no video id in %q", outcome.Item.Link)
	}

	entry, err := db.GetEntry(videoID)
	if err == nil && entry.Status == models.StatusDownloaded {
		return nil
	}
	entry = models.DownloadEntry{
		VideoID:      videoID,
		Title:        outcome.Result.Track.Title,
		Author:       outcome.Result.Track.Author,
		Link:         outcome.Item.Link,
		Status:       models.StatusError,
		ErrorDetails: outcome.Err.Error(),
		Timestamp:    time.Now().Unix(),
	}
	return db.PutEntry(entry)
}
