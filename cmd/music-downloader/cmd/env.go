package cmd

import (
	"errors"
	"time"

	"go-music-downloader/internal/database"
	"go-music-downloader/internal/downloader"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/playlist"
	"go-music-downloader/internal/queue"
	"go-music-downloader/internal/thumbnails"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// environment bundles the stores a command works against.
type environment struct {
	cfg       models.Config
	db        *database.DB
	index     bleve.Index // nil when the index could not be opened
	playlists *playlist.Store
	loader    *thumbnails.Loader
}

// openEnvironment opens the database and, when withIndex is set, the library
// index. A broken index only disables indexing.
func openEnvironment(cfg models.Config, withIndex bool) (*environment, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	env := &environment{
		cfg:       cfg,
		db:        db,
		playlists: playlist.NewStore(cfg.PlaylistPath),
		loader:    thumbnails.NewLoader(httpClient(time.Duration(cfg.APIClientTimeoutSec)*time.Second), cfg.ThumbnailPath),
	}
	if withIndex {
		idx, err := index.OpenOrCreateIndex(cfg.BleveIndexPath)
		if err != nil {
			log.WithError(err).Error("Failed to open or create library index. Search indexing will be disabled.")
		} else {
			env.index = idx
		}
	}
	return env, nil
}

func (e *environment) Close() error {
	var errs []error
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// newDownloader builds the audio downloader on the shared transport.
func (e *environment) newDownloader() *downloader.Downloader {
	return downloader.NewDownloader(downloader.NewYouTubeClient(httpClient(0)), e.cfg)
}

// hooks returns the post-download steps: record, playlist, index, thumbnail.
func (e *environment) hooks(playlistName string) []queue.Hook {
	hooks := []queue.Hook{queue.RecordHook(e.db), queue.PlaylistHook(e.playlists, models.DownloadsPlaylist)}
	if playlistName != "" && playlistName != models.DownloadsPlaylist {
		hooks = append(hooks, queue.PlaylistHook(e.playlists, playlistName))
	}
	if e.index != nil {
		hooks = append(hooks, queue.IndexHook(e.index))
	}
	if e.cfg.Download.SaveThumbnail {
		hooks = append(hooks, queue.ThumbnailHook(e.loader, e.db))
	}
	return hooks
}
