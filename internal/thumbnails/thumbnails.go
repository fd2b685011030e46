package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNoThumbnail = errors.New("result has no thumbnail")
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrNotImage    = errors.New("response is not an image")
)

const maxThumbnailSize = 10 << 20

// LoadedFunc is called once per result, in order. path is empty when err is set.
type LoadedFunc func(index int, path string, err error)

// Loader fetches search result thumbnails into a local directory.
type Loader struct {
	client *http.Client
	dir    string
	// run holds the interrupt flag of the most recently started load.
	run atomic.Pointer[atomic.Bool]
}

// NewLoader creates a Loader that saves into dir.
func NewLoader(client *http.Client, dir string) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{client: client, dir: dir}
}

// Interrupt stops the most recently started Load before its next item.
func (l *Loader) Interrupt() {
	if flag := l.run.Load(); flag != nil {
		flag.Store(true)
	}
}

// begin gives a new load its own interrupt flag.
func (l *Loader) begin() *atomic.Bool {
	flag := new(atomic.Bool)
	l.run.Store(flag)
	return flag
}

// Load fetches the first thumbnail of each result in order, calling onLoaded
// after each one. A failed item is reported and skipped. Load returns early,
// with the context error if any, once interrupted or cancelled.
func (l *Loader) Load(ctx context.Context, results []models.SearchResult, onLoaded LoadedFunc) error {
	return l.load(ctx, l.begin(), results, onLoaded)
}

func (l *Loader) load(ctx context.Context, interrupted *atomic.Bool, results []models.SearchResult, onLoaded LoadedFunc) error {
	for i, r := range results {
		if interrupted.Load() {
			log.Debugf("Thumbnail loading interrupted at %d/%d", i, len(results))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := l.Fetch(ctx, r.ID, r.FirstThumbnail())
		if err != nil {
			log.WithError(err).Warnf("Could not load thumbnail for %q", r.Title)
			path = ""
		}
		if onLoaded != nil {
			onLoaded(i, path, err)
		}
	}
	return nil
}

// LoadAsync runs Load on its own goroutine. An Interrupt issued once LoadAsync
// has returned applies to this run. The returned channel receives Load's error
// (possibly nil) and is then closed.
func (l *Loader) LoadAsync(ctx context.Context, results []models.SearchResult, onLoaded LoadedFunc) <-chan error {
	interrupted := l.begin()
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- l.load(ctx, interrupted, results, onLoaded)
	}()
	return done
}

// Fetch downloads url and stores it as <dir>/<videoID><ext>, the extension
// following the detected image type. It returns the saved path.
func (l *Loader) Fetch(ctx context.Context, videoID, url string) (string, error) {
	if url == "" {
		return "", ErrNoThumbnail
	}
	if videoID == "" {
		return "", fmt.Errorf("thumbnail %s has no video id", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating thumbnail request for %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting thumbnail %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received status %d for %s", ErrHttpStatus, resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailSize))
	if err != nil {
		return "", fmt.Errorf("reading thumbnail %s: %w", url, err)
	}

	mimeType := http.DetectContentType(data)
	ext, ok := imageExtension(mimeType)
	if !ok {
		if ext, ok = imageExtension(resp.Header.Get("Content-Type")); !ok {
			return "", fmt.Errorf("%w: %s (%s)", ErrNotImage, url, mimeType)
		}
	}

	if !helpers.CheckAndMakeDir(l.dir) {
		return "", fmt.Errorf("failed to create thumbnail directory %s", l.dir)
	}
	finalPath := filepath.Join(l.dir, videoID+ext)
	if err := helpers.WriteFileAtomic(finalPath, data); err != nil {
		return "", err
	}
	log.Debugf("Saved thumbnail %s", finalPath)
	return finalPath, nil
}

// imageExtension maps an image/* MIME type to its file extension.
func imageExtension(mimeType string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return "", false
	}
	return helpers.GetExtensionFromMimeType(mimeType)
}
