package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/paths"

	"github.com/dustin/go-humanize"
	"github.com/kkdai/youtube/v2"
	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrNoLink        = errors.New("no link")
	ErrInvalidLink   = errors.New("not a valid video link")
	ErrNoAudioFormat = errors.New("no audio-only format available")
	ErrVideoLookup   = errors.New("video lookup failed")
	ErrStream        = errors.New("audio stream error")
	ErrFileSystem    = errors.New("filesystem error") // Covers create, remove, rename
)

// VideoSource resolves video metadata and opens media streams. *youtube.Client satisfies it.
type VideoSource interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// ProgressFunc receives the bytes written so far and the expected total (0 when unknown).
type ProgressFunc func(written, total int64)

// Result describes a finished download.
type Result struct {
	Track        models.Track
	Path         string
	MimeType     string
	Hash         string
	ThumbnailURL string
	Size         int64
	Skipped      bool
}

// Downloader fetches the audio track of a video into the save directory.
type Downloader struct {
	source VideoSource
	cfg    models.Config
}

// NewYouTubeClient returns a kkdai/youtube client sharing the given HTTP client.
func NewYouTubeClient(httpClient *http.Client) *youtube.Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Minute}
	}
	return &youtube.Client{HTTPClient: httpClient}
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(source VideoSource, cfg models.Config) *Downloader {
	if cfg.SavePath == "" {
		cfg.SavePath = "downloads"
	}
	if cfg.Download.FilenamePattern == "" {
		cfg.Download.FilenamePattern = "{videoId}"
	}
	return &Downloader{source: source, cfg: cfg}
}

// Download resolves link, picks the best audio-only format and stores it under
// the save directory. progress may be nil.
func (d *Downloader) Download(ctx context.Context, link string, progress ProgressFunc) (Result, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Result{}, ErrNoLink
	}
	link = models.NormalizeLink(link)

	video, err := d.source.GetVideoContext(ctx, link)
	if err != nil {
		if errors.Is(err, youtube.ErrInvalidCharactersInVideoID) || errors.Is(err, youtube.ErrVideoIDMinLength) {
			return Result{}, fmt.Errorf("%w: %s: %w", ErrInvalidLink, link, err)
		}
		return Result{}, fmt.Errorf("%w: %s: %w", ErrVideoLookup, link, err)
	}

	result := Result{
		Track:        models.Track{ID: video.ID, Title: video.Title, Author: video.Author},
		ThumbnailURL: bestThumbnail(video),
	}

	format, err := SelectAudioFormat(video, d.cfg.Download.PreferredContainer)
	if err != nil {
		return result, err
	}
	result.MimeType = format.MimeType

	relPath, err := paths.GeneratePath(d.cfg.Download.FilenamePattern, map[string]string{
		"videoId": video.ID,
		"title":   video.Title,
		"author":  video.Author,
	})
	if err != nil {
		return result, fmt.Errorf("building filename: %w", err)
	}
	targetPath := filepath.Join(d.cfg.SavePath, relPath+containerExtension(format.MimeType))

	if d.cfg.Download.SkipExisting {
		if existing, ok := findExisting(targetPath); ok {
			log.Infof("Found existing file %s, skipping download.", existing)
			result.Path = existing
			result.Skipped = true
			return d.finish(result)
		}
	}

	targetDir := filepath.Dir(targetPath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return result, fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(targetPath)+".*.tmp")
	if err != nil {
		return result, fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, targetPath, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	stream, size, err := d.source.GetStreamContext(ctx, video, format)
	if err != nil {
		_ = tempFile.Close()
		return result, fmt.Errorf("%w: opening stream for %s: %w", ErrStream, video.ID, err)
	}
	defer stream.Close()

	log.Infof("Downloading %q (%s, %s) to %s", video.Title, format.MimeType, humanize.Bytes(uint64(max(size, 0))), targetPath)

	counter := &helpers.CounterWriter{Writer: tempFile}
	if err := copyWithProgress(ctx, counter, stream, size, progress); err != nil {
		_ = tempFile.Close()
		return result, fmt.Errorf("%w: downloading %s: %w", ErrStream, video.ID, err)
	}
	if err := tempFile.Close(); err != nil {
		return result, fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if size > 0 && int64(counter.Total) != size {
		return result, fmt.Errorf("%w: short read for %s: got %d of %d bytes", ErrStream, video.ID, counter.Total, size)
	}

	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return result, fmt.Errorf("%w: renaming %s to %s: %w", ErrFileSystem, tempFile.Name(), targetPath, err)
	}
	shouldCleanupTemp = false
	result.Path = targetPath

	return d.finish(result)
}

// finish fills in size and hash for the file at result.Path.
func (d *Downloader) finish(result Result) (Result, error) {
	info, err := os.Stat(result.Path)
	if err != nil {
		return result, fmt.Errorf("%w: stat %s: %w", ErrFileSystem, result.Path, err)
	}
	result.Size = info.Size()

	hash, err := helpers.HashFile(result.Path)
	if err != nil {
		return result, err
	}
	result.Hash = hash
	log.Infof("Saved %s (%s)", result.Path, humanize.Bytes(uint64(result.Size)))
	return result, nil
}

const progressStep = 256 * 1024

// copyWithProgress copies src to dst, checking ctx between chunks and
// reporting progress roughly every progressStep bytes.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) error {
	buf := make([]byte, 32*1024)
	var written, lastReported int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			written += int64(n)
			if progress != nil && written-lastReported >= progressStep {
				progress(written, total)
				lastReported = written
			}
		}
		if readErr == io.EOF {
			if progress != nil {
				progress(written, total)
			}
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// SelectAudioFormat picks the audio-only format with the highest bitrate.
// When preferred names a container ("m4a", "webm"), formats in that container win.
func SelectAudioFormat(video *youtube.Video, preferred string) (*youtube.Format, error) {
	preferred = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(preferred)), ".")

	var best, bestPreferred *youtube.Format
	for i := range video.Formats {
		format := &video.Formats[i]
		if !isAudioOnly(format) {
			continue
		}
		if best == nil || bitrate(format) > bitrate(best) {
			best = format
		}
		if preferred != "" && strings.TrimPrefix(containerExtension(format.MimeType), ".") == preferred {
			if bestPreferred == nil || bitrate(format) > bitrate(bestPreferred) {
				bestPreferred = format
			}
		}
	}

	if bestPreferred != nil {
		return bestPreferred, nil
	}
	if best == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoAudioFormat, video.ID)
	}
	if preferred != "" {
		log.Warnf("No %s audio format for %s, using %s", preferred, video.ID, best.MimeType)
	}
	return best, nil
}

func isAudioOnly(f *youtube.Format) bool {
	if f.Width != 0 || f.Height != 0 {
		return false
	}
	return f.AudioChannels > 0 || strings.HasPrefix(f.MimeType, "audio/")
}

func bitrate(f *youtube.Format) int {
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}
	return f.Bitrate
}

// containerExtension maps a stream MIME type to a file extension, ".m4a" for audio/mp4.
func containerExtension(mimeType string) string {
	if ext, ok := helpers.GetExtensionFromMimeType(mimeType); ok {
		return ext
	}
	return ".audio"
}

func bestThumbnail(video *youtube.Video) string {
	var bestURL string
	var bestWidth uint
	for _, t := range video.Thumbnails {
		if bestURL == "" || t.Width > bestWidth {
			bestURL, bestWidth = t.URL, t.Width
		}
	}
	return bestURL
}

// findExisting looks for a non-empty file with the same base name as target, any extension.
func findExisting(target string) (string, bool) {
	dir := filepath.Dir(target)
	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) != base {
			continue
		}
		if info, err := entry.Info(); err == nil && info.Size() > 0 {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}
