package library

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/models"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
)

const pieceLength = 512 * 1024 // 512 KiB

var (
	ErrNoTrackers = errors.New("at least one valid tracker URL is required")
	ErrNoFiles    = errors.New("no downloaded files to share")
)

// TorrentOptions controls how a library torrent is built and written.
type TorrentOptions struct {
	Name       string   // Torrent name, also the .torrent base name
	BaseDir    string   // Files are stored in the torrent relative to this directory
	OutputDir  string   // Where the .torrent (and magnet file) go; BaseDir when empty
	Trackers   []string // Announce URLs
	Overwrite  bool
	MagnetLink bool
}

// TorrentResult describes what GenerateTorrent produced.
type TorrentResult struct {
	TorrentPath string
	MagnetPath  string
	MagnetURI   string
	Files       int
	TotalSize   int64
	Skipped     bool
}

// GenerateTorrent writes a .torrent containing the audio files of every
// Downloaded entry that still exists under opts.BaseDir.
func GenerateTorrent(entries []models.DownloadEntry, opts TorrentOptions) (TorrentResult, error) {
	var result TorrentResult

	trackers := ValidateTrackers(opts.Trackers)
	if len(trackers) == 0 {
		return result, ErrNoTrackers
	}
	if opts.Name == "" {
		opts.Name = "music-library"
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = opts.BaseDir
	}
	if !helpers.CheckAndMakeDir(outputDir) {
		return result, fmt.Errorf("error creating output directory %s", outputDir)
	}
	result.TorrentPath = filepath.Join(outputDir, helpers.ConvertToSlug(opts.Name)+".torrent")
	magnetPath := magnetFilePath(result.TorrentPath)

	if !opts.Overwrite {
		if _, err := os.Stat(result.TorrentPath); err == nil {
			log.WithField("path", result.TorrentPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			result.Skipped = true
			if _, err := os.Stat(magnetPath); err == nil {
				result.MagnetPath = magnetPath
			}
			return result, nil
		}
	}

	files, err := collectFiles(entries, opts.BaseDir)
	if err != nil {
		return result, err
	}
	if len(files) == 0 {
		return result, ErrNoFiles
	}

	info := metainfo.Info{
		Name:        opts.Name,
		PieceLength: pieceLength,
		Files:       files,
	}
	if err := info.GeneratePieces(func(fi metainfo.FileInfo) (io.ReadCloser, error) {
		return os.Open(helpers.SanitizePath(filepath.Join(append([]string{opts.BaseDir}, fi.Path...)...)))
	}); err != nil {
		return result, fmt.Errorf("error hashing torrent pieces: %w", err)
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return result, fmt.Errorf("error marshaling torrent info: %w", err)
	}
	mi := &metainfo.MetaInfo{
		InfoBytes:    infoBytes,
		Announce:     trackers[0],
		AnnounceList: [][]string{trackers},
		CreatedBy:    "go-music-downloader",
		CreationDate: time.Now().Unix(),
	}

	if err := writeTorrentFile(result.TorrentPath, mi); err != nil {
		return result, err
	}
	log.WithField("path", result.TorrentPath).Infof("Generated torrent with %d files", len(files))

	result.Files = len(files)
	result.TotalSize = info.TotalLength()
	result.MagnetURI = MagnetURI(mi, info.Name)

	if opts.MagnetLink {
		if err := helpers.WriteFileAtomic(magnetPath, []byte(result.MagnetURI)); err != nil {
			log.WithError(err).WithField("path", magnetPath).Error("Failed to write magnet link file")
		} else {
			result.MagnetPath = magnetPath
		}
	}
	return result, nil
}

// collectFiles lists the on-disk files of Downloaded entries relative to baseDir,
// sorted by path. Missing files and files outside baseDir are skipped.
func collectFiles(entries []models.DownloadEntry, baseDir string) ([]metainfo.FileInfo, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", baseDir, err)
	}

	seen := make(map[string]struct{})
	var files []metainfo.FileInfo
	for _, entry := range entries {
		if entry.Status != models.StatusDownloaded || entry.Filename == "" {
			continue
		}
		fullPath, err := filepath.Abs(filepath.Join(entry.Folder, entry.Filename))
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absBase, fullPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			log.WithField("path", fullPath).Warnf("File is outside %s, leaving it out of the torrent", baseDir)
			continue
		}
		stat, err := os.Stat(fullPath)
		if err != nil || stat.IsDir() {
			log.WithField("videoId", entry.VideoID).Warnf("File %s not found, leaving it out of the torrent", fullPath)
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		files = append(files, metainfo.FileInfo{
			Length: stat.Size(),
			Path:   strings.Split(filepath.ToSlash(rel), "/"),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.Join(files[i].Path, "/") < strings.Join(files[j].Path, "/")
	})
	return files, nil
}

// ValidateTrackers returns the http, https and udp tracker URLs from trackers.
func ValidateTrackers(trackers []string) []string {
	valid := make([]string, 0, len(trackers))
	for _, tracker := range trackers {
		parsedURL, err := url.Parse(tracker)
		if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https" && parsedURL.Scheme != "udp") {
			log.WithField("tracker", tracker).Warn("Invalid or unsupported tracker URL provided, skipping.")
			continue
		}
		valid = append(valid, tracker)
	}
	return valid
}

// MagnetURI builds a magnet link with the info hash, display name and trackers.
func MagnetURI(mi *metainfo.MetaInfo, name string) string {
	parts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(name)),
	}

	seen := make(map[string]struct{})
	add := func(tracker string) {
		if tracker == "" {
			return
		}
		if _, ok := seen[tracker]; ok {
			return
		}
		seen[tracker] = struct{}{}
		parts = append(parts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
	}
	add(mi.Announce)
	for _, tier := range mi.AnnounceList {
		for _, tracker := range tier {
			add(tracker)
		}
	}
	return strings.Join(parts, "&")
}

func magnetFilePath(torrentPath string) string {
	base := strings.TrimSuffix(filepath.Base(torrentPath), filepath.Ext(torrentPath))
	return filepath.Join(filepath.Dir(torrentPath), base+"-magnet.txt")
}

func writeTorrentFile(outPath string, mi *metainfo.MetaInfo) (err error) {
	f, err := os.Create(helpers.SanitizePath(outPath))
	if err != nil {
		return fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing torrent file %s: %w", outPath, closeErr)
			_ = os.Remove(outPath)
		}
	}()

	if err := mi.Write(f); err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	return nil
}
