package library

import (
	"os"
	"path/filepath"

	"go-music-downloader/internal/helpers"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// Problem reasons reported by Verify.
const (
	ReasonMissing      = "Missing"
	ReasonHashMismatch = "Hash Mismatch"
	ReasonFailed       = "Failed"
)

// Problem is an entry whose file needs attention.
type Problem struct {
	Entry  models.DownloadEntry
	Reason string
}

// VerificationStats counts the outcome of a Verify pass.
type VerificationStats struct {
	TotalEntries      int
	FoundOk           int
	FoundHashMismatch int
	Missing           int
	Failed            int
}

// EntryPath is where an entry's audio file is expected on disk.
func EntryPath(entry models.DownloadEntry) string {
	return filepath.Join(entry.Folder, entry.Filename)
}

// Verify checks that every Downloaded entry's file exists and, when checkHash is
// set, still matches its recorded BLAKE3 digest. Error entries are reported as Failed.
func Verify(entries []models.DownloadEntry, checkHash bool) (VerificationStats, []Problem) {
	var stats VerificationStats
	var problems []Problem

	for _, entry := range entries {
		stats.TotalEntries++
		if entry.Status != models.StatusDownloaded {
			stats.Failed++
			problems = append(problems, Problem{Entry: entry, Reason: ReasonFailed})
			continue
		}

		expectedPath := EntryPath(entry)
		fields := log.Fields{"path": expectedPath, "videoId": entry.VideoID}
		_, statErr := os.Stat(expectedPath)
		switch {
		case os.IsNotExist(statErr) || entry.Filename == "":
			log.WithFields(fields).Error("[MISSING] File not found.")
			stats.Missing++
			problems = append(problems, Problem{Entry: entry, Reason: ReasonMissing})
		case statErr != nil:
			log.WithError(statErr).WithFields(fields).Error("[ERROR] Could not check file status.")
			stats.Missing++
			problems = append(problems, Problem{Entry: entry, Reason: ReasonMissing})
		case checkHash && !helpers.CheckHash(expectedPath, entry.Blake3):
			log.WithFields(fields).Warn("[MISMATCH] File exists but hash mismatch.")
			stats.FoundHashMismatch++
			problems = append(problems, Problem{Entry: entry, Reason: ReasonHashMismatch})
		default:
			log.WithFields(fields).Debug("[OK] File exists.")
			stats.FoundOk++
		}
	}
	return stats, problems
}

// Reindex rebuilds the search index from entries, returning how many were indexed.
// Entries that fail to index are logged and skipped.
func Reindex(idx bleve.Index, entries []models.DownloadEntry) int {
	count := 0
	for _, entry := range entries {
		if err := index.IndexEntry(idx, entry); err != nil {
			log.WithError(err).Warnf("Failed to index %s", entry.VideoID)
			continue
		}
		count++
	}
	return count
}
