package helpers

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var (
	multiUnderscore = regexp.MustCompile(`_+`)
	multiDash       = regexp.MustCompile(`-+`)
)

// ConvertToSlug turns an arbitrary title into something safe to use as a path segment.
// Letters and digits (any script) are kept and lowercased, whitespace becomes '_',
// ':' becomes '-', '.', '_' and '-' are kept, everything else is dropped.
func ConvertToSlug(str string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(str) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case r == ':':
			b.WriteRune('-')
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}

	slug := multiUnderscore.ReplaceAllString(b.String(), "_")
	slug = strings.ReplaceAll(slug, "_-", "-")
	slug = strings.ReplaceAll(slug, "-_", "-")
	slug = multiDash.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "_-")
}

// SanitizePath cleans a path so it can be handed to os.Open* without surprises.
func SanitizePath(path string) string {
	return filepath.Clean(path)
}

// StringSliceContains reports whether item is in slice, ignoring case.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"audio/mp4":  ".m4a",
	"audio/webm": ".webm",
	"audio/mpeg": ".mp3",
	"audio/ogg":  ".ogg",
	"audio/opus": ".opus",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// GetExtensionFromMimeType maps a MIME type (parameters allowed) to a file extension.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	ext, ok := mimeExtensions[strings.ToLower(mediaType)]
	return ext, ok
}

// CheckAndMakeDir makes sure dir exists, creating it (and parents) if needed.
func CheckAndMakeDir(dir string) bool {
	dir = SanitizePath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// CounterWriter counts the bytes written through it.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// HashFile returns the hex BLAKE3-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(SanitizePath(path))
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckHash reports whether the file at path has the expected BLAKE3 digest.
// An empty expectation never matches.
func CheckHash(path string, expected string) bool {
	if expected == "" {
		return false
	}
	got, err := HashFile(path)
	if err != nil {
		log.WithError(err).Debugf("Could not hash %s", path)
		return false
	}
	return strings.EqualFold(got, expected)
}

// WriteJSONAtomic writes v as indented JSON to path with WriteFileAtomic.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to path through a temp file and rename, so
// readers never see a partial file. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if !CheckAndMakeDir(dir) {
		return fmt.Errorf("failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
