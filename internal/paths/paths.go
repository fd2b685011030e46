package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go-music-downloader/internal/helpers"
)

// Tags that may appear in a filename pattern.
var allowedTags = map[string]struct{}{
	"videoId": {},
	"title":   {},
	"author":  {},
}

// Tags whose values are used verbatim instead of slugged. Video IDs may start
// with '-' or '_', which ConvertToSlug would trim.
var verbatimTags = map[string]*regexp.Regexp{
	"videoId": regexp.MustCompile(`^[A-Za-z0-9_-]+$`),
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// GeneratePath substitutes placeholders in a pattern string with sanitized values from the data map.
// It returns the generated relative path (without extension) or an error if substitution fails.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generatedPath := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName := match[1]
		tagWithBraces := match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag found in path pattern: %s", tagWithBraces)
		}

		value := data[tagName]
		var sanitizedValue string
		if re, ok := verbatimTags[tagName]; ok && re.MatchString(value) {
			sanitizedValue = value
		} else {
			sanitizedValue = helpers.ConvertToSlug(value)
		}
		if sanitizedValue == "" {
			sanitizedValue = "empty_" + tagName
		}

		generatedPath = strings.ReplaceAll(generatedPath, tagWithBraces, sanitizedValue)
	}

	cleanedPath := filepath.Clean(generatedPath)
	if cleanedPath == "." || cleanedPath == "" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}
	cleanedPath = strings.TrimPrefix(cleanedPath, string(filepath.Separator))

	for _, segment := range strings.Split(filepath.ToSlash(cleanedPath), "/") {
		if segment == ".." {
			return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleanedPath)
		}
	}

	return cleanedPath, nil
}
