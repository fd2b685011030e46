package models

import (
	"net/url"
	"regexp"
	"strings"
)

// YouTubePrefix is prepended to bare video IDs to build a watch link.
const YouTubePrefix = "https://www.youtube.com/watch?v="

// DownloadsPlaylist is the playlist every successful download is appended to.
const DownloadsPlaylist = "downloads"

type (
	// Config holds the application's configuration settings.
	Config struct {
		SavePath            string         `toml:"SavePath" json:"SavePath"`
		PlaylistPath        string         `toml:"PlaylistPath" json:"PlaylistPath"`
		ThumbnailPath       string         `toml:"ThumbnailPath" json:"ThumbnailPath"`
		SettingsPath        string         `toml:"SettingsPath" json:"SettingsPath"`
		DatabasePath        string         `toml:"DatabasePath" json:"DatabasePath"`
		BleveIndexPath      string         `toml:"BleveIndexPath" json:"BleveIndexPath"`
		LogLevel            string         `toml:"LogLevel" json:"LogLevel"`
		LogFormat           string         `toml:"LogFormat" json:"LogFormat"`
		Search              SearchConfig   `toml:"Search" json:"Search"`
		Download            DownloadConfig `toml:"Download" json:"Download"`
		Torrent             TorrentConfig  `toml:"Torrent" json:"Torrent"`
		APIClientTimeoutSec int            `toml:"ApiClientTimeoutSec" json:"ApiClientTimeoutSec"`
		MaxRetries          int            `toml:"MaxRetries" json:"MaxRetries"`
		InitialRetryDelayMs int            `toml:"InitialRetryDelayMs" json:"InitialRetryDelayMs"`
		LogApiRequests      bool           `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// SearchConfig holds settings for the 'search' command.
	SearchConfig struct {
		Language string `toml:"Language"`
		Region   string `toml:"Region"`
		Limit    int    `toml:"Limit"`
	}

	// DownloadConfig holds settings for the 'download' command and the queue.
	DownloadConfig struct {
		FilenamePattern    string `toml:"FilenamePattern"`
		Playlist           string `toml:"Playlist"`
		PreferredContainer string `toml:"PreferredContainer"` // "m4a", "webm" or empty for best bitrate
		SaveThumbnail      bool   `toml:"SaveThumbnail"`
		SkipExisting       bool   `toml:"SkipExisting"`
		SkipConfirmation   bool   `toml:"SkipConfirmation"`
	}

	// TorrentConfig holds settings for 'library torrent'.
	TorrentConfig struct {
		OutputDir   string   `toml:"OutputDir"`
		Trackers    []string `toml:"Trackers"`
		MagnetLinks bool     `toml:"MagnetLinks"`
		Overwrite   bool     `toml:"Overwrite"`
	}

	// Thumbnail is one preview image offered by the search API.
	Thumbnail struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}

	// SearchResult is one row of a search listing.
	SearchResult struct {
		ID            string      `json:"id"`
		Title         string      `json:"title"`
		Channel       string      `json:"channel"`
		Duration      string      `json:"duration,omitempty"`
		ViewCount     string      `json:"viewCount,omitempty"`
		PublishedTime string      `json:"publishedTime,omitempty"`
		Link          string      `json:"link,omitempty"`
		Thumbnails    []Thumbnail `json:"thumbnails,omitempty"`
	}

	// Track is a playlist entry.
	Track struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Author string `json:"author"`
	}

	// PlaylistFile is the on-disk shape of a playlist.
	PlaylistFile struct {
		Musics []Track `json:"musics"`
	}

	// Settings is the on-disk shape of the settings store.
	Settings struct {
		Volume       int    `json:"volume"`
		PlaybackMode string `json:"playback_mode"`
	}

	// DownloadEntry is the record kept in the database for each downloaded video.
	DownloadEntry struct {
		VideoID      string `json:"videoId"`
		Title        string `json:"title"`
		Author       string `json:"author"`
		Link         string `json:"link"`
		Filename     string `json:"filename"`
		Folder       string `json:"folder"`
		Thumbnail    string `json:"thumbnail,omitempty"`
		MimeType     string `json:"mimeType,omitempty"`
		Blake3       string `json:"blake3,omitempty"`
		Status       string `json:"status"`
		ErrorDetails string `json:"errorDetails,omitempty"`
		Size         int64  `json:"size"`
		Timestamp    int64  `json:"timestamp"`
	}
)

// Database Status Constants
const (
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)

// FirstThumbnail returns the URL of the first thumbnail, or "" when there is none.
func (r SearchResult) FirstThumbnail() string {
	if len(r.Thumbnails) == 0 {
		return ""
	}
	return r.Thumbnails[0].URL
}

// Track converts a database entry into a playlist track.
func (e DownloadEntry) Track() Track {
	return Track{ID: e.VideoID, Title: e.Title, Author: e.Author}
}

// DatabaseKey returns the key a video's entry is stored under.
func DatabaseKey(videoID string) string {
	return "v_" + videoID
}

var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsVideoID reports whether s has the shape of a YouTube video ID.
func IsVideoID(s string) bool {
	return videoIDRegex.MatchString(s)
}

// NormalizeLink turns a bare video ID into a watch link and leaves anything else untouched.
func NormalizeLink(s string) string {
	s = strings.TrimSpace(s)
	if IsVideoID(s) {
		return YouTubePrefix + s
	}
	return s
}

// VideoIDFromLink extracts the video ID from a watch, shorts, embed or youtu.be link,
// or returns a bare ID as-is. It returns "" when no ID can be found.
func VideoIDFromLink(link string) string {
	link = strings.TrimSpace(link)
	if IsVideoID(link) {
		return link
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case "youtube.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			candidate = parts[1]
		}
	}
	if IsVideoID(candidate) {
		return candidate
	}
	return ""
}
