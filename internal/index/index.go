package index

import (
	"errors"
	"fmt"
	"strings"

	"go-music-downloader/internal/models"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	log "github.com/sirupsen/logrus"
)

// Item is the document stored in the library index for a downloaded track.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Filename string `json:"filename"`
	Link     string `json:"link"`
	Status   string `json:"status"`
}

// Hit is one library search result.
type Hit struct {
	ID       string
	Title    string
	Author   string
	Filename string
	Score    float64
}

func buildMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Store = true

	keywordField := bleve.NewKeywordFieldMapping()
	keywordField.Store = true

	track := bleve.NewDocumentMapping()
	track.AddFieldMappingsAt("title", textField)
	track.AddFieldMappingsAt("author", textField)
	track.AddFieldMappingsAt("filename", keywordField)
	track.AddFieldMappingsAt("link", keywordField)
	track.AddFieldMappingsAt("status", keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = track
	return indexMapping
}

// OpenOrCreateIndex opens the index at path, creating it when it does not exist.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		log.Debugf("Opened library index at %s", path)
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}

	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index %s: %w", path, err)
	}
	log.Infof("Created library index at %s", path)
	return idx, nil
}

// NewMemIndex returns an index that lives only in memory.
func NewMemIndex() (bleve.Index, error) {
	return bleve.NewMemOnly(buildMapping())
}

// ItemFromEntry builds the index document for a download record.
func ItemFromEntry(entry models.DownloadEntry) Item {
	return Item{
		ID:       entry.VideoID,
		Title:    entry.Title,
		Author:   entry.Author,
		Filename: entry.Filename,
		Link:     entry.Link,
		Status:   entry.Status,
	}
}

// IndexEntry adds or replaces the document for entry.
func IndexEntry(idx bleve.Index, entry models.DownloadEntry) error {
	if entry.VideoID == "" {
		return fmt.Errorf("entry has no video id")
	}
	if err := idx.Index(entry.VideoID, ItemFromEntry(entry)); err != nil {
		return fmt.Errorf("indexing %s: %w", entry.VideoID, err)
	}
	return nil
}

// DeleteEntry removes the document for videoID. Deleting an unknown id is not an error.
func DeleteEntry(idx bleve.Index, videoID string) error {
	if err := idx.Delete(videoID); err != nil {
		return fmt.Errorf("removing %s from index: %w", videoID, err)
	}
	return nil
}

// Search runs a query string search (e.g. "astley", "author:rick", "title:forever")
// against the library. An empty query matches everything.
func Search(idx bleve.Index, queryString string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}

	var req *bleve.SearchRequest
	if strings.TrimSpace(queryString) == "" {
		req = bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), limit, 0, false)
	} else {
		req = bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(queryString), limit, 0, false)
	}
	req.Fields = []string{"title", "author", "filename"}

	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:       h.ID,
			Title:    fieldString(h.Fields, "title"),
			Author:   fieldString(h.Fields, "author"),
			Filename: fieldString(h.Fields, "filename"),
			Score:    h.Score,
		})
	}
	return hits, nil
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
