package api

import (
	"strings"

	"go-music-downloader/internal/models"
)

// text is the innertube rendering of a string: either simpleText or a list of runs.
type text struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t text) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

type videoRenderer struct {
	VideoID           string `json:"videoId"`
	Title             text   `json:"title"`
	OwnerText         text   `json:"ownerText"`
	LongBylineText    text   `json:"longBylineText"`
	LengthText        text   `json:"lengthText"`
	ViewCountText     text   `json:"viewCountText"`
	PublishedTimeText text   `json:"publishedTimeText"`
	Thumbnail         struct {
		Thumbnails []models.Thumbnail `json:"thumbnails"`
	} `json:"thumbnail"`
}

func (v videoRenderer) channel() string {
	if s := v.OwnerText.String(); s != "" {
		return s
	}
	return v.LongBylineText.String()
}

type searchResponse struct {
	Contents struct {
		TwoColumnSearchResultsRenderer struct {
			PrimaryContents struct {
				SectionListRenderer struct {
					Contents []struct {
						ItemSectionRenderer struct {
							Contents []struct {
								VideoRenderer *videoRenderer `json:"videoRenderer"`
							} `json:"contents"`
						} `json:"itemSectionRenderer"`
					} `json:"contents"`
				} `json:"sectionListRenderer"`
			} `json:"primaryContents"`
		} `json:"twoColumnSearchResultsRenderer"`
	} `json:"contents"`
}

// results flattens the video renderers into search results. Non-video items
// (shelves, ads, channels) are skipped; a video without a title or channel
// ends the listing.
func (r searchResponse) results(limit int) []models.SearchResult {
	results := []models.SearchResult{}
	sections := r.Contents.TwoColumnSearchResultsRenderer.PrimaryContents.SectionListRenderer.Contents
	for _, section := range sections {
		for _, item := range section.ItemSectionRenderer.Contents {
			v := item.VideoRenderer
			if v == nil {
				continue
			}
			title, channel := v.Title.String(), v.channel()
			if title == "" || channel == "" {
				return results
			}
			result := models.SearchResult{
				ID:            v.VideoID,
				Title:         title,
				Channel:       channel,
				Duration:      v.LengthText.String(),
				ViewCount:     v.ViewCountText.String(),
				PublishedTime: v.PublishedTimeText.String(),
				Thumbnails:    v.Thumbnail.Thumbnails,
			}
			if v.VideoID != "" {
				result.Link = models.YouTubePrefix + v.VideoID
			}
			results = append(results, result)
			if len(results) >= limit {
				return results
			}
		}
	}
	return results
}
