package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-music-downloader/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrEmptyQuery   = errors.New("search query is empty")
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

const (
	// YouTubeApiBaseUrl is the innertube endpoint the search request is posted to.
	YouTubeApiBaseUrl = "https://www.youtube.com/youtubei/v1"

	innertubeClientName    = "WEB"
	innertubeClientVersion = "2.20240726.00.00"
	// Restricts results to videos.
	videoOnlyParams = "EgIQAQ%3D%3D"

	DefaultSearchLimit = 15
	DefaultTimeout     = 10 * time.Second
)

// Client struct for interacting with the search API
type Client struct {
	BaseURL    string
	HttpClient *http.Client
	Language   string
	Region     string
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient creates a new API client
func NewClient(httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		timeout := DefaultTimeout
		if cfg.APIClientTimeoutSec > 0 {
			timeout = time.Duration(cfg.APIClientTimeoutSec) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		BaseURL:    YouTubeApiBaseUrl,
		HttpClient: httpClient,
		Language:   cfg.Search.Language,
		Region:     cfg.Search.Region,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.InitialRetryDelayMs) * time.Millisecond,
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Region == "" {
		c.Region = "US"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	return c
}

type searchRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
			HL            string `json:"hl"`
			GL            string `json:"gl"`
		} `json:"client"`
	} `json:"context"`
	Query  string `json:"query"`
	Params string `json:"params,omitempty"`
}

// SearchOutcome carries the result of an asynchronous search.
type SearchOutcome struct {
	Err     error
	Results []models.SearchResult
}

// SearchAsync runs Search on its own goroutine. The returned channel delivers
// exactly one outcome and is then closed.
func (c *Client) SearchAsync(ctx context.Context, query string, limit int) <-chan SearchOutcome {
	out := make(chan SearchOutcome, 1)
	go func() {
		defer close(out)
		results, err := c.Search(ctx, query, limit)
		out <- SearchOutcome{Results: results, Err: err}
	}()
	return out
}

// Search queries the video search endpoint and returns at most limit results.
// Parsing stops at the first video that lacks a title or a channel name.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var payload searchRequest
	payload.Context.Client.ClientName = innertubeClientName
	payload.Context.Client.ClientVersion = innertubeClientVersion
	payload.Context.Client.HL = c.Language
	payload.Context.Client.GL = c.Region
	payload.Query = query
	payload.Params = videoOnlyParams

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding search request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/search?prettyPrint=false", strings.TrimRight(c.BaseURL, "/"))
	respBody, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Language", c.Language)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var response searchResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		log.WithError(err).Errorf("Error unmarshalling search response JSON")
		log.Debugf("Response body causing unmarshal error: %s", string(respBody))
		return nil, fmt.Errorf("error unmarshalling search response JSON: %w", err)
	}

	results := response.results(limit)
	log.Debugf("Search %q returned %d results", query, len(results))
	return results, nil
}

// doWithRetry performs the request built by newReq, retrying transport errors,
// rate limits and server errors with a linear backoff. It returns the body of
// the first 200 response.
func (c *Client) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt, c.MaxRetries, err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK:
				if readErr != nil {
					return nil, fmt.Errorf("error reading response body: %w", readErr)
				}
				return body, nil
			case resp.StatusCode == http.StatusTooManyRequests:
				lastErr = ErrRateLimited
			case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
				return nil, ErrUnauthorized
			case resp.StatusCode == http.StatusNotFound:
				return nil, ErrNotFound
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
			default:
				return nil, fmt.Errorf("API request failed with status %d", resp.StatusCode)
			}
		}

		if attempt == c.MaxRetries {
			break
		}
		sleepDuration := time.Duration(attempt) * c.RetryDelay
		log.WithError(lastErr).Warnf("Retrying (%d/%d) after %s...", attempt, c.MaxRetries, sleepDuration)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepDuration):
		}
	}

	log.WithError(lastErr).Errorf("Request failed after %d attempts", c.MaxRetries)
	return nil, lastErr
}
