package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-music-downloader/internal/downloader"
	"go-music-downloader/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrAlreadyQueued = errors.New("link is already queued")

// Fetcher downloads a single link. *downloader.Downloader satisfies it.
type Fetcher interface {
	Download(ctx context.Context, link string, progress downloader.ProgressFunc) (downloader.Result, error)
}

// Item is one queued link.
type Item struct {
	ID      uuid.UUID
	Link    string
	AddedAt time.Time
}

// Outcome reports how an item finished.
type Outcome struct {
	Item     Item
	Result   downloader.Result
	Err      error
	Attempts int
}

// Options configures retries and the callbacks fired from the worker goroutine.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration

	OnStart    func(item Item)
	OnProgress func(item Item, written, total int64)
	OnResult   func(outcome Outcome)
	OnDone     func()
}

// Manager processes queued links one at a time, in the order they were added,
// on a single background worker.
type Manager struct {
	fetcher Fetcher
	opts    Options
	hooks   []Hook

	mu          sync.Mutex
	queue       []Item
	running     bool
	interrupted bool
	done        chan struct{}
}

// NewManager creates a Manager. Hooks run in order after each successful download.
func NewManager(fetcher Fetcher, opts Options, hooks ...Hook) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Manager{fetcher: fetcher, opts: opts, hooks: hooks}
}

// Add appends link to the back of the queue. Bare video IDs are expanded to
// watch links. A link for a video that is already waiting is rejected.
func (m *Manager) Add(link string) (Item, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Item{}, downloader.ErrNoLink
	}
	link = models.NormalizeLink(link)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, queued := range m.queue {
		if sameVideo(queued.Link, link) {
			return queued, fmt.Errorf("%w: %s", ErrAlreadyQueued, link)
		}
	}

	item := Item{ID: uuid.New(), Link: link, AddedAt: time.Now()}
	m.queue = append(m.queue, item)
	log.Debugf("Queued %s (%d waiting)", link, len(m.queue))
	return item, nil
}

// Start launches the worker. It does nothing and returns false when the worker
// is already running or the queue is empty.
func (m *Manager) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || len(m.queue) == 0 {
		return false
	}
	m.running = true
	m.interrupted = false
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	return true
}

// Interrupt asks the worker to stop before the next item. The item in flight
// finishes; the rest stay queued.
func (m *Manager) Interrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interrupted = true
}

// Wait blocks until the current worker, if any, has stopped.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the worker is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Pending returns a copy of the items still waiting.
func (m *Manager) Pending() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.queue))
	copy(out, m.queue)
	return out
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		m.mu.Lock()
		if m.interrupted || ctx.Err() != nil || len(m.queue) == 0 {
			remaining := len(m.queue)
			m.running = false
			m.mu.Unlock()
			log.Debugf("Download worker stopping, %d item(s) left", remaining)
			if m.opts.OnDone != nil {
				m.opts.OnDone()
			}
			return
		}
		item := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.process(ctx, item)
	}
}

func (m *Manager) process(ctx context.Context, item Item) {
	if m.opts.OnStart != nil {
		m.opts.OnStart(item)
	}

	var progress downloader.ProgressFunc
	if m.opts.OnProgress != nil {
		progress = func(written, total int64) { m.opts.OnProgress(item, written, total) }
	}

	outcome := Outcome{Item: item}
retry:
	for attempt := 1; attempt <= m.opts.MaxRetries; attempt++ {
		outcome.Attempts = attempt
		outcome.Result, outcome.Err = m.fetcher.Download(ctx, item.Link, progress)
		if outcome.Err == nil || !retryable(ctx, outcome.Err) || attempt == m.opts.MaxRetries {
			break
		}

		delay := time.Duration(attempt) * m.opts.RetryDelay
		log.WithError(outcome.Err).Warnf("Download of %s failed, retrying (%d/%d) after %s", item.Link, attempt, m.opts.MaxRetries, delay)
		select {
		case <-ctx.Done():
			outcome.Err = ctx.Err()
			break retry
		case <-time.After(delay):
		}
	}

	if ctx.Err() != nil && errors.Is(outcome.Err, context.Canceled) {
		m.mu.Lock()
		m.queue = append([]Item{item}, m.queue...)
		m.mu.Unlock()
		log.Infof("Download of %s cancelled, left in the queue", item.Link)
		return
	}

	if outcome.Err != nil {
		log.WithError(outcome.Err).Warnf("Giving up on %s", item.Link)
	} else {
		for _, hook := range m.hooks {
			if err := hook.Run(ctx, item, outcome.Result); err != nil {
				log.WithError(err).Warnf("%s failed for %s", hook.Name, outcome.Result.Track.ID)
			}
		}
	}

	if m.opts.OnResult != nil {
		m.opts.OnResult(outcome)
	}
}

// retryable reports whether another attempt could succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, downloader.ErrNoLink),
		errors.Is(err, downloader.ErrNoAudioFormat),
		errors.Is(err, downloader.ErrInvalidLink),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// sameVideo compares links by video id, falling back to the link text when
// either has no recognisable id.
func sameVideo(a, b string) bool {
	idA, idB := models.VideoIDFromLink(a), models.VideoIDFromLink(b)
	if idA != "" && idB != "" {
		return idA == idB
	}
	return a == b
}
