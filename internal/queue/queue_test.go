package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-music-downloader/internal/database"
	"go-music-downloader/internal/downloader"
	"go-music-downloader/internal/index"
	"go-music-downloader/internal/models"
	"go-music-downloader/internal/playlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher returns scripted errors per link and records call order.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    []string
	failures map[string][]error
	block    chan struct{}
	active   int
	overlap  bool
}

func (f *fakeFetcher) Download(ctx context.Context, link string, progress downloader.ProgressFunc) (downloader.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, link)
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	var err error
	if errs := f.failures[link]; len(errs) > 0 {
		err = errs[0]
		f.failures[link] = errs[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if progress != nil {
		progress(10, 10)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if err != nil {
		return downloader.Result{}, err
	}
	id := models.VideoIDFromLink(link)
	return downloader.Result{
		Track: models.Track{ID: id, Title: "Title " + id, Author: "Author"},
		Path:  filepath.Join("downloads", id+".m4a"),
		Size:  10,
		Hash:  "abc",
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func link(id string) string { return models.YouTubePrefix + id }

func collectOutcomes(opts *Options) func() []Outcome {
	var mu sync.Mutex
	var outcomes []Outcome
	opts.OnResult = func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}
	return func() []Outcome {
		mu.Lock()
		defer mu.Unlock()
		return append([]Outcome(nil), outcomes...)
	}
}

func TestAdd(t *testing.T) {
	m := NewManager(&fakeFetcher{}, Options{})

	item, err := m.Add("aaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, link("aaaaaaaaaaa"), item.Link, "bare ids become watch links")
	assert.NotEqual(t, item.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, item.AddedAt.IsZero())

	_, err = m.Add(link("aaaaaaaaaaa"))
	assert.True(t, errors.Is(err, ErrAlreadyQueued))

	for _, alias := range []string{"https://youtu.be/aaaaaaaaaaa", "https://www.youtube.com/shorts/aaaaaaaaaaa", "https://music.youtube.com/watch?v=aaaaaaaaaaa&list=x"} {
		_, err = m.Add(alias)
		assert.True(t, errors.Is(err, ErrAlreadyQueued), alias)
	}

	_, err = m.Add("  ")
	assert.True(t, errors.Is(err, downloader.ErrNoLink))

	_, err = m.Add("bbbbbbbbbbb")
	require.NoError(t, err)

	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, link("aaaaaaaaaaa"), pending[0].Link)
	assert.Equal(t, link("bbbbbbbbbbb"), pending[1].Link)
}

func TestStart_EmptyQueueDoesNothing(t *testing.T) {
	done := false
	m := NewManager(&fakeFetcher{}, Options{OnDone: func() { done = true }})

	assert.False(t, m.Start(context.Background()))
	assert.False(t, m.Running())
	m.Wait()
	assert.False(t, done)
}

func TestProcessesInOrderOnSingleWorker(t *testing.T) {
	fetcher := &fakeFetcher{}
	opts := Options{}
	outcomes := collectOutcomes(&opts)
	doneCalled := make(chan struct{})
	opts.OnDone = func() { close(doneCalled) }

	m := NewManager(fetcher, opts)
	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		_, err := m.Add(id)
		require.NoError(t, err)
	}

	require.True(t, m.Start(context.Background()))
	assert.False(t, m.Start(context.Background()), "second start while running is a no-op")
	m.Wait()

	select {
	case <-doneCalled:
	case <-time.After(time.Second):
		t.Fatal("OnDone not called")
	}

	assert.Equal(t, []string{link("aaaaaaaaaaa"), link("bbbbbbbbbbb"), link("ccccccccccc")}, fetcher.Calls())
	assert.False(t, fetcher.overlap, "items never run concurrently")
	assert.False(t, m.Running())
	assert.Empty(t, m.Pending())

	got := outcomes()
	require.Len(t, got, 3)
	for _, o := range got {
		assert.NoError(t, o.Err)
		assert.Equal(t, 1, o.Attempts)
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{failures: map[string][]error{
		link("aaaaaaaaaaa"): {errors.New("timeout"), errors.New("reset")},
	}}
	opts := Options{MaxRetries: 3, RetryDelay: time.Millisecond}
	outcomes := collectOutcomes(&opts)

	m := NewManager(fetcher, opts)
	_, err := m.Add("aaaaaaaaaaa")
	require.NoError(t, err)
	m.Start(context.Background())
	m.Wait()

	got := outcomes()
	require.Len(t, got, 1)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, 3, got[0].Attempts)
	assert.Len(t, fetcher.Calls(), 3)
}

func TestFailedItemIsDroppedAndQueueContinues(t *testing.T) {
	fetcher := &fakeFetcher{failures: map[string][]error{
		link("aaaaaaaaaaa"): {errors.New("e1"), errors.New("e2"), errors.New("e3")},
		link("bbbbbbbbbbb"): {downloader.ErrNoAudioFormat},
	}}
	opts := Options{MaxRetries: 2, RetryDelay: time.Millisecond}
	outcomes := collectOutcomes(&opts)

	m := NewManager(fetcher, opts)
	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		_, err := m.Add(id)
		require.NoError(t, err)
	}
	m.Start(context.Background())
	m.Wait()

	got := outcomes()
	require.Len(t, got, 3)

	assert.Error(t, got[0].Err)
	assert.Equal(t, 2, got[0].Attempts)

	assert.True(t, errors.Is(got[1].Err, downloader.ErrNoAudioFormat))
	assert.Equal(t, 1, got[1].Attempts, "permanent errors are not retried")

	assert.NoError(t, got[2].Err)
	assert.Empty(t, m.Pending())
}

func TestInvalidLinkIsNotRetried(t *testing.T) {
	fetcher := &fakeFetcher{failures: map[string][]error{
		"https://example.com/x": {fmt.Errorf("%w: bad id", downloader.ErrInvalidLink), errors.New("second attempt")},
	}}
	opts := Options{MaxRetries: 3, RetryDelay: time.Millisecond}
	outcomes := collectOutcomes(&opts)

	m := NewManager(fetcher, opts)
	_, err := m.Add("https://example.com/x")
	require.NoError(t, err)
	m.Start(context.Background())
	m.Wait()

	got := outcomes()
	require.Len(t, got, 1)
	assert.True(t, errors.Is(got[0].Err, downloader.ErrInvalidLink))
	assert.Equal(t, 1, got[0].Attempts)
	assert.Len(t, fetcher.Calls(), 1)
}

func TestCancelledItemStaysQueued(t *testing.T) {
	fetcher := &fakeFetcher{
		block: make(chan struct{}),
		failures: map[string][]error{
			link("aaaaaaaaaaa"): {fmt.Errorf("%w: downloading aaaaaaaaaaa: %w", downloader.ErrStream, context.Canceled)},
		},
	}
	started := make(chan struct{}, 2)
	opts := Options{MaxRetries: 3, OnStart: func(Item) { started <- struct{}{} }}
	outcomes := collectOutcomes(&opts)
	m := NewManager(fetcher, opts)

	_, _ = m.Add("aaaaaaaaaaa")
	_, _ = m.Add("bbbbbbbbbbb")

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	<-started
	cancel()
	close(fetcher.block)
	m.Wait()

	assert.Empty(t, outcomes(), "a cancelled item is neither a success nor a failure")
	assert.Len(t, fetcher.Calls(), 1)
	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, link("aaaaaaaaaaa"), pending[0].Link)
	assert.Equal(t, link("bbbbbbbbbbb"), pending[1].Link)
}

func TestInterruptKeepsRemainingItems(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	started := make(chan struct{}, 3)
	m := NewManager(fetcher, Options{OnStart: func(Item) { started <- struct{}{} }})

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		_, err := m.Add(id)
		require.NoError(t, err)
	}
	m.Start(context.Background())

	<-started
	m.Interrupt()
	close(fetcher.block)
	m.Wait()

	assert.Len(t, fetcher.Calls(), 1, "the item in flight finishes")
	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, link("bbbbbbbbbbb"), pending[0].Link)

	// Restarting picks up where it stopped.
	require.True(t, m.Start(context.Background()))
	m.Wait()
	assert.Len(t, fetcher.Calls(), 3)
}

func TestContextCancelStopsWorker(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	started := make(chan struct{}, 2)
	m := NewManager(fetcher, Options{OnStart: func(Item) { started <- struct{}{} }})

	_, _ = m.Add("aaaaaaaaaaa")
	_, _ = m.Add("bbbbbbbbbbb")

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	<-started
	cancel()
	close(fetcher.block)
	m.Wait()

	assert.Len(t, fetcher.Calls(), 1)
	assert.Len(t, m.Pending(), 1)
}

func TestHooksRunInOrderAndFailuresAreTolerated(t *testing.T) {
	var order []string
	hook := func(name string, err error) Hook {
		return Hook{Name: name, Run: func(context.Context, Item, downloader.Result) error {
			order = append(order, name)
			return err
		}}
	}

	opts := Options{}
	outcomes := collectOutcomes(&opts)
	m := NewManager(&fakeFetcher{}, opts, hook("first", nil), hook("second", errors.New("boom")), hook("third", nil))
	_, _ = m.Add("aaaaaaaaaaa")
	m.Start(context.Background())
	m.Wait()

	assert.Equal(t, []string{"first", "second", "third"}, order)
	require.Len(t, outcomes(), 1)
	assert.NoError(t, outcomes()[0].Err, "hook failures do not fail the item")
}

func TestHooksSkippedOnFailure(t *testing.T) {
	ran := false
	fetcher := &fakeFetcher{failures: map[string][]error{link("aaaaaaaaaaa"): {downloader.ErrNoLink}}}
	m := NewManager(fetcher, Options{}, Hook{Name: "h", Run: func(context.Context, Item, downloader.Result) error {
		ran = true
		return nil
	}})
	_, _ = m.Add("aaaaaaaaaaa")
	m.Start(context.Background())
	m.Wait()
	assert.False(t, ran)
}

func TestProgressCallback(t *testing.T) {
	var got []int64
	m := NewManager(&fakeFetcher{}, Options{OnProgress: func(_ Item, written, total int64) {
		got = append(got, written, total)
	}})
	_, _ = m.Add("aaaaaaaaaaa")
	m.Start(context.Background())
	m.Wait()
	assert.Equal(t, []int64{10, 10}, got)
}

func TestStandardHooks(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "music.db"))
	require.NoError(t, err)
	defer db.Close()

	store := playlist.NewStore(filepath.Join(dir, "playlists"))
	idx, err := index.NewMemIndex()
	require.NoError(t, err)
	defer idx.Close()

	m := NewManager(&fakeFetcher{}, Options{},
		RecordHook(db),
		PlaylistHook(store, models.DownloadsPlaylist),
		IndexHook(idx),
	)
	_, _ = m.Add("aaaaaaaaaaa")
	_, _ = m.Add("bbbbbbbbbbb")
	m.Start(context.Background())
	m.Wait()

	entry, err := db.GetEntry("aaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, entry.Status)
	assert.Equal(t, "aaaaaaaaaaa.m4a", entry.Filename)
	assert.Equal(t, "downloads", entry.Folder)
	assert.Equal(t, "abc", entry.Blake3)
	assert.Equal(t, link("aaaaaaaaaaa"), entry.Link)

	pl, err := store.Load(models.DownloadsPlaylist)
	require.NoError(t, err)
	require.Len(t, pl.Musics, 2)
	assert.Equal(t, "aaaaaaaaaaa", pl.Musics[0].ID)
	assert.Equal(t, "bbbbbbbbbbb", pl.Musics[1].ID)

	hits, err := index.Search(idx, "", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestRecordFailure(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "music.db"))
	require.NoError(t, err)
	defer db.Close()

	outcome := Outcome{Item: Item{Link: link("aaaaaaaaaaa")}, Err: errors.New("stream error")}
	require.NoError(t, RecordFailure(db, outcome))

	entry, err := db.GetEntry("aaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, entry.Status)
	assert.Equal(t, "stream error", entry.ErrorDetails)

	// A good record is never downgraded.
	require.NoError(t, db.PutEntry(models.DownloadEntry{VideoID: "bbbbbbbbbbb", Status: models.StatusDownloaded}))
	require.NoError(t, RecordFailure(db, Outcome{Item: Item{Link: link("bbbbbbbbbbb")}, Err: errors.New("x")}))
	entry, err = db.GetEntry("bbbbbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, entry.Status)

	assert.Error(t, RecordFailure(db, Outcome{Item: Item{Link: "https://example.com"}, Err: errors.New("x")}))

	cancelled := Outcome{
		Item: Item{Link: link("ccccccccccc")},
		Err:  fmt.Errorf("%w: downloading ccccccccccc: %w", downloader.ErrStream, context.Canceled),
	}
	require.NoError(t, RecordFailure(db, cancelled))
	_, err = db.GetEntry("ccccccccccc")
	assert.True(t, errors.Is(err, database.ErrNotFound), "cancelled downloads are not recorded")
}
