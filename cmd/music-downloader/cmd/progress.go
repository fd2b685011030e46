package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go-music-downloader/internal/queue"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// progressDisplay renders queue progress. On a terminal it redraws one live
// line with uilive; otherwise it logs a line per item.
type progressDisplay struct {
	mu        sync.Mutex
	live      *uilive.Writer
	out       io.Writer
	total     int
	completed int
	failed    int
	current   string
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newProgressDisplay(total int) *progressDisplay {
	p := &progressDisplay{out: os.Stdout, total: total}
	if isTerminal(os.Stdout) {
		p.live = uilive.New()
		p.live.Out = os.Stdout
		p.live.Start()
	}
	return p
}

func (p *progressDisplay) start(item queue.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = item.Link
	p.render(fmt.Sprintf("[%d/%d] Starting %s", p.completed+p.failed+1, p.total, item.Link))
}

func (p *progressDisplay) progress(item queue.Item, written, total int64) {
	if p.live == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("[%d/%d] %s: %s", p.completed+p.failed+1, p.total, item.Link, humanize.Bytes(uint64(written)))
	if total > 0 {
		line += fmt.Sprintf(" / %s (%.0f%%)", humanize.Bytes(uint64(total)), float64(written)*100/float64(total))
	}
	p.render(line)
}

func (p *progressDisplay) result(outcome queue.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if outcome.Err != nil {
		p.failed++
		p.render(fmt.Sprintf("[%d/%d] Failed %s: %v", p.completed+p.failed, p.total, outcome.Item.Link, outcome.Err))
		return
	}
	p.completed++
	verb := "Downloaded"
	if outcome.Result.Skipped {
		verb = "Already present"
	}
	p.render(fmt.Sprintf("[%d/%d] %s %q (%s)", p.completed+p.failed, p.total, verb, outcome.Result.Track.Title, humanize.Bytes(uint64(outcome.Result.Size))))
}

// render writes line, keeping finished lines on screen in live mode.
func (p *progressDisplay) render(line string) {
	if p.live == nil {
		log.Info(line)
		return
	}
	fmt.Fprintln(p.live, line)
	_ = p.live.Flush()
}

func (p *progressDisplay) stop() {
	if p.live != nil {
		p.live.Stop()
	}
	fmt.Fprintf(p.out, "Finished: %d downloaded, %d failed.\n", p.completed, p.failed)
}
