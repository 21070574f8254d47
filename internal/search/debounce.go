package search

import (
	"strings"
	"sync"
	"time"
)

const defaultDebounceDelay = 500 * time.Millisecond

// debouncer delays query dispatch until input settles. Every keystroke resets
// the pending timer, so only the newest text ever fires. Queries shorter than
// the minimum length cancel any pending dispatch and fire the clear callback
// immediately instead.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	settled func(query string)
	cleared func()
}

func newDebouncer(delay time.Duration, settled func(string), cleared func()) *debouncer {
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	return &debouncer{delay: delay, settled: settled, cleared: cleared}
}

// Input feeds one text change. The text is trimmed before the length check
// and the trimmed form is what settles, so padding never changes the
// effective query. Suppressing a settle identical to the last settled query
// is the caller's concern; the debouncer only guarantees at most one pending
// timer and that a stale timer never fires after newer input.
func (d *debouncer) Input(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	text = strings.TrimSpace(text)
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len([]rune(text)) < minQueryLength {
		if d.cleared != nil {
			d.cleared()
		}
		return
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.settled(text)
	})
}

// Stop cancels any pending dispatch without firing.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
