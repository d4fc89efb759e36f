package query

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Default search debounce tuning.
const (
	DefaultInsertDelay  = 700 * time.Millisecond
	DefaultDeleteDelay  = 500 * time.Millisecond
	DefaultMinSearchLen = 2
)

// Pending is a scheduled search dispatch. It fires only if no newer input
// arrived before Delay elapsed.
type Pending struct {
	ID    uint64
	Text  string
	Delay time.Duration
}

// SearchDebouncer coalesces keystrokes into search dispatches. Deleting
// characters uses a shorter window than typing them.
type SearchDebouncer struct {
	InsertDelay time.Duration
	DeleteDelay time.Duration
	MinLen      int

	mu         sync.Mutex
	id         uint64
	prev       string
	pending    string
	dispatched string
	timer      *time.Timer
}

// NewSearchDebouncer returns a debouncer with the default windows.
func NewSearchDebouncer() *SearchDebouncer {
	return &SearchDebouncer{
		InsertDelay: DefaultInsertDelay,
		DeleteDelay: DefaultDeleteDelay,
		MinLen:      DefaultMinSearchLen,
	}
}

// Seed records text that is already applied, e.g. the search read from the
// address, without dispatching it. Seeding the text that is already applied
// keeps any pending input alive.
func (d *SearchDebouncer) Seed(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text = strings.TrimSpace(text)
	if text == d.dispatched {
		return
	}
	d.prev = text
	d.pending = text
	d.dispatched = text
	d.id++
}

// Input registers new search text. Every call supersedes the previous pending
// dispatch. ok is false when the text cannot be dispatched (too short).
func (d *SearchDebouncer) Input(text string) (Pending, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input(text)
}

func (d *SearchDebouncer) input(text string) (Pending, bool) {
	text = strings.TrimSpace(text)
	delay := d.InsertDelay
	if utf8.RuneCountInString(text) < utf8.RuneCountInString(d.prev) {
		delay = d.DeleteDelay
	}
	d.prev = text
	d.pending = text
	d.id++
	if !d.dispatchable(text) {
		return Pending{}, false
	}
	return Pending{ID: d.id, Text: text, Delay: delay}, true
}

// Fire reports whether the dispatch with the given id is still current and
// changes the applied search. A true result marks the text as dispatched.
func (d *SearchDebouncer) Fire(id uint64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fire(id)
}

func (d *SearchDebouncer) fire(id uint64) (string, bool) {
	if id != d.id || !d.dispatchable(d.pending) || d.pending == d.dispatched {
		return "", false
	}
	d.dispatched = d.pending
	return d.pending, true
}

// Schedule registers input and calls fn from a timer goroutine once the
// debounce window passes without newer input.
func (d *SearchDebouncer) Schedule(text string, fn func(string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	p, ok := d.input(text)
	if !ok {
		return
	}
	d.timer = time.AfterFunc(p.Delay, func() {
		d.mu.Lock()
		q, ok := d.fire(p.ID)
		d.mu.Unlock()
		if ok {
			fn(q)
		}
	})
}

// Stop cancels any scheduled dispatch.
func (d *SearchDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.id++
}

// Dispatched returns the last dispatched text.
func (d *SearchDebouncer) Dispatched() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatched
}

func (d *SearchDebouncer) dispatchable(text string) bool {
	return text == "" || utf8.RuneCountInString(text) >= d.MinLen
}
