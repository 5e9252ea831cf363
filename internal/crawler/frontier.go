package crawler

// frontier is the FIFO queue of URLs waiting to be claimed.
//
// It may hold the same URL more than once; the scheduler discards repeats
// when it claims them. queued counts occurrences so that "already waiting"
// checks do not scan the queue.
//
// frontier is not safe for concurrent use. The Crawler guards it with its
// mutex.
type frontier struct {
	items  []string
	queued map[string]int
}

// newFrontier creates a frontier holding urls in order.
func newFrontier(urls ...string) *frontier {
	f := &frontier{
		items:  make([]string, 0, len(urls)),
		queued: make(map[string]int, len(urls)),
	}
	for _, u := range urls {
		f.push(u)
	}
	return f
}

// push appends u at the tail.
func (f *frontier) push(u string) {
	f.items = append(f.items, u)
	f.queued[u]++
}

// pop removes and returns the head. ok is false when the frontier is empty.
func (f *frontier) pop() (u string, ok bool) {
	if len(f.items) == 0 {
		return "", false
	}

	u = f.items[0]
	f.items[0] = ""
	f.items = f.items[1:]

	if n := f.queued[u]; n <= 1 {
		delete(f.queued, u)
	} else {
		f.queued[u] = n - 1
	}

	// Reclaim the backing array once it has fully drained.
	if len(f.items) == 0 {
		f.items = f.items[:0:0]
	}

	return u, true
}

// contains reports whether u is waiting in the frontier.
func (f *frontier) contains(u string) bool {
	return f.queued[u] > 0
}

// size returns the number of queued entries, duplicates included.
func (f *frontier) size() int {
	return len(f.items)
}

// snapshot returns a copy of the queued entries in order.
func (f *frontier) snapshot() []string {
	out := make([]string, len(f.items))
	copy(out, f.items)
	return out
}
