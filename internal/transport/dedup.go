package transport

import (
	"fmt"
	"time"
)

// dedupIndex tracks recently seen (userID, text, second-bucket) keys so
// the server echo of an optimistic message, or a genuine near-duplicate
// delivery, is dropped instead of appended twice. Entries older than the
// retention horizon are pruned on every insert, keeping the map bounded.
type dedupIndex struct {
	window    time.Duration
	retention time.Duration
	seen      map[string]time.Time
}

func newDedupIndex(window, retention time.Duration) *dedupIndex {
	return &dedupIndex{
		window:    window,
		retention: retention,
		seen:      make(map[string]time.Time),
	}
}

func dedupKey(userID, text string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%d", userID, text, at.Unix())
}

// observe reports whether an identical message was seen within the dedup
// window, and records this one if not. The window spans multiple second
// buckets, so earlier buckets are checked too.
func (d *dedupIndex) observe(userID, text string, at time.Time) bool {
	d.prune(at)

	for back := time.Duration(0); back <= d.window; back += time.Second {
		key := dedupKey(userID, text, at.Add(-back))
		if prev, ok := d.seen[key]; ok && at.Sub(prev) < d.window {
			return true
		}
	}

	d.record(userID, text, at)
	return false
}

// record registers a message without checking for duplicates. Used for
// optimistic outbound messages so their broadcast echo is recognized.
func (d *dedupIndex) record(userID, text string, at time.Time) {
	d.prune(at)
	d.seen[dedupKey(userID, text, at)] = at
}

func (d *dedupIndex) prune(now time.Time) {
	for key, at := range d.seen {
		if now.Sub(at) > d.retention {
			delete(d.seen, key)
		}
	}
}
