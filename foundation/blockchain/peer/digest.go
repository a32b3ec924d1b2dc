package peer

import "sync"

// DigestSet remembers the digests of recently forwarded blocks and
// transactions so each message is gossiped at most once per node. The set
// is bounded, the oldest digests are evicted in insertion order.
type DigestSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

// NewDigestSet constructs a digest set that remembers up to limit digests.
func NewDigestSet(limit int) *DigestSet {
	return &DigestSet{
		seen:  make(map[string]struct{}, limit),
		limit: limit,
	}
}

// Add records the digest. It returns true when the digest was not already
// present, which means the caller is seeing this message for the first time.
func (ds *DigestSet) Add(digest string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if _, exists := ds.seen[digest]; exists {
		return false
	}

	if len(ds.order) >= ds.limit {
		oldest := ds.order[0]
		ds.order = ds.order[1:]
		delete(ds.seen, oldest)
	}

	ds.seen[digest] = struct{}{}
	ds.order = append(ds.order, digest)

	return true
}

// Has reports whether the digest has been seen.
func (ds *DigestSet) Has(digest string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	_, exists := ds.seen[digest]
	return exists
}
