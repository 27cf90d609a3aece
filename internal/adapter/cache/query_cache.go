package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// QueryCache is an LRU cache of retrieval results with a TTL. Entries are
// tagged with their owner's generation; bumping the generation after an
// ingest makes every older entry of that owner stale.
type QueryCache struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List // front = most recently used
	maxSize   int
	ttl       time.Duration
	ownerGen  map[string]uint64
	globalGen uint64
	now       func() time.Time
}

type cacheEntry struct {
	key       string
	ownerID   string
	results   []domain.ScoredChunk
	timestamp time.Time
	ownerGen  uint64
	globalGen uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		maxSize:  maxSize,
		ttl:      ttl,
		ownerGen: make(map[string]uint64),
		now:      time.Now,
	}
}

func cacheKey(ownerID, query string, k int, minSimilarity float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, s := range []string{ownerID, query} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	binary.BigEndian.PutUint64(buf[:], uint64(k))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(minSimilarity))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// generation identifies the invalidation state an entry was computed under.
type generation struct {
	owner  uint64
	global uint64
}

func (c *QueryCache) Get(ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, bool) {
	results, _, ok := c.lookup(ownerID, query, k, minSimilarity)
	return results, ok
}

// lookup is Get that also reports the generation current at the time of the
// lookup, for a later putAt on a miss.
func (c *QueryCache) lookup(ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, generation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := generation{owner: c.ownerGen[ownerID], global: c.globalGen}
	key := cacheKey(ownerID, query, k, minSimilarity)
	elem, ok := c.entries[key]
	if !ok {
		return nil, gen, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.timestamp) > c.ttl || c.stale(entry) {
		c.remove(elem)
		return nil, gen, false
	}

	c.lru.MoveToFront(elem)
	return copyResults(entry.results), gen, true
}

func (c *QueryCache) Put(ownerID, query string, k int, minSimilarity float64, results []domain.ScoredChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(ownerID, query, k, minSimilarity, results, generation{owner: c.ownerGen[ownerID], global: c.globalGen})
}

// putAt stores results computed under gen. Results from before an
// invalidation are dropped.
func (c *QueryCache) putAt(gen generation, ownerID, query string, k int, minSimilarity float64, results []domain.ScoredChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen.owner != c.ownerGen[ownerID] || gen.global != c.globalGen {
		return
	}
	c.put(ownerID, query, k, minSimilarity, results, gen)
}

func (c *QueryCache) put(ownerID, query string, k int, minSimilarity float64, results []domain.ScoredChunk, gen generation) {
	key := cacheKey(ownerID, query, k, minSimilarity)
	entry := &cacheEntry{
		key:       key,
		ownerID:   ownerID,
		results:   copyResults(results),
		timestamp: c.now(),
		ownerGen:  gen.owner,
		globalGen: gen.global,
	}

	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.maxSize {
		c.remove(c.lru.Back())
	}
	c.entries[key] = c.lru.PushFront(entry)
}

// Invalidate drops every cached result of ownerID.
func (c *QueryCache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerGen[ownerID]++
}

// InvalidateAll drops every cached result.
func (c *QueryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.globalGen++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *QueryCache) stale(e *cacheEntry) bool {
	return e.globalGen != c.globalGen || e.ownerGen != c.ownerGen[e.ownerID]
}

func (c *QueryCache) remove(elem *list.Element) {
	entry := c.lru.Remove(elem).(*cacheEntry)
	delete(c.entries, entry.key)
}

func copyResults(results []domain.ScoredChunk) []domain.ScoredChunk {
	if results == nil {
		return nil
	}
	out := make([]domain.ScoredChunk, len(results))
	copy(out, results)
	return out
}

// CachedRetriever serves repeated queries from a QueryCache.
type CachedRetriever struct {
	retriever port.Retriever
	cache     *QueryCache
}

func NewCachedRetriever(retriever port.Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) Search(ctx context.Context, ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, error) {
	cached, gen, hit := r.cache.lookup(ownerID, query, k, minSimilarity)
	if hit {
		return cached, nil
	}

	results, err := r.retriever.Search(ctx, ownerID, query, k, minSimilarity)
	if err != nil {
		return nil, err
	}

	r.cache.putAt(gen, ownerID, query, k, minSimilarity, results)
	return results, nil
}

// Invalidate satisfies the ingest use case's invalidation hook.
func (r *CachedRetriever) Invalidate(ownerID string) {
	r.cache.Invalidate(ownerID)
}
