package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	ResponseEntries  int     `json:"responseEntries"`
	EmbeddingEntries int     `json:"embeddingEntries"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	HitRate          float64 `json:"hitRate"`
}

// CacheManager holds the two cache tiers: full responses keyed by the
// query fingerprint, and embeddings keyed by the exact text sent to the
// encoder. Both tiers are LRU with TTL expiry; the embedding tier keeps
// a longer TTL since embeddings never go stale for a fixed model.
type CacheManager struct {
	responses  *expirable.LRU[string, *RAGResponse]
	embeddings *expirable.LRU[string, []float32]
	hits       atomic.Int64
	misses     atomic.Int64
}

func NewCacheManager(size int, ttl time.Duration) *CacheManager {
	return &CacheManager{
		responses:  expirable.NewLRU[string, *RAGResponse](size, nil, ttl),
		embeddings: expirable.NewLRU[string, []float32](size*4, nil, 4*ttl),
	}
}

// ResponseKey fingerprints a request. Two requests share a key only if
// the normalized query, the conversation binding, and the enabled flag
// set all match, so a cached answer can never leak across flag
// combinations or sessions.
func ResponseKey(query, conversationID string, opts RAGOptions) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(query), " "))))
	h.Write([]byte{0})
	if opts.UseConversationMemory {
		h.Write([]byte(conversationID))
	}
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(opts.activeFlags(), ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// GetResponse returns a defensive copy of the cached response, if any.
func (c *CacheManager) GetResponse(key string) (*RAGResponse, bool) {
	resp, ok := c.responses.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return resp.clone(), true
}

// PutResponse stores a copy of the response so later mutation by the
// caller cannot poison the cache.
func (c *CacheManager) PutResponse(key string, resp *RAGResponse) {
	c.responses.Add(key, resp.clone())
}

func (c *CacheManager) GetEmbedding(text string) ([]float32, bool) {
	return c.embeddings.Get(embeddingKey(text))
}

func (c *CacheManager) PutEmbedding(text string, vec []float32) {
	c.embeddings.Add(embeddingKey(text), vec)
}

func embeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Purge drops both tiers.
func (c *CacheManager) Purge() {
	c.responses.Purge()
	c.embeddings.Purge()
}

// Stats reports current sizes and the hit rate since start.
func (c *CacheManager) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := CacheStats{
		ResponseEntries:  c.responses.Len(),
		EmbeddingEntries: c.embeddings.Len(),
		Hits:             hits,
		Misses:           misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}
