package router

import (
	"github.com/VictoriaMetrics/fastcache"
)

// idCache memoizes name/comment -> router-internal-ID resolutions so
// repeated queue-tree or mangle-rule lookups don't round-trip to the
// router every cycle (§4.3: "Cache resolved resource IDs ... populated on
// first use and persisted only in memory"). Adapted from the teacher's
// fastcache-backed probe/log ring buffers — same library, repurposed
// here as a small key->ID memo instead of a bounded log queue.
type idCache struct {
	c *fastcache.Cache
}

// newIDCache allocates a small in-memory cache; resource IDs are short
// strings and there are at most a handful of queues/rules per instance,
// so a modest byte budget is plenty.
func newIDCache() *idCache {
	return &idCache{c: fastcache.New(1 << 16)}
}

func (c *idCache) get(key string) (string, bool) {
	v := c.c.Get(nil, []byte(key))
	if len(v) == 0 {
		return "", false
	}
	return string(v), true
}

func (c *idCache) set(key, id string) {
	c.c.Set([]byte(key), []byte(id))
}

func (c *idCache) reset() {
	c.c.Reset()
}
