package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta attaches a metadata map to the request context and
// records total processing time once the handler chain finishes.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := metaMap(c, true)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaMap(c, true)[cacheHitKey] = hit
}

// ExtractMeta returns the metadata map for the current response, or nil.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	return metaMap(c, false)
}

// metaMap fetches the context metadata map. With create set, a missing
// map is installed on the context so later writers see it too.
func metaMap(c *gin.Context, create bool) map[string]interface{} {
	if c == nil {
		if create {
			return map[string]interface{}{}
		}
		return nil
	}
	if v, exists := c.Get(responseMetaKey); exists {
		if meta, ok := v.(map[string]interface{}); ok {
			return meta
		}
	}
	if !create {
		return nil
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
