package router

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// PatternCache memoizes compiled parameter patterns.
//
// Get returns the same *regexp.Regexp for the same pattern string on every
// call. Concurrent first requests for a pattern share a single compilation.
// Compiled expressions are anchored so they only ever full-match a segment.
type PatternCache struct {
	entries sync.Map // pattern -> *regexp.Regexp
	group   singleflight.Group
	size    atomic.Int64
	metrics *Metrics
}

// NewPatternCache creates an empty pattern cache.
func NewPatternCache() *PatternCache {
	return &PatternCache{metrics: GetMetrics()}
}

// Get returns the compiled matcher for pattern, compiling it on first use.
// A pattern that does not compile yields an error wrapping ErrInvalidPattern
// and is not cached.
func (c *PatternCache) Get(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.entries.Load(pattern); ok {
		c.metrics.patternCacheHits.Inc()
		return re.(*regexp.Regexp), nil
	}
	c.metrics.patternCacheMisses.Inc()

	v, err, _ := c.group.Do(pattern, func() (any, error) {
		if re, ok := c.entries.Load(pattern); ok {
			return re, nil
		}

		re, err := regexp.Compile(anchor(pattern))
		if err != nil {
			c.metrics.patternCompiles.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
		}
		c.metrics.patternCompiles.WithLabelValues("success").Inc()

		actual, loaded := c.entries.LoadOrStore(pattern, re)
		if !loaded {
			c.metrics.patternCacheSize.Set(float64(c.size.Add(1)))
		}
		return actual, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*regexp.Regexp), nil
}

// Len returns the number of compiled patterns held.
func (c *PatternCache) Len() int {
	return int(c.size.Load())
}

func anchor(pattern string) string {
	return "^(?:" + pattern + ")$"
}
