package store

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cached wraps a Store with a read-through cache for parameter data.
// Parameter groups are immutable once written, so entries never expire;
// concurrent readers of the same reference share one store load through
// the singleflight group.
type Cached struct {
	Store

	sf     singleflight.Group
	mu     sync.RWMutex
	params map[int]any
}

func NewCached(s Store) *Cached {
	return &Cached{
		Store:  s,
		params: make(map[int]any),
	}
}

func (c *Cached) GetParameterData(ref int) (any, error) {
	c.mu.RLock()
	val, ok := c.params[ref]
	c.mu.RUnlock()
	if ok {
		return val, nil
	}

	val, err, _ := c.sf.Do(strconv.Itoa(ref), func() (any, error) {
		loaded, err := c.Store.GetParameterData(ref)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.params[ref] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// CheckParametersExist answers from the cache where possible and probes
// the store for the rest.
func (c *Cached) CheckParametersExist(refs []int) ([]bool, error) {
	out := make([]bool, len(refs))
	var missing []int
	var missingAt []int

	c.mu.RLock()
	for i, ref := range refs {
		if _, ok := c.params[ref]; ok {
			out[i] = true
		} else {
			missing = append(missing, ref)
			missingAt = append(missingAt, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) > 0 {
		probed, err := c.Store.CheckParametersExist(missing)
		if err != nil {
			return nil, err
		}
		for i, ok := range probed {
			out[missingAt[i]] = ok
		}
	}
	return out, nil
}
