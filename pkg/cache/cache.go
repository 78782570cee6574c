// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LRUCache is a size bounded, concurrency safe cache that evicts the least
// recently used entry first.
type LRUCache[K comparable, V any] struct {
	hits, misses, evictions prometheus.Counter

	mtx sync.Mutex
	lru *lru.Cache
}

// NewLRUCache returns a cache holding at most maxEntries values. A
// non-positive maxEntries means no limit.
func NewLRUCache[K comparable, V any](reg prometheus.Registerer, name string, maxEntries int) *LRUCache[K, V] {
	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name:        "coverage_agent_cache_requests_total",
		Help:        "Total number of cache requests.",
		ConstLabels: prometheus.Labels{"cache": name},
	}, []string{"result"})
	evictions := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name:        "coverage_agent_cache_evictions_total",
		Help:        "Total number of cache evictions.",
		ConstLabels: prometheus.Labels{"cache": name},
	})

	c := &LRUCache[K, V]{
		hits:      requests.WithLabelValues("hit"),
		misses:    requests.WithLabelValues("miss"),
		evictions: evictions,
		lru:       lru.New(maxEntries),
	}
	c.lru.OnEvicted = func(lru.Key, interface{}) { c.evictions.Inc() }
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "coverage_agent_cache_entries",
		Help:        "Number of entries currently cached.",
		ConstLabels: prometheus.Labels{"cache": name},
	}, func() float64 { return float64(c.Len()) })
	return c
}

func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.lru.Add(key, value)
}

func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses.Inc()
		var zero V
		return zero, false
	}
	c.hits.Inc()
	return v.(V), true
}

// Len returns the number of cached entries.
func (c *LRUCache[K, V]) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lru.Len()
}
