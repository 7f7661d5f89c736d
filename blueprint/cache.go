// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blueprint

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/sorchain/sorcha/log"
)

var logger = log.WithContext("pkg", "blueprint")

// ErrNotFound is returned when no published blueprint exists for the id.
var ErrNotFound = errors.New("blueprint not found")

const defaultCacheSize = 256

// Resolver fetches published blueprints from wherever they live.
type Resolver interface {
	GetPublished(ctx context.Context, blueprintID string) (*Blueprint, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, blueprintID string) (*Blueprint, error)

// GetPublished implements Resolver.
func (f ResolverFunc) GetPublished(ctx context.Context, blueprintID string) (*Blueprint, error) {
	return f(ctx, blueprintID)
}

// Cache is a read-through blueprint cache. Published blueprints are
// immutable, so entries never expire; concurrent misses for the same id
// collapse into one resolver call.
type Cache struct {
	resolver Resolver
	cache    *lru.Cache
	sf       singleflight.Group
}

// NewCache creates the cache over the resolver. size <= 0 selects the
// default.
func NewCache(resolver Resolver, size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, _ := lru.New(size)
	return &Cache{resolver: resolver, cache: cache}
}

// Get returns the published blueprint, from cache or the resolver.
func (c *Cache) Get(ctx context.Context, blueprintID string) (*Blueprint, error) {
	if cached, ok := c.cache.Get(blueprintID); ok {
		return cached.(*Blueprint), nil
	}

	val, err, _ := c.sf.Do(blueprintID, func() (any, error) {
		bp, err := c.resolver.GetPublished(ctx, blueprintID)
		if err != nil {
			return nil, err
		}
		c.put(bp)
		return bp, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Blueprint), nil
}

// Put installs a freshly published blueprint, ahead of the first
// transaction that references it.
func (c *Cache) Put(bp *Blueprint) error {
	if err := bp.Validate(); err != nil {
		return err
	}
	if bp.HasCycles() {
		logger.Warn("published blueprint routes form a cycle", "blueprint", bp.ID)
	}
	c.put(bp)
	return nil
}

func (c *Cache) put(bp *Blueprint) {
	c.cache.Add(bp.ID, bp)
}

// Len reports the number of cached blueprints.
func (c *Cache) Len() int {
	return c.cache.Len()
}
