// Package imagecache remembers where action image references resolve to.
package imagecache

import (
	"fmt"
	"strings"

	"github.com/maypok86/otter"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// DefaultSize is the capacity used when a non-positive size is requested.
const DefaultSize = 4096

// Cache maps (profile, page, reference) to a resolved file path. Misses are
// cached as well, so a reference that did not resolve keeps failing until
// Clear is called.
type Cache struct {
	entries otter.Cache[string, string]
	logger  *zap.Logger
}

// New creates a cache holding at most size entries.
func New(size int, logger *zap.Logger) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := otter.MustBuilder[string, string](size).
		Cost(func(_ string, _ string) uint32 { return 1 }).
		Build()
	if err != nil {
		panic(fmt.Sprintf("imagecache: create cache: %v", err))
	}
	return &Cache{entries: entries, logger: logger}
}

// Key builds the cache key of a reference. An empty pageID means the
// archive's active page.
func Key(a *profile.Archive, reference, pageID string) string {
	if pageID == "" {
		pageID = a.ActivePageID()
	}
	return a.ID + "::" + pageID + "::" + strings.ToLower(reference)
}

// Resolve returns the file a reference points at within a.
func (c *Cache) Resolve(a *profile.Archive, reference, pageID string) (string, bool) {
	if a == nil || strings.TrimSpace(reference) == "" {
		return "", false
	}
	key := Key(a, reference, pageID)
	if path, ok := c.entries.Get(key); ok {
		return path, path != ""
	}

	if pageID == "" {
		pageID = a.ActivePageID()
	}
	path, ok := a.ResolveImagePath(reference, pageID)
	if !ok {
		path = ""
		c.logger.Debug("image reference unresolved",
			zap.String("profile", a.ID),
			zap.String("page", pageID),
			zap.String("reference", reference))
	}
	c.entries.Set(key, path)
	return path, ok
}

// ResolveAction resolves the image an action displays.
func (c *Cache) ResolveAction(a *profile.Archive, action *document.Node, pageID string) (string, bool) {
	return c.Resolve(a, profile.Present(action).ImageReference, pageID)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.entries.Clear()
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.entries.Close()
}
