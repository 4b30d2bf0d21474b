package cache

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// Loader fetches a node that was evicted from the cache. It returns
// (nil, nil) when the node no longer exists.
type Loader func(path string) (*types.Node, error)

// Config represents node cache configuration
type Config struct {
	MaxNodes int `yaml:"max_nodes"`
}

// NodeCache is the bounded in-memory node store. It owns the children index
// and the dirty set; nothing outside this type mutates them.
type NodeCache struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*cacheItem
	evictList *list.List
	children  map[string]map[string]struct{}
	dirty     map[string]struct{}
	loader    Loader
	logger    *zap.Logger
	pinWarned bool

	stats types.CacheStats
}

type cacheItem struct {
	node    *types.Node
	element *list.Element
}

// NewNodeCache creates an empty cache. A non-positive MaxNodes disables
// eviction.
func NewNodeCache(config *Config, logger *zap.Logger) *NodeCache {
	if config == nil {
		config = &Config{MaxNodes: 10000}
	}
	return &NodeCache{
		capacity:  config.MaxNodes,
		items:     make(map[string]*cacheItem),
		evictList: list.New(),
		children:  make(map[string]map[string]struct{}),
		dirty:     make(map[string]struct{}),
		logger:    utils.OrNop(logger).Named("cache"),
		stats:     types.CacheStats{Capacity: config.MaxNodes},
	}
}

// SetLoader installs the function used to reload evicted nodes.
func (c *NodeCache) SetLoader(loader Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loader = loader
}

// Get returns a copy of the node at path and marks it recently used. Nodes
// that were evicted but are still listed in their parent's index are
// reloaded through the Loader.
func (c *NodeCache) Get(path string) (*types.Node, bool) {
	c.mu.Lock()
	if item, ok := c.items[path]; ok {
		c.touch(item)
		c.stats.Hits++
		n := item.node.Clone()
		c.mu.Unlock()
		return n, true
	}
	c.stats.Misses++
	known := c.indexed(path)
	loader := c.loader
	c.mu.Unlock()

	if !known || loader == nil {
		return nil, false
	}
	return c.reload(path, loader)
}

// Peek returns a copy of the node without touching recency or reloading.
func (c *NodeCache) Peek(path string) (*types.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[path]; ok {
		return item.node.Clone(), true
	}
	return nil, false
}

// Has reports whether path names a node, resident or evicted.
func (c *NodeCache) Has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[path]
	return ok || c.indexed(path)
}

// Set stores a copy of node, relocating its children-index membership when
// the parent changed. The node's Dirty flag decides dirty-set membership.
func (c *NodeCache) Set(node *types.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := node.Clone()
	if item, ok := c.items[stored.Path]; ok {
		if item.node.ParentPath != stored.ParentPath {
			c.unindex(item.node.ParentPath, stored.Path)
		}
		item.node = stored
		c.evictList.MoveToFront(item.element)
	} else {
		element := c.evictList.PushFront(stored.Path)
		c.items[stored.Path] = &cacheItem{node: stored, element: element}
	}
	if stored.ParentPath != "" {
		c.index(stored.ParentPath, stored.Path)
	}
	if stored.Dirty {
		c.dirty[stored.Path] = struct{}{}
	} else {
		delete(c.dirty, stored.Path)
	}
	c.evictIfNeeded()
}

// Update applies fn to a copy of the resident node at path and stores the
// result when fn returns true, all under one lock. fn must not change the
// node's Path or ParentPath. It reports whether the node was stored.
func (c *NodeCache) Update(path string, fn func(*types.Node) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[path]
	if !ok {
		return false
	}
	n := item.node.Clone()
	if !fn(n) || n.Path != path || n.ParentPath != item.node.ParentPath {
		return false
	}
	item.node = n
	c.evictList.MoveToFront(item.element)
	if n.Dirty {
		c.dirty[path] = struct{}{}
	} else {
		delete(c.dirty, path)
	}
	return true
}

// Delete removes path and, through the children index, every descendant.
// It returns the removed paths, deepest first.
func (c *NodeCache) Delete(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.descendants(path)
	removed = append(removed, path)
	for _, p := range removed {
		if item, ok := c.items[p]; ok {
			c.evictList.Remove(item.element)
			delete(c.items, p)
		}
		delete(c.dirty, p)
		delete(c.children, p)
	}
	c.unindex(vpath.Dir(path), path)
	return removed
}

// GetChildren materializes the children of dir. Index entries whose node
// has disappeared are dropped.
func (c *NodeCache) GetChildren(dir string) []*types.Node {
	paths := c.ChildPaths(dir)
	nodes := make([]*types.Node, 0, len(paths))
	for _, p := range paths {
		n, ok := c.Get(p)
		if !ok {
			c.mu.Lock()
			if _, resident := c.items[p]; !resident && c.loader == nil {
				c.unindex(dir, p)
			}
			c.mu.Unlock()
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// ChildPaths returns the indexed children of dir, sorted.
func (c *NodeCache) ChildPaths(dir string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.children[dir]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Descendants returns every indexed descendant of dir, deepest first.
func (c *NodeCache) Descendants(dir string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descendants(dir)
}

// MarkDirty flags a resident node as needing write-back.
func (c *NodeCache) MarkDirty(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[path]; ok {
		item.node.Dirty = true
		c.dirty[path] = struct{}{}
	}
}

// ClearDirty clears the write-back flag.
func (c *NodeCache) ClearDirty(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[path]; ok {
		item.node.Dirty = false
	}
	delete(c.dirty, path)
}

// ClearDirtyIf clears the flag only if the node was not modified after
// modified, so a write racing with a sync sweep stays dirty.
func (c *NodeCache) ClearDirtyIf(path string, modified time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[path]
	if !ok {
		delete(c.dirty, path)
		return true
	}
	if !item.node.Modified.Equal(modified) {
		return false
	}
	item.node.Dirty = false
	delete(c.dirty, path)
	return true
}

// IsDirty reports whether path is in the dirty set.
func (c *NodeCache) IsDirty(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.dirty[path]
	return ok
}

// DirtyPaths returns the dirty set, sorted so parents precede children.
func (c *NodeCache) DirtyPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.dirty))
	for p := range c.dirty {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetDirtyNodes returns copies of every dirty node.
func (c *NodeCache) GetDirtyNodes() []*types.Node {
	paths := c.DirtyPaths()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Node, 0, len(paths))
	for _, p := range paths {
		if item, ok := c.items[p]; ok {
			out = append(out, item.node.Clone())
		}
	}
	return out
}

// Snapshot copies every resident node. Accessed is zeroed because reads
// update it.
func (c *NodeCache) Snapshot() map[string]*types.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*types.Node, len(c.items))
	for p, item := range c.items {
		n := item.node.Clone()
		n.Accessed = time.Time{}
		out[p] = n
	}
	return out
}

// Clear drops every node, index entry and dirty flag.
func (c *NodeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
	c.evictList.Init()
	c.children = make(map[string]map[string]struct{})
	c.dirty = make(map[string]struct{})
	c.pinWarned = false
}

// Len returns the number of resident nodes.
func (c *NodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *NodeCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.items)
	stats.Dirty = len(c.dirty)
	return stats
}

// Helper methods; callers hold c.mu.

func (c *NodeCache) touch(item *cacheItem) {
	item.node.Accessed = time.Now()
	c.evictList.MoveToFront(item.element)
}

func (c *NodeCache) indexed(path string) bool {
	parent := vpath.Dir(path)
	if parent == "" {
		return false
	}
	_, ok := c.children[parent][path]
	return ok
}

func (c *NodeCache) index(parent, path string) {
	set, ok := c.children[parent]
	if !ok {
		set = make(map[string]struct{})
		c.children[parent] = set
	}
	set[path] = struct{}{}
}

func (c *NodeCache) unindex(parent, path string) {
	if set, ok := c.children[parent]; ok {
		delete(set, path)
		if len(set) == 0 {
			delete(c.children, parent)
		}
	}
}

func (c *NodeCache) descendants(dir string) []string {
	var out []string
	var walk func(string)
	walk = func(p string) {
		for child := range c.children[p] {
			walk(child)
			out = append(out, child)
		}
	}
	walk(dir)
	return out
}

func (c *NodeCache) reload(path string, loader Loader) (*types.Node, bool) {
	node, err := loader(path)
	if err != nil {
		c.logger.Warn("reload of evicted node failed", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[path]; ok {
		c.touch(item)
		return item.node.Clone(), true
	}
	if !c.indexed(path) {
		return nil, false
	}
	if node == nil {
		c.unindex(vpath.Dir(path), path)
		return nil, false
	}

	stored := node.Clone()
	stored.Dirty = false
	stored.Accessed = time.Now()
	element := c.evictList.PushFront(stored.Path)
	c.items[stored.Path] = &cacheItem{node: stored, element: element}
	c.stats.Reloads++
	c.evictIfNeeded()
	return stored.Clone(), true
}

// evictIfNeeded drops least recently used clean nodes until the cache fits.
// The root and dirty nodes are pinned. Evicted nodes keep their place in the
// children index.
func (c *NodeCache) evictIfNeeded() {
	if c.capacity <= 0 {
		return
	}
	element := c.evictList.Back()
	for len(c.items) > c.capacity && element != nil {
		prev := element.Prev()
		path := element.Value.(string)
		_, isDirty := c.dirty[path]
		if path != vpath.Root && !isDirty {
			c.evictList.Remove(element)
			delete(c.items, path)
			c.stats.Evictions++
		}
		element = prev
	}
	if len(c.items) <= c.capacity {
		c.pinWarned = false
		return
	}
	if !c.pinWarned {
		c.pinWarned = true
		c.logger.Warn("node cache over capacity, remaining nodes are pinned",
			zap.Int("entries", len(c.items)),
			zap.Int("capacity", c.capacity),
			zap.Int("dirty", len(c.dirty)))
	}
}
