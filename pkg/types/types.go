package types

import (
	"time"
)

// Kind distinguishes files from directories.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Node is a cached filesystem entry.
type Node struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	ParentPath  string    `json:"parent_path"`
	Content     []byte    `json:"content,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Accessed    time.Time `json:"accessed"`
	Permissions string    `json:"permissions"`
	Size        int64     `json:"size"`
	Dirty       bool      `json:"dirty"`
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == KindDirectory
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Content != nil {
		c.Content = make([]byte, len(n.Content))
		copy(c.Content, n.Content)
	}
	return &c
}

// Record is the durable-storage projection of a Node.
type Record struct {
	Path        string `json:"path" cbor:"path"`
	Name        string `json:"name" cbor:"name"`
	Kind        Kind   `json:"kind" cbor:"kind"`
	ParentPath  string `json:"parentPath" cbor:"parentPath"`
	Content     []byte `json:"content,omitempty" cbor:"content,omitempty"`
	Created     int64  `json:"created" cbor:"created"`
	Modified    int64  `json:"modified" cbor:"modified"`
	Permissions string `json:"permissions" cbor:"permissions"`
	Size        int64  `json:"size" cbor:"size"`
}

// NodeToRecord projects a node for persistence.
func NodeToRecord(n *Node) *Record {
	r := &Record{
		Path:        n.Path,
		Name:        n.Name,
		Kind:        n.Kind,
		ParentPath:  n.ParentPath,
		Created:     n.Created.UnixMilli(),
		Modified:    n.Modified.UnixMilli(),
		Permissions: n.Permissions,
		Size:        n.Size,
	}
	if n.Kind == KindFile {
		r.Content = make([]byte, len(n.Content))
		copy(r.Content, n.Content)
	}
	return r
}

// RecordToNode rebuilds a clean node from a persisted record.
func RecordToNode(r *Record, now time.Time) *Node {
	n := &Node{
		Path:        r.Path,
		Name:        r.Name,
		Kind:        r.Kind,
		ParentPath:  r.ParentPath,
		Created:     time.UnixMilli(r.Created),
		Modified:    time.UnixMilli(r.Modified),
		Accessed:    now,
		Permissions: r.Permissions,
		Size:        r.Size,
	}
	if r.Kind == KindFile {
		n.Content = make([]byte, len(r.Content))
		copy(n.Content, r.Content)
		n.Size = int64(len(n.Content))
	} else {
		n.Size = 0
	}
	return n
}

// CacheStats represents node cache statistics.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Reloads   uint64 `json:"reloads"`
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Dirty     int    `json:"dirty"`
}

// DirectoryInfo summarizes a subtree.
type DirectoryInfo struct {
	Path        string `json:"path"`
	Files       int    `json:"files"`
	Directories int    `json:"directories"`
	TotalSize   int64  `json:"total_size"`
}

// Usage reports quota consumption.
type Usage struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Available int64 `json:"available"`
}

// FileInfo is the metadata view of a node returned by stat and directory
// listings. It never carries content.
type FileInfo struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	ParentPath  string    `json:"parent_path"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Accessed    time.Time `json:"accessed"`
	Permissions string    `json:"permissions"`
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Kind == KindDirectory
}

// Info returns the metadata view of the node.
func (n *Node) Info() FileInfo {
	return FileInfo{
		Path:        n.Path,
		Name:        n.Name,
		Kind:        n.Kind,
		ParentPath:  n.ParentPath,
		Size:        n.Size,
		Created:     n.Created,
		Modified:    n.Modified,
		Accessed:    n.Accessed,
		Permissions: n.Permissions,
	}
}
