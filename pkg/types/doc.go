/*
Package types defines the data model shared by every webvfs component.

# Nodes

A Node is one entry of the tree: a file or a directory keyed by its canonical
absolute path. Nodes link upward only, through ParentPath; the downward
direction is a derived index owned by the node cache.

	/                 (root, ParentPath "")
	├── home          (ParentPath "/")
	│   └── notes.txt (ParentPath "/home", Content, Size)
	└── tmp

Directories never hold content and always report size 0. Permissions are kept
as an advisory string and never enforced.

# Records

Record is the projection of a Node written to durable storage. Transient
fields (Accessed, Dirty) are dropped and timestamps become epoch
milliseconds so that every storage backend sees the same shape:

	{path, name, kind, parentPath, content?, created, modified, permissions, size}
*/
package types
