/*
Package vfs is the filesystem engine: a POSIX-path tree held in a bounded
node cache, serialized per path, mutated through transactions and written
back to durable storage in the background.

# Architecture

	┌──────────────────────────────────────────────────────┐
	│                    FileSystem                        │
	│  ReadFile WriteFile Mkdir Delete Move Copy ReadDir   │
	└──┬──────────┬──────────┬───────────┬──────────┬──────┘
	   │          │          │           │          │
	┌──▼───┐  ┌───▼───┐  ┌───▼────┐  ┌───▼─────┐ ┌──▼─────┐
	│vpath │  │ lock  │  │  txn   │  │  cache  │ │ events │
	└──────┘  └───────┘  └────────┘  └───┬─────┘ └────────┘
	                                     │
	                              ┌──────▼──────┐
	                              │  writeback  │──▶ storage.Adapter
	                              └─────────────┘     (backup on failure)

Every mutation follows the same sequence: clean and validate the paths,
take the path locks, build a transaction, execute it with automatic
rollback, release the locks and emit an event. Validation errors are
returned before any lock is taken.

# Locking

Path locks are not hierarchical. Single-node mutations lock their own path
and hold the tree lock shared; delete, move and recursive copy hold it
exclusively, so a subtree never changes while it is being rewritten.
Multi-path operations acquire their locks in lexicographic order.

# Durability

The cache is the source of truth for callers. Dirty nodes are written back
by the periodic sweep and by Flush and Shutdown; storage failures are logged
and retried, never returned from interactive operations. Deletions reach
storage right after the transaction commits; the old records of a move are
removed by the next sweep, after the new ones are written.

# Quota

File bytes are tracked as a running total changed only by transaction
steps, so a failed or rolled-back operation leaves it untouched. A write
that would exceed MaxTotalSize fails with QUOTA_EXCEEDED.

# Usage

	fs := vfs.New(store, vfs.DefaultConfig(), logger,
		vfs.WithBackup(backupStore),
		vfs.WithEmitter(bus))
	if err := fs.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer fs.Shutdown(ctx)

	if err := fs.WriteFile(ctx, "/home/user/notes.txt", []byte("hi")); err != nil {
		return err
	}
	entries, err := fs.ReadDir(ctx, "/home/user")
*/
package vfs
