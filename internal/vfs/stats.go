package vfs

import (
	"sync"
)

// Stats tracks filesystem operation statistics
type Stats struct {
	// Operation counts
	Reads   int64 `json:"reads"`
	Writes  int64 `json:"writes"`
	Creates int64 `json:"creates"`
	Deletes int64 `json:"deletes"`
	Moves   int64 `json:"moves"`
	Copies  int64 `json:"copies"`
	Lists   int64 `json:"lists"`

	// Data transfer
	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`

	// Error counts
	Errors      int64 `json:"errors"`
	Rollbacks   int64 `json:"rollbacks"`
	BackupSaves int64 `json:"backup_saves"`
}

type statsTracker struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsTracker) update(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

func (s *statsTracker) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *statsTracker) record(op string, size int64, err error) {
	s.update(func(st *Stats) {
		if err != nil {
			st.Errors++
			return
		}
		switch op {
		case opReadFile:
			st.Reads++
			st.BytesRead += size
		case opWriteFile, opAppendFile, opTouchFile:
			st.Writes++
			st.BytesWritten += size
		case opMkdir:
			st.Creates++
		case opDelete:
			st.Deletes++
		case opMove, opRename:
			st.Moves++
		case opCopy:
			st.Copies++
			st.BytesWritten += size
		case opReadDir:
			st.Lists++
		}
	})
}
