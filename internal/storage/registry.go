package storage

import "sync"

// pathMutexes guards concurrent in-process writers against the same
// backing file path, supplementing the process-level file lock (spec
// §4.4, Single-writer exclusion: "a process-level mutex protects against
// concurrent in-process writers against the same path").
var (
	pathMutexesGuard sync.Mutex
	pathMutexes      = map[string]*sync.Mutex{}
)

func mutexForPath(path string) *sync.Mutex {
	pathMutexesGuard.Lock()
	defer pathMutexesGuard.Unlock()
	m, ok := pathMutexes[path]
	if !ok {
		m = &sync.Mutex{}
		pathMutexes[path] = m
	}
	return m
}
