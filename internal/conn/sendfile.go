package conn

import (
	"container/list"
	"os"
	"sync"
	"syscall"
)

// FileCache caches open file descriptors with LRU eviction, grounded
// on the teacher's core/sendfile/sendfile.go, generalized from a
// package-level global into a value any Conn's zero-copy send path can
// share (spec.md 4.E "zero-copy fast path").
type FileCache struct {
	mu       sync.RWMutex
	cache    map[string]*cacheEntry
	lruList  *list.List
	maxFiles int
}

type cacheEntry struct {
	file    *os.File
	element *list.Element
}

// NewFileCache creates a cache holding at most maxFiles open
// descriptors.
func NewFileCache(maxFiles int) *FileCache {
	return &FileCache{
		cache:    make(map[string]*cacheEntry),
		lruList:  list.New(),
		maxFiles: maxFiles,
	}
}

// Get returns an open *os.File for path, from cache or freshly opened.
func (fc *FileCache) Get(path string) (*os.File, error) {
	fc.mu.RLock()
	entry, ok := fc.cache[path]
	fc.mu.RUnlock()
	if ok {
		fc.mu.Lock()
		fc.lruList.MoveToFront(entry.element)
		fc.mu.Unlock()
		return entry.file, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	element := fc.lruList.PushFront(path)
	fc.cache[path] = &cacheEntry{file: file, element: element}

	if fc.lruList.Len() > fc.maxFiles {
		oldest := fc.lruList.Back()
		if oldest != nil {
			oldPath := oldest.Value.(string)
			if oldEntry, ok := fc.cache[oldPath]; ok {
				oldEntry.file.Close()
				delete(fc.cache, oldPath)
			}
			fc.lruList.Remove(oldest)
		}
	}
	return file, nil
}

// Close releases every cached descriptor.
func (fc *FileCache) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, entry := range fc.cache {
		entry.file.Close()
	}
	fc.cache = make(map[string]*cacheEntry)
	fc.lruList.Init()
}

// SendFile writes count bytes of filePath starting at offset directly
// to c's fd via the sendfile(2) zero-copy syscall, in a single attempt.
// EAGAIN/EINTR is not retried here: it is reported as (0, nil), and the
// caller calls again once its Subscribe(SubRetrySend, ...) wakeup fires.
func (fc *FileCache) SendFile(c *Conn, filePath string, offset int64, count int) (int, error) {
	file, err := fc.Get(filePath)
	if err != nil {
		return 0, err
	}
	fileFd := int(file.Fd())

	n, err := syscall.Sendfile(c.FDNum, fileFd, &offset, count)
	if err != nil && (err == syscall.EAGAIN || err == syscall.EINTR) {
		return 0, nil
	}
	return n, err
}
