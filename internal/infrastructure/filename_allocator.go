package infrastructure

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// URLResolver resolves redirects to a final URL
type URLResolver interface {
	ResolveFinalURL(ctx context.Context, rawURL string) (string, error)
}

// illegalFilenameChars are stripped from every derived filename
var illegalFilenameChars = strings.NewReplacer(
	`\`, "", "/", "", ":", "", "*", "", "?", "", `"`, "", "<", "", ">", "", "|", "",
)

const fallbackFilename = "download"

// Allocator hands out collision-free destination paths.
// A path stays reserved until Release so concurrent transfers never share it.
type Allocator struct {
	resolver URLResolver
	logger   *zap.Logger

	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex
	// reserved maps a reserved path to the name it was derived from
	reserved map[string]string
}

// NewAllocator creates an allocator; resolver may be nil to skip redirect lookups
func NewAllocator(resolver URLResolver, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{
		resolver: resolver,
		logger:   logger,
		dirLocks: make(map[string]*sync.Mutex),
		reserved: make(map[string]string),
	}
}

// Allocate derives a unique destination path in dir for rawURL.
// Extension-less URLs are treated as redirectors and resolved first.
func (a *Allocator) Allocate(ctx context.Context, rawURL, dir string) (string, error) {
	if a.resolver != nil && !strings.Contains(lastSegment(rawURL), ".") {
		final, err := a.resolver.ResolveFinalURL(ctx, rawURL)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", rawURL, err)
		}
		a.logger.Debug("Resolved redirect", zap.String("url", rawURL), zap.String("final", final))
		rawURL = final
	}
	return a.reserve(dir, FilenameFromURL(rawURL))
}

// Reallocate re-derives the filename of a reserved path from a final URL.
// A path already allocated from the same name is kept, counter included.
// The old reservation is released when the name changes.
func (a *Allocator) Reallocate(path, finalURL string) (string, error) {
	dir := filepath.Dir(path)
	name := FilenameFromURL(finalURL)
	if name == filepath.Base(path) || name == fallbackFilename {
		return path, nil
	}
	a.mu.Lock()
	origin := a.reserved[path]
	a.mu.Unlock()
	if origin == name {
		return path, nil
	}

	newPath, err := a.reserve(dir, name)
	if err != nil {
		return "", err
	}
	a.Release(path)
	return newPath, nil
}

// Release frees a reservation made by Allocate or Reallocate
func (a *Allocator) Release(path string) {
	a.mu.Lock()
	delete(a.reserved, path)
	a.mu.Unlock()
}

// reserve finds a free name under the directory lock.
// The filesystem is re-checked on every call, never cached.
func (a *Allocator) reserve(dir, name string) (string, error) {
	dir = filepath.Clean(dir)
	lock := a.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	candidate := filepath.Join(dir, name)
	if a.isFree(candidate) {
		a.markReserved(candidate, name)
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if a.isFree(candidate) {
			a.markReserved(candidate, name)
			return candidate, nil
		}
	}
}

func (a *Allocator) dirLock(dir string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.dirLocks[dir]
	if !ok {
		lock = &sync.Mutex{}
		a.dirLocks[dir] = lock
	}
	return lock
}

func (a *Allocator) isFree(path string) bool {
	a.mu.Lock()
	_, taken := a.reserved[path]
	a.mu.Unlock()
	if taken {
		return false
	}
	_, err := os.Lstat(path)
	return os.IsNotExist(err)
}

func (a *Allocator) markReserved(path, name string) {
	a.mu.Lock()
	a.reserved[path] = name
	a.mu.Unlock()
}

// FilenameFromURL returns the decoded, sanitized last path segment of rawURL
func FilenameFromURL(rawURL string) string {
	segment := lastSegment(rawURL)
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	name := SafeFilename(segment)
	if name == "" || name == "." || name == ".." {
		return fallbackFilename
	}
	return name
}

// SafeFilename removes characters that are illegal on common filesystems
func SafeFilename(name string) string {
	return strings.TrimSpace(illegalFilenameChars.Replace(name))
}

// lastSegment returns the last "/" delimited component of the URL path
func lastSegment(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.EscapedPath()
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
