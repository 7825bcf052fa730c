// Package cache implements the disk-backed filing cache: raw filing
// bytes keyed by a content key, with an LRU eviction policy bounded by
// total bytes on disk.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const metadataFile = "cache_metadata.json"

// Key builds the stable cache key for a (cik, lookback_years) pair
// (spec §3 Cache Entry "cache_key = hash(cik, lookback_years)"). The
// cik prefix stays readable so ClearCompany can prefix-scan entries
// for one company without needing a secondary index.
func Key(cik string, lookbackYears int) string {
	sum := xxhash.Sum64String(cik + ":" + strconv.Itoa(lookbackYears))
	return fmt.Sprintf("%s-%016x", cik, sum)
}

// entry is one cached payload's bookkeeping record.
type entry struct {
	Key          string    `json:"key"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Cache is a thread-safe disk-backed LRU cache of filing payloads.
type Cache struct {
	dir          string
	maxBytes     int64
	evictToRatio float64

	mu      sync.Mutex
	entries map[string]*entry
	total   int64
}

// Open opens (or creates) a cache rooted at dir, loads its metadata
// index, and runs a startup consistency pass: entries whose payload
// file is missing are dropped, and payload files with no matching
// entry are adopted at their on-disk mtime.
func Open(dir string, maxBytes int64, evictToRatio float64) (*Cache, error) {
	if evictToRatio <= 0 || evictToRatio > 1 {
		evictToRatio = 0.90
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}

	c := &Cache{
		dir:          dir,
		maxBytes:     maxBytes,
		evictToRatio: evictToRatio,
		entries:      make(map[string]*entry),
	}

	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	if err := c.consistencyPass(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) loadIndex() error {
	path := filepath.Join(c.dir, metadataFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read metadata: %w", err)
	}

	var list []*entry
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("cache: parse metadata: %w", err)
	}
	for _, e := range list {
		c.entries[e.Key] = e
		c.total += e.Size
	}
	return nil
}

// consistencyPass reconciles the in-memory index against what is
// actually present on disk.
func (c *Cache) consistencyPass() error {
	onDisk := map[string]os.FileInfo{}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("cache: list dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || f.Name() == metadataFile {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		onDisk[f.Name()] = info
	}

	for key, e := range c.entries {
		if _, ok := onDisk[filepath.Base(e.Path)]; !ok {
			c.total -= e.Size
			delete(c.entries, key)
		}
	}

	known := map[string]bool{}
	for _, e := range c.entries {
		known[filepath.Base(e.Path)] = true
	}
	for name, info := range onDisk {
		if known[name] {
			continue
		}
		e := &entry{Key: name, Path: filepath.Join(c.dir, name), Size: info.Size(), LastAccessed: info.ModTime()}
		c.entries[e.Key] = e
		c.total += e.Size
	}

	return c.saveIndexLocked()
}

// Get returns the cached payload for key, refreshing its last-accessed
// time, or false if absent.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		e.LastAccessed = time.Now()
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key via an atomic write-then-rename, then
// evicts the least-recently-used entries if the cache now exceeds
// maxBytes.
func (c *Cache) Put(key string, data []byte) error {
	safeName := sanitizeKey(key)
	finalPath := filepath.Join(c.dir, safeName)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: rename into place: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.total -= old.Size
	}
	e := &entry{Key: key, Path: finalPath, Size: int64(len(data)), LastAccessed: time.Now()}
	c.entries[key] = e
	c.total += e.Size

	if c.maxBytes > 0 && c.total > c.maxBytes {
		c.evictLocked()
	}
	return c.saveIndexLocked()
}

// evictLocked removes least-recently-accessed entries until total
// usage is at or below maxBytes*evictToRatio. Caller must hold mu.
func (c *Cache) evictLocked() {
	target := int64(float64(c.maxBytes) * c.evictToRatio)
	if c.total <= target {
		return
	}

	ordered := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LastAccessed.Before(ordered[j].LastAccessed)
	})

	for _, e := range ordered {
		if c.total <= target {
			break
		}
		os.Remove(e.Path)
		delete(c.entries, e.Key)
		c.total -= e.Size
	}
}

func (c *Cache) saveIndexLocked() error {
	list := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("cache: marshal metadata: %w", err)
	}

	tmpPath := filepath.Join(c.dir, metadataFile+".tmp")
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("cache: write metadata temp: %w", err)
	}
	return os.Rename(tmpPath, filepath.Join(c.dir, metadataFile))
}

// Stats returns the current entry count and total bytes used.
func (c *Cache) Stats() (count int, totalBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.total
}

// CompanyStats is one row of the per-company breakdown the spec's
// cache stats() operation reports (spec §4.B).
type CompanyStats struct {
	CIK          string
	EntryCount   int
	SizeBytes    int64
	LastAccessed time.Time
}

// FullStats reports total usage, capacity percentage, and a
// per-company breakdown keyed by the cik prefix of each entry's key
// (spec §4.B "stats() -> current size, entry count, per-company
// breakdown, capacity %").
type FullStats struct {
	EntryCount      int
	TotalBytes      int64
	CapacityPercent float64
	PerCompany      []CompanyStats
}

// FullStats computes the richer stats view used by the Batch
// Controller and CLI status surfaces.
func (c *Cache) FullStats() FullStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byCIK := map[string]*CompanyStats{}
	for key, e := range c.entries {
		cik := cikFromKey(key)
		cs, ok := byCIK[cik]
		if !ok {
			cs = &CompanyStats{CIK: cik}
			byCIK[cik] = cs
		}
		cs.EntryCount++
		cs.SizeBytes += e.Size
		if e.LastAccessed.After(cs.LastAccessed) {
			cs.LastAccessed = e.LastAccessed
		}
	}

	out := FullStats{EntryCount: len(c.entries), TotalBytes: c.total}
	if c.maxBytes > 0 {
		out.CapacityPercent = float64(c.total) / float64(c.maxBytes) * 100
	}
	for _, cs := range byCIK {
		out.PerCompany = append(out.PerCompany, *cs)
	}
	sort.Slice(out.PerCompany, func(i, j int) bool { return out.PerCompany[i].CIK < out.PerCompany[j].CIK })
	return out
}

func cikFromKey(key string) string {
	if idx := strings.LastIndex(key, "-"); idx > 0 {
		return key[:idx]
	}
	return key
}

// Clear removes every cached payload and resets the index.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		os.Remove(e.Path)
	}
	c.entries = make(map[string]*entry)
	c.total = 0
	return c.saveIndexLocked()
}

// ClearCompany removes every cached entry belonging to cik (any
// lookback window), used by the "clear-cache <cik>" CLI command and
// the Batch Controller's per-ticker retry path (spec §4.B "clear(cik)").
func (c *Cache) ClearCompany(cik string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := cik + "-"
	for key, e := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		os.Remove(e.Path)
		c.total -= e.Size
		delete(c.entries, key)
	}
	return c.saveIndexLocked()
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_' || r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
