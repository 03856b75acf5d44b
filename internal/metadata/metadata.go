package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

const UnknownTitle = "Unknown Title"

// Record is what a lookup returns for a source URL. Qualities holds quality
// descriptors in the order they should be offered.
type Record struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Qualities []string `json:"qualities"`
	Thumbnail []byte   `json:"-"`
	Uploader  string   `json:"uploader,omitempty"`
	Duration  float64  `json:"duration,omitempty"`
}

type Provider interface {
	Fetch(ctx context.Context, sourceURL string, notify func(status string)) (Record, error)
}

type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("metadata lookup failed for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var ErrUnsupportedURL = errors.New("please enter a valid YouTube URL")

// ValidateSourceURL accepts youtube.com and youtu.be links only.
func ValidateSourceURL(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", ErrUnsupportedURL
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrUnsupportedURL
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be",
		host == "youtube.com",
		strings.HasSuffix(host, ".youtube.com"):
		return v, nil
	default:
		return "", ErrUnsupportedURL
	}
}

// Cache maps source URLs to records. Entries are never evicted; a later
// Store for the same URL replaces the earlier one.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Record
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: map[string]Record{}}
}

func (c *Cache) Lookup(sourceURL string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[sourceURL]
	return rec, ok
}

func (c *Cache) Store(sourceURL string, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sourceURL] = rec
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolve returns the cached record for sourceURL or fetches it through p.
// Concurrent calls for the same URL share one fetch. The bool reports a
// cache hit.
func (c *Cache) Resolve(ctx context.Context, sourceURL string, p Provider, notify func(string)) (Record, bool, error) {
	if rec, ok := c.Lookup(sourceURL); ok {
		return rec, true, nil
	}
	if notify == nil {
		notify = func(string) {}
	}
	v, err, _ := c.group.Do(sourceURL, func() (any, error) {
		if rec, ok := c.Lookup(sourceURL); ok {
			return rec, nil
		}
		rec, err := p.Fetch(ctx, sourceURL, notify)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				return nil, err
			}
			return nil, &FetchError{URL: sourceURL, Err: err}
		}
		if strings.TrimSpace(rec.Title) == "" {
			rec.Title = UnknownTitle
		}
		if rec.URL == "" {
			rec.URL = sourceURL
		}
		c.Store(sourceURL, rec)
		return rec, nil
	})
	if err != nil {
		return Record{}, false, err
	}
	return v.(Record), false, nil
}
