package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/pretty"

	errs "tumblrsync/pkg/errors"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/tumblr"
)

// DefaultEqualPostsLimit is how many already stored posts in a row end a
// blog's pagination
const DefaultEqualPostsLimit = 100

// ErrTooManyEqualPosts ends a blog once its already stored posts are reached
var ErrTooManyEqualPosts = errors.New("too many equal posts, stopping")

// Downloader mirrors a remote file to dest
type Downloader interface {
	Download(ctx context.Context, url, dest string) (skipped bool, err error)
}

// Result is the outcome of storing one post
type Result int

const (
	// Stored means the post was new
	Stored Result = iota
	// Updated means the post changed and the previous copy went to .bak
	Updated
	// Unchanged means an identical copy was already on disk
	Unchanged
)

func (r Result) String() string {
	switch r {
	case Stored:
		return "stored"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Stats counts what a Manager did
type Stats struct {
	Stored          int
	Updated         int
	Unchanged       int
	MediaDownloaded int
	MediaSkipped    int
	MediaFailed     int
}

// Options configures a Manager
type Options struct {
	// Root is the backup folder
	Root string
	// EqualPostsLimit ends a blog after more than this many consecutive
	// unchanged posts. Zero means DefaultEqualPostsLimit.
	EqualPostsLimit int
	// Force disables the equal-posts stop
	Force bool
	// SkipMedia stores posts without mirroring their files
	SkipMedia  bool
	Downloader Downloader
	Logger     logger.Logger
	// Location is the zone used for the date directories. Nil means local.
	Location *time.Location
}

// Manager writes posts under <root>/<blog>/YYYY/MM/DD/<id>.json and mirrors
// their media next to them
type Manager struct {
	root       string
	equalLimit int
	force      bool
	skipMedia  bool
	downloader Downloader
	logger     logger.Logger
	loc        *time.Location

	mu    sync.Mutex
	equal int
	stats Stats
}

// NewManager creates the backup folder and returns a Manager for it
func NewManager(opts Options) (*Manager, error) {
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if !opts.SkipMedia && opts.Downloader == nil {
		return nil, errors.New("a downloader is required unless media is skipped")
	}

	limit := opts.EqualPostsLimit
	if limit <= 0 {
		limit = DefaultEqualPostsLimit
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Manager{
		root:       opts.Root,
		equalLimit: limit,
		force:      opts.Force,
		skipMedia:  opts.SkipMedia,
		downloader: opts.Downloader,
		logger:     log.WithField("component", "storage"),
		loc:        loc,
	}, nil
}

// BeginBlog creates the blog directory and resets the equal-posts counter
func (m *Manager) BeginBlog(blog string) error {
	m.mu.Lock()
	m.equal = 0
	m.mu.Unlock()

	if err := os.MkdirAll(m.BlogDir(blog), 0755); err != nil {
		return fmt.Errorf("failed to create blog directory: %w", err)
	}
	return nil
}

// BlogDir returns the directory holding a blog's posts
func (m *Manager) BlogDir(blog string) string {
	return filepath.Join(m.root, blog)
}

// StorePosts stores a page of posts in order. It returns
// ErrTooManyEqualPosts once the equal-posts limit is passed.
func (m *Manager) StorePosts(ctx context.Context, blog string, posts []json.RawMessage) error {
	for _, raw := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.StorePost(ctx, blog, raw); err != nil {
			return err
		}
	}
	return nil
}

// StorePost writes one post. Volatile keys are removed first so an
// unchanged post compares equal to the stored copy.
func (m *Manager) StorePost(ctx context.Context, blog string, raw json.RawMessage) (Result, error) {
	clean, err := StripKeys(raw, VolatileKeys...)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeParsing, 0, "failed to strip volatile keys", err)
	}

	var post tumblr.Post
	if err := json.Unmarshal(clean, &post); err != nil {
		return 0, errs.Wrap(errs.ErrorTypeParsing, 0, "failed to parse post", err)
	}
	if post.IDString == "" {
		return 0, errs.New(errs.ErrorTypeParsing, 0, "post has no id_string")
	}

	dir := m.PostDir(blog, post.Timestamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create post directory: %w", err)
	}
	file := filepath.Join(dir, post.IDString+".json")

	result := Stored
	if existing, err := os.ReadFile(file); err == nil {
		if SameJSON(existing, clean) {
			return Unchanged, m.unchanged(post.IDString)
		}

		m.logger.WarnWithFields("post has changed, updating", map[string]interface{}{
			"post_id": post.IDString,
		})
		backup := file + ".bak"
		if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("failed to remove old backup: %w", err)
		}
		if err := os.Rename(file, backup); err != nil {
			return 0, fmt.Errorf("failed to back up changed post: %w", err)
		}
		result = Updated
	}

	m.mu.Lock()
	m.equal = 0
	m.mu.Unlock()

	if err := writeFileAtomic(file, pretty.Pretty(clean)); err != nil {
		return 0, err
	}
	m.logger.InfoWithFields("stored post", map[string]interface{}{
		"blog":    blog,
		"post_id": post.IDString,
		"result":  result.String(),
	})

	m.mu.Lock()
	if result == Updated {
		m.stats.Updated++
	} else {
		m.stats.Stored++
	}
	m.mu.Unlock()

	if !m.skipMedia {
		if err := m.mirrorMedia(ctx, blog, dir, &post); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (m *Manager) unchanged(postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.equal++
	m.stats.Unchanged++
	m.logger.WarnWithFields("post already stored, skipping", map[string]interface{}{
		"post_id": postID,
		"equal":   m.equal,
	})

	if !m.force && m.equal > m.equalLimit {
		return ErrTooManyEqualPosts
	}
	return nil
}

// mirrorMedia downloads the post's files into <dir>/<id>/. A failed file
// is logged and counted; only cancellation stops the loop.
func (m *Manager) mirrorMedia(ctx context.Context, blog, dir string, post *tumblr.Post) error {
	for _, u := range post.MediaURLs() {
		name, err := mediaFileName(u)
		if err != nil {
			m.logger.WarnWithFields("skipping media with invalid URL", map[string]interface{}{
				"post_id": post.IDString,
				"url":     u,
			})
			continue
		}
		dest := filepath.Join(dir, post.IDString, name)

		skipped, err := m.downloader.Download(ctx, u, dest)
		logger.LogDownload(m.logger, blog, post.IDString, dest, err)

		m.mu.Lock()
		switch {
		case err != nil:
			m.stats.MediaFailed++
		case skipped:
			m.stats.MediaSkipped++
		default:
			m.stats.MediaDownloaded++
		}
		m.mu.Unlock()

		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// PostDir returns <root>/<blog>/YYYY/MM/DD for a post timestamp
func (m *Manager) PostDir(blog string, timestamp int64) string {
	when := time.Unix(timestamp, 0).In(m.loc)
	return filepath.Join(m.root, blog,
		fmt.Sprintf("%04d", when.Year()),
		fmt.Sprintf("%02d", int(when.Month())),
		fmt.Sprintf("%02d", when.Day()))
}

// Stats returns a snapshot of the counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// mediaFileName is the last element of the URL path
func mediaFileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no file name in %q", raw)
	}
	return name, nil
}

func writeFileAtomic(filename string, data []byte) error {
	tempFile := filename + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write post: %w", err)
	}
	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
