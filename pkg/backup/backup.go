package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tumblrsync/pkg/checkpoint"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/metadata"
	"tumblrsync/pkg/storage"
	"tumblrsync/pkg/tumblr"
)

// ErrBackupFailed is returned when at least one blog failed
var ErrBackupFailed = errors.New("there were errors during the backup process")

// Options configures an Orchestrator
type Options struct {
	Client APIClient
	Store  PostStore
	// Root is the backup folder; checkpoints live under it
	Root string
	// Blogs restricts the run to these blogs. Empty means every blog.
	Blogs []string
	// Limit caps the posts fetched per blog; tumblr.Unlimited for all
	Limit int
	// Resume continues each blog from its checkpoint
	Resume   bool
	RunID    string
	Reporter Reporter
	Logger   logger.Logger
}

// BlogResult is the outcome for one blog
type BlogResult struct {
	Name     string
	Received int
	// UpToDate means the run hit posts that were already stored
	UpToDate bool
	Err      error
	// Metadata is what was written to the blog folder, nil on failure
	Metadata *metadata.BlogMetadata
}

// Summary describes a finished run
type Summary struct {
	RunID    string
	User     string
	Blogs    []BlogResult
	Stats    storage.Stats
	Duration time.Duration
}

// Orchestrator backs up every blog of the authenticated user
type Orchestrator struct {
	client   APIClient
	store    PostStore
	root     string
	blogs    []string
	limit    int
	resume   bool
	runID    string
	reporter Reporter
	logger   logger.Logger
}

// New creates an Orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil || opts.Store == nil {
		return nil, errors.New("backup requires an API client and a post store")
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	limit := opts.Limit
	if limit == 0 {
		limit = tumblr.Unlimited
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	blogs := make([]string, 0, len(opts.Blogs))
	for _, b := range opts.Blogs {
		name := tumblr.SanitizeBlogName(b)
		if name == "" {
			continue
		}
		if !tumblr.IsValidBlogName(name) {
			return nil, fmt.Errorf("invalid blog name %q", b)
		}
		blogs = append(blogs, name)
	}

	return &Orchestrator{
		client:   opts.Client,
		store:    opts.Store,
		root:     opts.Root,
		blogs:    blogs,
		limit:    limit,
		resume:   opts.Resume,
		runID:    runID,
		reporter: reporter,
		logger:   log.WithField("run_id", runID),
	}, nil
}

// RunID identifies this run in logs and checkpoints
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run fetches the user's blogs and backs each one up in turn. A failing
// blog is logged and does not stop the others; the run then ends with
// ErrBackupFailed joined with every blog error. Cancellation stops at
// once.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: o.runID}

	o.logger.Info("starting backup")

	user, err := o.client.UserInfo(ctx)
	if err != nil {
		o.logger.WithError(err).Error("failed to fetch user info")
		return summary, fmt.Errorf("failed to fetch user info: %w", err)
	}
	summary.User = user.Name

	blogs, missing := o.selectBlogs(user.Blogs)

	var failures []error
	for _, name := range missing {
		failures = append(failures, fmt.Errorf("blog %s: not found among the blogs of %s", name, user.Name))
	}

	for _, blog := range blogs {
		if err := ctx.Err(); err != nil {
			return o.finish(summary, start), err
		}

		before := o.store.Stats().MediaFailed
		result := o.backupBlog(ctx, blog)
		summary.Blogs = append(summary.Blogs, result)

		if result.Err != nil {
			if ctx.Err() != nil {
				return o.finish(summary, start), ctx.Err()
			}
			o.logger.WithError(result.Err).WithField("blog", blog.Name).Error("blog backup failed")
			failures = append(failures, fmt.Errorf("blog %s: %w", blog.Name, result.Err))
			continue
		}

		if failed := o.store.Stats().MediaFailed - before; failed > 0 {
			failures = append(failures, fmt.Errorf("blog %s: %d media downloads failed", blog.Name, failed))
		}
	}

	o.finish(summary, start)
	o.logger.InfoWithFields("backup finished", map[string]interface{}{
		"blogs":       len(summary.Blogs),
		"stored":      summary.Stats.Stored,
		"updated":     summary.Stats.Updated,
		"unchanged":   summary.Stats.Unchanged,
		"media":       summary.Stats.MediaDownloaded,
		"duration_ms": summary.Duration.Milliseconds(),
	})

	if len(failures) > 0 {
		return summary, errors.Join(append([]error{ErrBackupFailed}, failures...)...)
	}
	return summary, nil
}

func (o *Orchestrator) finish(summary *Summary, start time.Time) *Summary {
	summary.Stats = o.store.Stats()
	summary.Duration = time.Since(start)
	return summary
}

// selectBlogs applies the blog filter, keeping the API's order
func (o *Orchestrator) selectBlogs(all []tumblr.Blog) ([]tumblr.Blog, []string) {
	if len(o.blogs) == 0 {
		return all, nil
	}

	byName := make(map[string]tumblr.Blog, len(all))
	for _, b := range all {
		byName[b.Name] = b
	}

	var selected []tumblr.Blog
	var missing []string
	for _, name := range o.blogs {
		if b, ok := byName[name]; ok {
			selected = append(selected, b)
		} else {
			missing = append(missing, name)
		}
	}
	return selected, missing
}

func (o *Orchestrator) backupBlog(ctx context.Context, blog tumblr.Blog) (result BlogResult) {
	result.Name = blog.Name
	log := o.logger.WithField("blog", blog.Name)
	defer func() { o.reporter.FinishBlog(blog.Name, result.Err) }()

	if err := o.store.BeginBlog(blog.Name); err != nil {
		result.Err = err
		return result
	}

	cpMgr, cp := o.checkpoint(blog.Name, log)
	offset, stored := 0, 0
	if cp != nil {
		offset, stored = cp.Offset, cp.Stored
	}

	log.InfoWithFields("backing up blog", map[string]interface{}{
		"posts":  blog.Posts,
		"offset": offset,
	})
	o.reporter.StartBlog(blog.Name, blog.Posts, stored)

	onPage := func(ctx context.Context, items []json.RawMessage) error {
		if err := o.store.StorePosts(ctx, blog.Name, items); err != nil {
			return err
		}
		result.Received += len(items)

		if cp != nil {
			if err := cpMgr.UpdateProgress(cp, offset+result.Received, stored+result.Received); err != nil {
				log.WithError(err).Warn("failed to update checkpoint")
			}
		}
		logger.LogBackupProgress(log, blog.Name, stored+result.Received, blog.Posts)
		o.reporter.PageStored(blog.Name, stored+result.Received)
		return nil
	}

	_, err := o.client.APIArrayCall(ctx, tumblr.BlogPostsPath(blog.Name), tumblr.PostsOptions(o.limit, offset, onPage))
	switch {
	case errors.Is(err, storage.ErrTooManyEqualPosts):
		log.Warn(err.Error())
		result.UpToDate = true
	case err != nil:
		result.Err = err
		return result
	}

	if cpMgr != nil {
		if err := cpMgr.Delete(); err != nil {
			log.WithError(err).Warn("failed to delete checkpoint")
		}
	}

	meta := metadata.FromBlog(blog, metadata.RunInfo{
		ID:       o.runID,
		Received: result.Received,
		UpToDate: result.UpToDate,
	})
	if err := meta.Save(filepath.Join(o.root, blog.Name)); err != nil {
		log.WithError(err).Warn("failed to write blog metadata")
	}
	result.Metadata = meta
	return result
}

// checkpoint returns the blog's checkpoint manager and the checkpoint to
// continue from. Checkpoint problems are logged and never fail the blog.
func (o *Orchestrator) checkpoint(blog string, log logger.Logger) (*checkpoint.Manager, *checkpoint.Checkpoint) {
	mgr, err := checkpoint.NewManager(o.root, blog, log)
	if err != nil {
		log.WithError(err).Warn("checkpoints disabled")
		return nil, nil
	}

	if o.resume {
		cp, err := mgr.Load()
		if err != nil {
			log.WithError(err).Warn("failed to load checkpoint, starting over")
		} else if cp != nil {
			cp.RunID = o.runID
			return mgr, cp
		}
	} else if mgr.Exists() {
		log.Info("ignoring previous checkpoint, use --resume to continue it")
	}

	cp, err := mgr.Create(blog, o.runID)
	if err != nil {
		log.WithError(err).Warn("failed to create checkpoint")
		return mgr, nil
	}
	return mgr, cp
}
