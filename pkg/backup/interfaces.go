package backup

import (
	"context"
	"encoding/json"

	"tumblrsync/pkg/storage"
	"tumblrsync/pkg/tumblr"
)

// APIClient defines the Tumblr calls the orchestrator needs
type APIClient interface {
	UserInfo(ctx context.Context) (*tumblr.User, error)
	APIArrayCall(ctx context.Context, path string, opts tumblr.ArrayOptions) ([]json.RawMessage, error)
}

// PostStore persists posts
type PostStore interface {
	BeginBlog(blog string) error
	StorePosts(ctx context.Context, blog string, posts []json.RawMessage) error
	Stats() storage.Stats
}

// Reporter follows the run for display
type Reporter interface {
	StartBlog(blog string, total, resumed int)
	PageStored(blog string, received int)
	FinishBlog(blog string, err error)
}

type nopReporter struct{}

func (nopReporter) StartBlog(string, int, int) {}
func (nopReporter) PageStored(string, int)     {}
func (nopReporter) FinishBlog(string, error)   {}
