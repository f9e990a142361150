package tumblr

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the Tumblr API root
	DefaultBaseURL = "https://api.tumblr.com"

	// UserInfoPath returns the user and their blogs
	UserInfoPath = "user/info"

	// Post collection fields
	PostKeyField   = "id_string"
	PostTotalField = "total_posts"
	PostItemsField = "posts"
)

// BlogPostsPath returns the posts path of a blog
func BlogPostsPath(blog string) string {
	return fmt.Sprintf("blog/%s/posts", url.PathEscape(blog))
}

// PostsParams are the query parameters used to fetch posts for backup
func PostsParams() map[string]any {
	return map[string]any{
		"npf":         true,
		"notes_info":  true,
		"reblog_info": true,
	}
}

// PostsOptions builds the ArrayOptions for a blog's posts
func PostsOptions(limit, offset int, onPage PageFunc) ArrayOptions {
	return ArrayOptions{
		KeyField:   PostKeyField,
		TotalField: PostTotalField,
		ItemsField: PostItemsField,
		Limit:      limit,
		Offset:     offset,
		Params:     PostsParams(),
		OnPage:     onPage,
	}
}

// IsValidBlogName reports whether name can be a blog identifier
func IsValidBlogName(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}

	// Letters, digits and hyphens only
	for _, char := range name {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-') {
			return false
		}
	}

	return true
}

// SanitizeBlogName reduces user input such as "@name", "name.tumblr.com"
// or "https://name.tumblr.com/" to the bare blog name
func SanitizeBlogName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "@")
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimRight(name, "/ ")
	name = strings.TrimSuffix(name, ".tumblr.com")
	return name
}
