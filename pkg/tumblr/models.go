package tumblr

import "encoding/json"

// Info is the response of user/info
type Info struct {
	User User `json:"user"`
}

// User is the authenticated account
type User struct {
	Name      string `json:"name"`
	Likes     int    `json:"likes"`
	Following int    `json:"following"`
	Blogs     []Blog `json:"blogs"`
}

// Blog is one blog owned by the user
type Blog struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Posts       int    `json:"posts"`
	Followers   int    `json:"followers"`
	Updated     int64  `json:"updated"`
}

// Post holds the fields of a post this tool reads. The stored file keeps
// the full raw JSON.
type Post struct {
	IDString  string        `json:"id_string"`
	Timestamp int64         `json:"timestamp"`
	Content   []ContentItem `json:"content"`
	Trail     []TrailItem   `json:"trail"`
}

// TrailItem is one entry of a reblog trail
type TrailItem struct {
	Content []ContentItem `json:"content"`
}

// ContentItem is one NPF content block. Media is an array for images and
// a single object for audio and video.
type ContentItem struct {
	Type     string          `json:"type"`
	Provider string          `json:"provider,omitempty"`
	Media    json.RawMessage `json:"media,omitempty"`
}

// MediaItem is one rendition of a media file
type MediaItem struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaURL returns the file to mirror for this block, or "" when there is
// none. Images yield their largest rendition by area; renditions without
// dimensions are never picked. Audio and video count only when hosted by
// Tumblr.
func (c ContentItem) MediaURL() string {
	switch c.Type {
	case "image":
		var media []MediaItem
		if err := json.Unmarshal(c.Media, &media); err != nil {
			return ""
		}
		best, bestArea := "", 0
		for _, m := range media {
			if area := m.Width * m.Height; area > bestArea {
				best, bestArea = m.URL, area
			}
		}
		return best
	case "audio", "video":
		if c.Provider != "tumblr" {
			return ""
		}
		var media MediaItem
		if err := json.Unmarshal(c.Media, &media); err != nil {
			return ""
		}
		return media.URL
	default:
		return ""
	}
}

// MediaURLs lists the files to mirror for the post and its trail, in
// order and without repeats
func (p *Post) MediaURLs() []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(items []ContentItem) {
		for _, item := range items {
			if u := item.MediaURL(); u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}

	add(p.Content)
	for _, t := range p.Trail {
		add(t.Content)
	}
	return urls
}
