package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tumblrsync/pkg/tumblr"
)

// FileName is the metadata file kept in every blog directory
const FileName = "blog.json"

// BlogMetadata describes a backed-up blog and the run that last touched it
type BlogMetadata struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	// Counts as reported by the API at backup time
	Posts     int `json:"posts"`
	Followers int `json:"followers"`

	// Timestamps
	UpdatedAt  time.Time `json:"updated_at"`
	BackedUpAt time.Time `json:"backed_up_at"`

	LastRun RunInfo `json:"last_run"`
}

// RunInfo is the outcome of the last run for the blog
type RunInfo struct {
	ID       string `json:"id"`
	Received int    `json:"received"`
	UpToDate bool   `json:"up_to_date"`
}

// FromBlog converts API blog info to BlogMetadata
func FromBlog(blog tumblr.Blog, run RunInfo) *BlogMetadata {
	meta := &BlogMetadata{
		Name:        blog.Name,
		Title:       blog.Title,
		Description: blog.Description,
		URL:         blog.URL,
		Posts:       blog.Posts,
		Followers:   blog.Followers,
		BackedUpAt:  time.Now(),
		LastRun:     run,
	}
	if blog.Updated > 0 {
		meta.UpdatedAt = time.Unix(blog.Updated, 0)
	}
	return meta
}

// Save writes the metadata into dir, replacing the previous file
func (m *BlogMetadata) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create blog directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads the metadata stored in dir
func Load(dir string) (*BlogMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta BlogMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// Exists checks if dir holds a metadata file
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// FormattedDescription returns the description cut to maxLength for display
func (m *BlogMetadata) FormattedDescription(maxLength int) string {
	desc := strings.Join(strings.Fields(m.Description), " ")
	runes := []rune(desc)
	if len(runes) <= maxLength || maxLength < 4 {
		return desc
	}
	return string(runes[:maxLength-3]) + "..."
}
