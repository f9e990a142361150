package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tumblrsync/pkg/tumblr"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	blog := tumblr.Blog{
		Name:        "alpha",
		Title:       "Alpha",
		Description: "a blog",
		URL:         "https://alpha.tumblr.com/",
		Posts:       45,
		Followers:   3,
		Updated:     1700000000,
	}

	meta := FromBlog(blog, RunInfo{ID: "run-1", Received: 45})
	if err := meta.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !Exists(dir) {
		t.Fatal("metadata file should exist")
	}
	if _, err := os.Stat(filepath.Join(dir, FileName+".tmp")); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "alpha" || loaded.Posts != 45 {
		t.Errorf("unexpected metadata: %+v", loaded)
	}
	if !loaded.UpdatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("UpdatedAt = %v", loaded.UpdatedAt)
	}
	if loaded.LastRun.ID != "run-1" || loaded.LastRun.Received != 45 {
		t.Errorf("LastRun = %+v", loaded.LastRun)
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("empty dir has no metadata")
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormattedDescription(t *testing.T) {
	m := &BlogMetadata{Description: "a fairly long description"}
	if got := m.FormattedDescription(10); got != "a fairl..." {
		t.Errorf("got %q", got)
	}
	if got := m.FormattedDescription(100); got != m.Description {
		t.Errorf("got %q", got)
	}

	m.Description = "ünïcödé\n  text here"
	if got := m.FormattedDescription(8); got != "ünïcö..." {
		t.Errorf("got %q", got)
	}
}
