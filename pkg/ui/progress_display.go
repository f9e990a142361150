package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"tumblrsync/pkg/backup"
)

// ProgressDisplay renders one progress line per blog while a backup runs
type ProgressDisplay struct {
	mu        sync.Mutex
	blog      string
	total     int
	received  int
	resumed   int
	startTime time.Time
	failed    int
	isDebug   bool
	now       func() time.Time
}

// NewProgressDisplay creates a new progress display. In debug mode every
// page gets its own line instead of the line being redrawn.
func NewProgressDisplay(debug bool) *ProgressDisplay {
	return &ProgressDisplay{isDebug: debug, now: time.Now}
}

// StartBlog resets the display for blog. resumed is the number of posts
// stored by an earlier, interrupted run.
func (p *ProgressDisplay) StartBlog(blog string, total, resumed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.blog = blog
	p.total = total
	p.received = resumed
	p.resumed = resumed
	p.startTime = p.now()

	if resumed > 0 {
		printf(false, "%s resuming @%s at post %d\n", Magenta("→"), blog, resumed)
	}
	if p.isDebug {
		printf(false, "%s backing up @%s (%d posts)\n", Magenta("→"), blog, total)
	}
}

// PageStored records the running count of posts received for the blog
func (p *ProgressDisplay) PageStored(blog string, received int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.received = received
	if p.isDebug {
		printf(false, "%s @%s %d/%d\n", Green("✓"), blog, received, p.total)
		return
	}
	printf(false, "\r%s\r%s", strings.Repeat(" ", 100), p.line())
}

// FinishBlog ends the blog's line
func (p *ProgressDisplay) FinishBlog(blog string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.startTime)
	if !p.isDebug && p.received > p.resumed {
		printf(false, "\n")
	}

	if err != nil {
		p.failed++
		printf(true, "%s @%s failed: %v\n", Red("✗"), blog, err)
		return
	}
	printf(false, "%s @%s: %d posts in %s\n", Green("✓"), blog, p.received, formatDuration(elapsed))
}

// line builds the progress line for the current blog
func (p *ProgressDisplay) line() string {
	elapsed := p.now().Sub(p.startTime)
	fetched := p.received - p.resumed

	rate := 0.0
	if elapsed > 0 {
		rate = float64(fetched) / elapsed.Minutes()
	}

	return fmt.Sprintf("%s [%s] %d/%d • %.1f/min • %s",
		Cyan("@"+p.blog),
		progressBar(p.received, p.total, 20),
		p.received,
		p.total,
		rate,
		p.calculateETA(fetched, elapsed),
	)
}

// calculateETA estimates time remaining
func (p *ProgressDisplay) calculateETA(fetched int, elapsed time.Duration) string {
	if fetched == 0 || elapsed <= 0 {
		return "calculating..."
	}

	remaining := p.total - p.received
	if remaining <= 0 {
		return "0s"
	}

	rate := float64(fetched) / elapsed.Seconds()
	eta := time.Duration(float64(remaining)/rate) * time.Second
	return formatDuration(eta)
}

// Failed returns how many blogs ended with an error
func (p *ProgressDisplay) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

func progressBar(done, total, width int) string {
	filled := width
	if total > 0 && done < total {
		filled = done * width / total
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// PrintSummary prints the totals of a finished run
func PrintSummary(summary *backup.Summary) {
	if summary == nil {
		return
	}

	printf(false, "\n%s Backed up %d blogs of @%s\n", Green("✓"), len(summary.Blogs), summary.User)

	st := summary.Stats
	printf(false, "  %s %d new, %d updated, %d unchanged posts in %s\n",
		Dim("•"), st.Stored, st.Updated, st.Unchanged, formatDuration(summary.Duration))
	printf(false, "  %s %d media files downloaded, %d already present\n",
		Dim("•"), st.MediaDownloaded, st.MediaSkipped)

	if st.MediaFailed > 0 {
		printf(false, "  %s %d media downloads failed\n", Dim("•"), st.MediaFailed)
	}
	for _, b := range summary.Blogs {
		if b.Err != nil {
			continue
		}
		line := fmt.Sprintf("@%s: %d posts received", b.Name, b.Received)
		if b.UpToDate {
			line = fmt.Sprintf("@%s was already up to date", b.Name)
		}
		if b.Metadata != nil {
			if desc := b.Metadata.FormattedDescription(descriptionWidth); desc != "" {
				line += " " + Dim("("+desc+")")
			}
		}
		printf(false, "  %s %s\n", Dim("•"), line)
	}
}

const descriptionWidth = 50

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

var _ backup.Reporter = (*ProgressDisplay)(nil)
