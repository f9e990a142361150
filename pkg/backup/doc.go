// Package backup drives a full backup run: it asks the API for the
// authenticated user's blogs, pages through each blog's posts and hands
// every page to the post store, keeping a per-blog checkpoint so an
// interrupted run can be resumed with the same offsets.
//
// A blog that fails is reported and the run moves on; Run then returns
// an error wrapping ErrBackupFailed. Hitting too many unchanged posts is
// the normal way an incremental backup of a blog finishes.
package backup
