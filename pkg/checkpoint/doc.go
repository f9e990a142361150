// Package checkpoint saves how far the backup of each blog got so an
// interrupted run can resume.
//
// One file per blog lives in <backup folder>/.checkpoints/<blog>.json and
// records the next page offset and how many posts were stored. Files are
// replaced atomically and removed once the blog completes.
package checkpoint
