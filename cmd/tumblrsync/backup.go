package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tumblrsync/pkg/backup"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/storage"
	"tumblrsync/pkg/ui"
)

var (
	// Backup command flags
	backupFolder      string
	forceBackup       bool
	resumeBackup      bool
	skipMedia         bool
	postLimit         int
	blogNames         []string
	credentialBackend string
	authCode          string
	notify            bool
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the posts of all your blogs",
	Long: `Back up every post of every blog owned by the authenticated user.

Posts are written to <folder>/<blog>/YYYY/MM/DD/<id>.json. A post that
changed since the last run is written again and the previous version kept
as <id>.json.bak. Images and Tumblr-hosted videos and audio are saved next
to the post.

The first run needs an authorization code (see 'tumblrsync auth url').
After that the stored credential is refreshed automatically.`,
	Example: `  # Back up everything into ./backup
  tumblrsync backup

  # Back up two blogs into a different folder, without media
  tumblrsync backup --folder ~/tumblr --blogs alpha,beta --skip-media

  # Walk every post again instead of stopping at unchanged ones
  tumblrsync backup --force

  # Continue an interrupted run
  tumblrsync backup --resume`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringVarP(&backupFolder, "folder", "o", "", "backup folder (default ./backup)")
	backupCmd.Flags().BoolVar(&forceBackup, "force", false, "do not stop at unchanged posts")
	backupCmd.Flags().BoolVar(&resumeBackup, "resume", false, "resume each blog from its checkpoint")
	backupCmd.Flags().BoolVar(&skipMedia, "skip-media", false, "store posts without downloading media")
	backupCmd.Flags().IntVar(&postLimit, "limit", 0, "maximum posts per blog (default all)")
	backupCmd.Flags().StringSliceVar(&blogNames, "blogs", nil, "only back up these blogs")
	backupCmd.Flags().StringVar(&credentialBackend, "credential-backend", "", "credential store: file, keyring or encrypted")
	backupCmd.Flags().StringVar(&authCode, "code", "", "authorization code for the first run")
	backupCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
}

// backupFlags collects the flags the user actually set
func backupFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed

	if set("folder") {
		flags["folder"] = backupFolder
	}
	if set("force") {
		flags["force"] = forceBackup
	}
	if set("resume") {
		flags["resume"] = resumeBackup
	}
	if set("skip-media") {
		flags["skip-media"] = skipMedia
	}
	if set("limit") {
		flags["limit"] = postLimit
	}
	if set("blogs") {
		flags["blogs"] = blogNames
	}
	if set("credential-backend") {
		flags["credential-backend"] = credentialBackend
	}
	if set("code") {
		flags["code"] = authCode
	}
	if set("notify") {
		flags["notify"] = notify
	}
	return flags
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(backupFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.GetLogger()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	store, err := storage.NewManager(storage.Options{
		Root:            cfg.Backup.Folder,
		EqualPostsLimit: cfg.Backup.EqualPostsLimit,
		Force:           cfg.Backup.Force,
		SkipMedia:       cfg.Backup.SkipMedia,
		Downloader:      a.exec,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	progress := ui.NewProgressDisplay(verbose)
	orchestrator, err := backup.New(backup.Options{
		Client:   a.client,
		Store:    store,
		Root:     cfg.Backup.Folder,
		Blogs:    cfg.Backup.Blogs,
		Limit:    cfg.Backup.PostLimit,
		Resume:   cfg.Backup.Resume,
		Reporter: progress,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	ui.PrintInfo("Backup folder", cfg.Backup.Folder)
	ui.PrintInfo("Run", orchestrator.RunID())
	if cfg.Backup.Resume {
		ui.PrintHighlight("Resuming from checkpoints")
	}

	summary, err := orchestrator.Run(ctx)
	ui.PrintSummary(summary)

	if cfg.Backup.Notify {
		ui.NewNotifier().NotifyRun(summary, err)
	}

	switch {
	case err == nil:
		ui.PrintSuccess("Backup complete")
	case ctx.Err() != nil:
		ui.PrintWarning("Backup interrupted, run again with --resume to continue")
	}
	return err
}
