package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followgraph/pkg/auth"
	"followgraph/pkg/checkpoint"
	"followgraph/pkg/crawler"
	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/ratelimit"
	"followgraph/pkg/social"
	"followgraph/pkg/ui"
	"followgraph/pkg/ui/tui"
	"followgraph/pkg/userset"

	"github.com/spf13/cobra"
)

var (
	// Crawl command flags
	crawlDirection  string
	targetsFile     string
	partitions      int
	useTUI          bool
	checkpointName  string
	skipBackup      bool
	savePoint       int
	sliceCount      int
	transientCap    int
	refillDirection string
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl follower or friend lists of a set of users",
	Long: `Fetch the full follower or friend list of every target user that has no
list yet, checkpointing every save_point users.

Targets come from --targets (one ID per line, or a .roar bitmap). Without
it, every known user of the checkpoint is a target, which continues the
crawl one hop further out.

Users whose lists cannot be read (not found, suspended, protected) become
error users. Public users that keep failing are retried until they resolve.`,
	Example: `  # Crawl followers of the users in targets.txt
  followgraph crawl --direction follower --targets targets.txt

  # Split the targets over three groups of credentials
  followgraph crawl --targets targets.txt --partitions 3 --credentials a.ini,b.ini,c.ini

  # Watch the crawl in the terminal dashboard
  followgraph crawl --direction friend --targets targets.txt --tui`,
	RunE: runCrawl,
}

// refillCmd represents the refill command
var refillCmd = &cobra.Command{
	Use:   "refill",
	Short: "Re-crawl error users that have become public",
	Long: `Look up every error user. Users that are public now lose their error
status and empty entries, and are crawled again.`,
	RunE: runRefill,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(refillCmd)

	crawlCmd.Flags().StringVarP(&crawlDirection, "direction", "d", "", "list to crawl: follower or friend (default from config)")
	crawlCmd.Flags().StringVarP(&targetsFile, "targets", "t", "", "file with target user IDs")
	crawlCmd.Flags().IntVar(&partitions, "partitions", 0, "independent crawls over disjoint credential groups")
	crawlCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	crawlCmd.Flags().StringVar(&checkpointName, "checkpoint", "", "save one unsliced snapshot with this name instead of slices")
	crawlCmd.Flags().BoolVar(&skipBackup, "no-backup", false, "skip the backup copy at the end of the crawl")
	crawlCmd.Flags().IntVar(&savePoint, "save-point", 0, "users between checkpoints")
	crawlCmd.Flags().IntVar(&sliceCount, "slices", 0, "checkpoint slice count")
	crawlCmd.Flags().IntVar(&transientCap, "transient-attempts", -1, "attempts before a rate-limited user is left for the next run (0 retries forever)")

	refillCmd.Flags().StringVarP(&refillDirection, "direction", "d", "", "list to refill: follower or friend")
}

func crawlFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if crawlDirection != "" {
		flags["direction"] = crawlDirection
	}
	if partitions > 0 {
		flags["partitions"] = partitions
	}
	if savePoint > 0 {
		flags["save-point"] = savePoint
	}
	if sliceCount > 0 {
		flags["slices"] = sliceCount
	}
	return flags
}

func (a *app) crawlOptions(d social.Direction) crawler.Options {
	opts := crawler.DefaultOptions(d)
	opts.SavePoint = a.cfg.Crawl.SavePoint
	opts.SliceCount = a.cfg.Crawl.SliceCount
	opts.PageInterval = a.cfg.Crawl.SinglePageInterval
	opts.RetryDelay = a.cfg.Crawl.RetryDelay
	opts.Cooldowns = a.cooldowns()
	opts.TransientMaxAttempts = a.cfg.Crawl.TransientMaxAttempts
	if transientCap >= 0 {
		opts.TransientMaxAttempts = transientCap
	}
	opts.CheckpointName = checkpointName
	opts.SkipBackup = skipBackup
	return opts
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, crawlFlags())
	if err != nil {
		return err
	}
	defer a.Close()
	a.serveMetrics(ctx)

	d, err := social.ParseDirection(a.cfg.Crawl.Direction)
	if err != nil {
		return err
	}
	creds, err := a.credentials()
	if err != nil {
		auth.ShowCredentialGuide(cmd.ErrOrStderr())
		return err
	}

	var targets []social.UserID
	if targetsFile != "" {
		targets, err = userset.Load(targetsFile)
		if err != nil {
			return err
		}
	}

	if n := a.cfg.Crawl.Partitions; n > 1 {
		return a.crawlPartitioned(ctx, d, creds, targets, n)
	}

	g, err := a.loadGraph(ctx, checkpointName)
	if err != nil {
		return err
	}
	if targets == nil {
		targets = g.KnownUsers.Sorted()
	}

	sched := ratelimit.NewScheduler()
	defer sched.Stop()
	api, err := a.rotator(ctx, creds, sched)
	if err != nil {
		return err
	}

	ui.PrintFields(
		ui.Field{Label: "Direction", Value: d},
		ui.Field{Label: "Credentials", Value: api.Size()},
		ui.Field{Label: "Targets", Value: len(targets)},
	)

	c := crawler.New(api, g, a.store, a.crawlOptions(d), a.log)
	if useTUI {
		return runWithTUI(ctx, d, c, targets)
	}

	c.SetReporter(ui.NewProgressDisplay(verbose))
	res, err := c.Crawl(ctx, targets)
	return crawlOutcome(d, res, err)
}

// runWithTUI runs the crawl next to the dashboard. Quitting the dashboard
// cancels the crawl, which still saves its checkpoint.
func runWithTUI(ctx context.Context, d social.Direction, c *crawler.Crawler, targets []social.UserID) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := tui.NewTUI()
	c.SetReporter(terminal)

	type outcome struct {
		res crawler.Result
		err error
	}
	crawlDone := make(chan outcome, 1)
	go func() {
		res, err := c.Crawl(ctx, targets)
		crawlDone <- outcome{res, err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
	}()

	select {
	case out := <-crawlDone:
		// leave the summary on screen for a moment
		time.Sleep(2 * time.Second)
		terminal.Stop()
		<-tuiDone
		return crawlOutcome(d, out.res, out.err)
	case err := <-tuiDone:
		cancel()
		out := <-crawlDone
		if err != nil {
			logger.WithError(err).Error("TUI failed")
		}
		return crawlOutcome(d, out.res, out.err)
	}
}

func crawlOutcome(d social.Direction, res crawler.Result, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	ui.PrintCrawlSummary(res.Summary(d, err))
	return nil
}

// crawlPartitioned deals targets and credentials over n crawlers with
// their own pools and checkpoint prefixes, then saves the merged graph
// under the main prefix.
func (a *app) crawlPartitioned(ctx context.Context, d social.Direction, creds []*auth.Credential, targets []social.UserID, n int) error {
	if len(creds) < n {
		return fmt.Errorf("%d partitions need at least %d credentials, have %d", n, n, len(creds))
	}
	if targets == nil {
		g, err := a.loadGraph(ctx, "")
		if err != nil {
			return err
		}
		targets = g.KnownUsers.Sorted()
	}

	groups := make([][]*auth.Credential, n)
	for i, c := range creds {
		groups[i%n] = append(groups[i%n], c)
	}

	sched := ratelimit.NewScheduler()
	defer sched.Stop()

	ui.PrintFields(
		ui.Field{Label: "Direction", Value: d},
		ui.Field{Label: "Partitions", Value: n},
		ui.Field{Label: "Targets", Value: len(targets)},
	)

	run := func(ctx context.Context, i int, share []social.UserID) (*graph.Graph, crawler.Result, error) {
		log := a.log.WithField("partition", i)
		api, err := a.rotator(ctx, groups[i], sched)
		if err != nil {
			return nil, crawler.Result{}, err
		}

		store := checkpoint.NewStore(a.blobs, fmt.Sprintf("%s_p%d", a.cfg.Storage.CheckpointPrefix, i))
		g := graph.New()
		if _, err := store.Load(ctx, g, ""); err != nil {
			return nil, crawler.Result{}, err
		}

		opts := a.crawlOptions(d)
		opts.CheckpointName = ""
		opts.BackupTag = fmt.Sprintf("p%d", i)
		c := crawler.New(api, g, store, opts, log)
		if verbose {
			c.SetReporter(ui.NewProgressDisplay(true))
		}
		res, err := c.Crawl(ctx, share)
		return c.Graph(), res, err
	}

	merged, results, runErr := crawler.RunPartitioned(ctx, targets, n, run, a.log)
	if merged != nil {
		base := graph.New()
		if _, err := a.store.Load(context.WithoutCancel(ctx), base, ""); err != nil {
			return err
		}
		base.Merge(merged)
		if err := a.store.Save(context.WithoutCancel(ctx), base, checkpoint.SaveOptions{Slices: a.cfg.Crawl.SliceCount}); err != nil {
			return fmt.Errorf("save merged checkpoint: %w", err)
		}
	}

	var total crawler.Result
	for _, r := range results {
		total.Resolved += r.Resolved
		total.Errored += r.Errored
		total.Retried += r.Retried
		total.Remaining += r.Remaining
		total.Elapsed = max(total.Elapsed, r.Elapsed)
	}
	return crawlOutcome(d, total, runErr)
}

func runRefill(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	flags := make(map[string]interface{})
	if refillDirection != "" {
		flags["direction"] = refillDirection
	}
	a, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := social.ParseDirection(a.cfg.Crawl.Direction)
	if err != nil {
		return err
	}
	creds, err := a.credentials()
	if err != nil {
		return err
	}
	g, err := a.loadGraph(ctx, "")
	if err != nil {
		return err
	}
	ui.PrintInfo("Error users", fmt.Sprintf("%d", len(g.ErrorUsers)))

	sched := ratelimit.NewScheduler()
	defer sched.Stop()
	api, err := a.rotator(ctx, creds, sched)
	if err != nil {
		return err
	}

	c := crawler.New(api, g, a.store, a.crawlOptions(d), a.log)
	c.SetReporter(ui.NewProgressDisplay(verbose))
	res, err := crawler.NewChecker(c).RefillErrorUsers(ctx)
	return crawlOutcome(d, res, err)
}
