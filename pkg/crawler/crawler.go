package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followgraph/pkg/checkpoint"
	errs "followgraph/pkg/errors"
	"followgraph/pkg/graph"
	"followgraph/pkg/logger"
	"followgraph/pkg/metrics"
	"followgraph/pkg/retry"
	"followgraph/pkg/social"
	"followgraph/pkg/ui"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures one crawl
type Options struct {
	Direction social.Direction
	// SavePoint is the number of processed users between checkpoints.
	SavePoint int
	// SliceCount is the partition count of sliced checkpoints.
	SliceCount int
	// CheckpointName writes one unsliced snapshot instead of slices.
	CheckpointName string
	// PageInterval separates page requests in single-credential mode.
	PageInterval time.Duration
	// RetryDelay spaces attempts against public accounts that keep failing.
	RetryDelay time.Duration
	// Cooldowns is the back-off after a transient failure, per kind.
	Cooldowns social.Cooldowns
	// TransientMaxAttempts caps retries of transient failures; 0 retries
	// until the call goes through.
	TransientMaxAttempts int
	// SkipBackup disables the backup copy at the end of the crawl.
	SkipBackup bool
	// BackupTag is appended to the backup label. Crawls that share a blob
	// store and may finish together need distinct tags.
	BackupTag string
}

// DefaultOptions returns the crawl defaults for d
func DefaultOptions(d social.Direction) Options {
	return Options{
		Direction:    d,
		SavePoint:    10,
		SliceCount:   11,
		PageInterval: 60 * time.Second,
		RetryDelay:   15 * time.Second,
		Cooldowns:    social.DefaultCooldowns(),
	}
}

// Result summarises a crawl
type Result struct {
	RunID     string
	Pending   int
	Resolved  int
	Errored   int
	Retried   int
	Skipped   int
	Remaining int
	Backup    string
	Elapsed   time.Duration
}

// Processed returns the number of users handled
func (r Result) Processed() int {
	return r.Resolved + r.Errored + r.Skipped
}

// Summary converts r for reporting. err is the cause of an interrupted
// crawl, or nil.
func (r Result) Summary(d social.Direction, err error) ui.CrawlSummary {
	return ui.CrawlSummary{
		Direction: string(d),
		Resolved:  r.Resolved,
		Errored:   r.Errored,
		Retried:   r.Retried,
		Remaining: r.Remaining,
		Elapsed:   r.Elapsed,
		Backup:    r.Backup,
		Err:       err,
	}
}

// singleMode is implemented by API wrappers that know their credential count
type singleMode interface {
	Single() bool
}

// Crawler fills one direction of a graph. It owns the graph for the
// duration of Crawl.
type Crawler struct {
	api      social.API
	graph    *graph.Graph
	store    *checkpoint.Store
	fetcher  *Fetcher
	opts     Options
	reporter ui.Reporter
	tracer   trace.Tracer
	logger   logger.Logger
}

// New creates a crawler. store may be nil to crawl without checkpoints.
func New(api social.API, g *graph.Graph, store *checkpoint.Store, opts Options, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.GetLogger()
	}
	if g == nil {
		g = graph.New()
	}
	if opts.SavePoint <= 0 {
		opts.SavePoint = 10
	}
	if opts.SliceCount <= 0 {
		opts.SliceCount = 1
	}

	single := false
	if s, ok := api.(singleMode); ok {
		single = s.Single()
	}
	log = log.WithFields(map[string]interface{}{
		"component": "crawler",
		"direction": string(opts.Direction),
	})

	return &Crawler{
		api:      api,
		graph:    g,
		store:    store,
		fetcher:  NewFetcher(single, opts.PageInterval, log),
		opts:     opts,
		reporter: ui.NopReporter{},
		tracer:   otel.Tracer("followgraph/crawler"),
		logger:   log,
	}
}

// SetReporter sets the progress reporter
func (c *Crawler) SetReporter(r ui.Reporter) {
	if r == nil {
		r = ui.NopReporter{}
	}
	c.reporter = r
}

// Graph returns the graph being filled
func (c *Crawler) Graph() *graph.Graph { return c.graph }

// Crawl resolves every pending target. When ctx is cancelled it saves a
// checkpoint and returns ctx.Err(); the next run resumes from there.
func (c *Crawler) Crawl(ctx context.Context, targets []social.UserID) (Result, error) {
	d := c.opts.Direction
	start := time.Now()

	res := Result{RunID: uuid.NewString()}
	c.graph.RunID = res.RunID

	pending := c.graph.Pending(d, targets)
	res.Pending = len(pending)

	c.logger.InfoWithFields("Starting crawl", map[string]interface{}{
		"run_id":  res.RunID,
		"targets": len(targets),
		"pending": len(pending),
		"single":  c.fetcher.single,
	})
	c.reporter.StartCrawl(string(d), len(pending))
	metrics.SetPending(string(d), len(pending))

	for i, u := range pending {
		if err := ctx.Err(); err != nil {
			return c.interrupt(ctx, res, start, len(pending)-i, err)
		}

		outcome, err := c.resolve(ctx, u)
		if err != nil {
			return c.interrupt(ctx, res, start, len(pending)-i, err)
		}
		switch outcome {
		case outcomeResolved:
			res.Resolved++
		case outcomeRetried:
			res.Resolved++
			res.Retried++
		case outcomeError:
			res.Errored++
		case outcomeSkipped:
			res.Skipped++
		}
		metrics.RecordUser(string(d), string(outcome))
		metrics.SetPending(string(d), len(pending)-i-1)

		if (i+1)%c.opts.SavePoint == 0 {
			if err := c.save(ctx); err != nil {
				return res, err
			}
			logger.LogCrawlProgress(string(d), i+1, len(pending), res.Errored)
		}
	}

	if err := c.save(ctx); err != nil {
		return res, err
	}
	res.Remaining = res.Skipped

	if c.store != nil && !c.opts.SkipBackup {
		label := checkpoint.BackupName(d, c.graph.Crawled(), len(c.graph.ErrorUsers))
		if c.opts.BackupTag != "" {
			label += "_" + c.opts.BackupTag
		}
		used, err := c.store.Backup(ctx, label, c.saveOptions())
		if err != nil {
			return res, err
		}
		res.Backup = used
	}

	res.Elapsed = time.Since(start)
	c.finish(res, nil)
	return res, nil
}

// interrupt saves what was collected before a cancellation and reports it
func (c *Crawler) interrupt(ctx context.Context, res Result, start time.Time, remaining int, cause error) (Result, error) {
	res.Remaining = remaining + res.Skipped
	res.Elapsed = time.Since(start)

	c.logger.WarnWithFields("Crawl interrupted, saving checkpoint", map[string]interface{}{
		"processed": res.Processed(),
		"remaining": res.Remaining,
	})
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := c.save(saveCtx); err != nil {
		cause = errors.Join(cause, err)
	}

	c.finish(res, cause)
	return res, cause
}

func (c *Crawler) finish(res Result, err error) {
	c.reporter.FinishCrawl(res.Summary(c.opts.Direction, err))
	c.logger.InfoWithFields("Crawl finished", map[string]interface{}{
		"run_id":   res.RunID,
		"resolved": res.Resolved,
		"errors":   res.Errored,
		"retried":  res.Retried,
		"skipped":  res.Skipped,
		"elapsed":  res.Elapsed.String(),
	})
}

func (c *Crawler) save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, c.graph, c.saveOptions()); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	name := c.opts.CheckpointName
	if name == "" {
		name = c.store.Prefix()
	}
	c.reporter.CheckpointSaved(name)
	return nil
}

func (c *Crawler) saveOptions() checkpoint.SaveOptions {
	return checkpoint.SaveOptions{Name: c.opts.CheckpointName, Slices: c.opts.SliceCount}
}

type outcome string

const (
	outcomeResolved outcome = "resolved"
	outcomeRetried  outcome = "retried"
	outcomeError    outcome = "error"
	outcomeSkipped  outcome = "skipped"
)

// resolve fetches one user's list and records the result. The returned
// error is only ever a context error.
func (c *Crawler) resolve(ctx context.Context, u social.UserID) (outcome, error) {
	d := c.opts.Direction
	ctx, span := c.tracer.Start(ctx, "crawler.resolve", trace.WithAttributes(
		attribute.String("user.id", u),
		attribute.String("direction", string(d)),
	))
	defer span.End()

	ids, err := c.fetchWithRetry(ctx, u)
	if err == nil {
		c.record(u, ids)
		span.SetAttributes(attribute.Int("neighbours", len(ids)))
		return outcomeResolved, nil
	}
	if isContextErr(err) {
		return "", err
	}
	span.RecordError(err)

	log := c.logger.WithField("user", u)

	if errs.IsTransient(err) {
		// retries capped by TransientMaxAttempts ran out; leave u pending
		log.WarnWithFields("Transient failures exhausted, user left for the next run", map[string]interface{}{
			"error": err.Error(),
		})
		span.SetStatus(codes.Error, "transient failures exhausted")
		return outcomeSkipped, nil
	}

	if permanent(err) {
		c.markError(u, err)
		span.SetStatus(codes.Error, string(errs.TypeOf(err)))
		return outcomeError, nil
	}

	public, lerr := c.isPublic(ctx, u)
	if lerr != nil {
		return "", lerr
	}
	if !public {
		c.markError(u, err)
		span.SetStatus(codes.Error, "not public")
		return outcomeError, nil
	}

	log.Warn("Public account returned no result, retrying until it resolves")
	ids, err = c.fetchUntilResolved(ctx, u)
	if err != nil {
		return "", err
	}
	c.record(u, ids)
	return outcomeRetried, nil
}

func (c *Crawler) record(u social.UserID, ids []social.UserID) {
	c.graph.SetNeighbours(c.opts.Direction, u, ids)
	c.reporter.UserResolved(u, len(ids))
}

func (c *Crawler) markError(u social.UserID, cause error) {
	c.graph.MarkError(u)
	c.reporter.UserErrored(u, cause)
	c.logger.InfoWithFields("User recorded as error user", map[string]interface{}{
		"user":  u,
		"cause": errorText(cause),
	})
}

// permanent reports errors the listing endpoint is authoritative about: a
// user that does not exist or is suspended stays that way whatever a
// profile lookup says.
func permanent(err error) bool {
	t := errs.TypeOf(err)
	return t == errs.ErrorTypeNotFound || t == errs.ErrorTypeSuspended
}

// fetchWithRetry fetches the full list, retrying transient failures with
// the page kind's cooldown.
func (c *Crawler) fetchWithRetry(ctx context.Context, u social.UserID) ([]social.UserID, error) {
	kind := c.opts.Direction.PageKind()
	pageFn := social.PageFuncFor(c.api, c.opts.Direction)

	cfg := c.transientRetry(kind)
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]social.UserID, error) {
		return c.fetcher.FetchAll(ctx, u, pageFn)
	}, cfg)
}

// fetchUntilResolved retries the full fetch with no attempt cap. Only
// cancellation stops it.
func (c *Crawler) fetchUntilResolved(ctx context.Context, u social.UserID) ([]social.UserID, error) {
	cfg := retry.Forever(c.opts.RetryDelay, nil)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.WarnWithFields("Retrying public account", map[string]interface{}{
			"user":    u,
			"attempt": attempt,
			"error":   err.Error(),
			"delay":   delay.String(),
		})
		c.reporter.Waiting(fmt.Sprintf("public user %s unresolved (attempt %d)", u, attempt), delay)
	}
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]social.UserID, error) {
		return c.fetchWithRetry(ctx, u)
	}, cfg)
}

// isPublic looks the user up. Protected accounts and failed lookups count
// as private; only cancellation is returned as an error.
func (c *Crawler) isPublic(ctx context.Context, u social.UserID) (bool, error) {
	profile, err := retry.DoWithResult(ctx, func(ctx context.Context) (social.Profile, error) {
		return c.api.User(ctx, u)
	}, c.transientRetry(social.UserLookup))
	if err != nil {
		if isContextErr(err) {
			return false, err
		}
		c.logger.DebugWithFields("Profile lookup failed", map[string]interface{}{
			"user":  u,
			"error": err.Error(),
		})
		return false, nil
	}
	return !profile.Protected, nil
}

func (c *Crawler) transientRetry(kind social.OperationKind) *retry.Config {
	cooldown := c.opts.Cooldowns[kind]
	return &retry.Config{
		MaxAttempts: c.opts.TransientMaxAttempts,
		Backoff: &retry.KindBackoff{
			ByType: map[errs.ErrorType]time.Duration{
				errs.ErrorTypeRateLimit:   cooldown,
				errs.ErrorTypeNetwork:     cooldown,
				errs.ErrorTypeServerError: cooldown,
			},
			Default: c.opts.RetryDelay,
		},
		RetryIf: retry.DefaultRetryIf,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.reporter.Waiting(fmt.Sprintf("%s failed: %s", kind, errs.TypeOf(err)), delay)
		},
		Logger: c.logger,
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errorText(err error) string {
	if err == nil {
		return "not public"
	}
	return err.Error()
}
