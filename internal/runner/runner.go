// Package runner executes selected scenarios against every configured
// environment and browser, records the outcomes and reports them.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kuitang/persona-e2e/internal/artifacts"
	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/ratelimit"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/results"
	"github.com/kuitang/persona-e2e/internal/scenario"
)

// DriverFactory opens a fresh, isolated browser session.
type DriverFactory func(kind browser.Kind) (browser.Driver, error)

// Options configure a Runner. Config and Registry are required.
type Options struct {
	Config   *config.Config
	Registry *scenario.Registry

	// Results, when set, receives the run and every outcome.
	Results *results.Store
	// Artifacts, when set, receives a snapshot of every failure.
	Artifacts artifacts.Store
	// NewDriver defaults to Playwright sessions from a shared launcher.
	NewDriver DriverFactory
	// Out receives the summary table; os.Stdout when nil.
	Out io.Writer
}

// Runner runs scenarios. It is not reusable across concurrent Run calls.
type Runner struct {
	opts    Options
	log     *slog.Logger
	limiter *ratelimit.RateLimiter

	launchMu sync.Mutex
	launcher *browser.Launcher

	mailMu sync.Mutex
	mail   map[string]*restmail.Client
}

// New validates opts and prepares a runner. Close releases the browsers.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errs.New(errs.Configuration, "runner: no config")
	}
	if opts.Registry == nil {
		return nil, errs.New(errs.Configuration, "runner: no scenario registry")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	r := &Runner{
		opts:    opts,
		log:     obs.Pkg("runner"),
		limiter: ratelimit.NewRateLimiter(opts.Config.MailRateLimit),
		mail:    make(map[string]*restmail.Client),
	}
	if r.opts.NewDriver == nil {
		r.opts.NewDriver = r.playwrightSession
	}
	return r, nil
}

func (r *Runner) playwrightSession(kind browser.Kind) (browser.Driver, error) {
	r.launchMu.Lock()
	defer r.launchMu.Unlock()
	if r.launcher == nil {
		l, err := browser.NewLauncher(browser.LaunchOptions{Headed: r.opts.Config.Headed})
		if err != nil {
			return nil, err
		}
		r.launcher = l
	}
	return r.launcher.NewSession(kind)
}

// Close stops the mail limiter and any browsers the runner started.
func (r *Runner) Close() error {
	r.limiter.Stop()
	r.launchMu.Lock()
	defer r.launchMu.Unlock()
	if r.launcher != nil {
		return r.launcher.Close()
	}
	return nil
}

func (r *Runner) mailClient(base string) *restmail.Client {
	r.mailMu.Lock()
	defer r.mailMu.Unlock()
	c, ok := r.mail[base]
	if !ok {
		c = restmail.NewClient(base, r.limiter)
		r.mail[base] = c
	}
	return c
}

type job struct {
	target   config.Target
	scenario scenario.Scenario
}

// Run executes every selected scenario on every target, at most
// Config.Parallel at a time. A failing scenario does not stop the others;
// the returned summary says whether the run succeeded.
func (r *Runner) Run(ctx context.Context) (results.Summary, error) {
	cfg := r.opts.Config
	selected, err := r.opts.Registry.Match(cfg.Tests)
	if err != nil {
		return results.Summary{}, err
	}
	if len(selected) == 0 {
		return results.Summary{}, errs.Newf(errs.Configuration, "no scenarios match %q", cfg.Tests)
	}

	targets := cfg.Targets()
	run := results.Run{ID: uuid.NewString(), Started: time.Now().UTC(), Pattern: cfg.Tests}
	for _, t := range targets {
		if !slices.Contains(run.Envs, t.Env.Name) {
			run.Envs = append(run.Envs, t.Env.Name)
		}
		if !slices.Contains(run.Browsers, t.Browser) {
			run.Browsers = append(run.Browsers, t.Browser)
		}
	}
	if err := r.saveRun(run); err != nil {
		return results.Summary{}, err
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: run.ID})
	r.log.Info("run_started", "run_id", run.ID, "scenarios", len(selected), "targets", len(targets), "parallel", cfg.Parallel)

	var jobs []job
	for _, t := range targets {
		for _, s := range selected {
			jobs = append(jobs, job{target: t, scenario: s})
		}
	}

	outcomes := make([]results.Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Parallel, 1))
	for i, j := range jobs {
		g.Go(func() error {
			o := r.runOne(gctx, run.ID, j)
			outcomes[i] = o
			if err := r.record(o); err != nil {
				r.log.Error("record_outcome_failed", "scenario", o.Scenario, "error", err.Error())
			}
			return gctx.Err()
		})
	}
	waitErr := g.Wait()

	run.Finished = time.Now().UTC()
	if err := r.saveRun(run); err != nil {
		r.log.Error("save_run_failed", "run_id", run.ID, "error", err.Error())
	}
	summary := results.Summarize(run.ID, outcomes)
	WriteReport(r.opts.Out, run, outcomes)
	r.log.Info("run_finished", "run_id", run.ID, "passed", summary.Passed, "failed", summary.Failed, "success", summary.Success)
	if waitErr != nil {
		return summary, errs.Wrap(errs.Unavailable, "run interrupted", waitErr)
	}
	return summary, nil
}

func (r *Runner) saveRun(run results.Run) error {
	if r.opts.Results == nil {
		return nil
	}
	return r.opts.Results.SaveRun(run)
}

func (r *Runner) record(o results.Outcome) error {
	if r.opts.Results == nil {
		return nil
	}
	return r.opts.Results.Record(o)
}

// runOne runs one scenario on one target in fresh browser sessions and turns
// the result into an outcome. It never fails; failures are in the outcome.
func (r *Runner) runOne(ctx context.Context, runID string, j job) results.Outcome {
	s, t := j.scenario, j.target
	o := results.Outcome{
		RunID:    runID,
		Scenario: s.Name,
		Browser:  t.Browser,
		Env:      t.Env.Name,
		Started:  time.Now().UTC(),
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: runID, Scenario: s.Name, Browser: t.Browser, Env: t.Env.Name})
	log := obs.From(ctx)

	fail := func(err error) results.Outcome {
		o.Status = results.Failed
		o.Error = err.Error()
		o.ErrorCode = string(errs.CodeOf(err))
		o.Duration = time.Since(o.Started)
		log.Error("scenario_failed", "code", o.ErrorCode, "error", o.Error, "duration_ms", o.Duration.Milliseconds())
		return o
	}
	if err := ctx.Err(); err != nil {
		o.Status = results.Skipped
		o.Error = err.Error()
		return o
	}

	kind, err := browser.ParseKind(t.Browser)
	if err != nil {
		return fail(err)
	}
	drivers := make([]browser.Driver, 0, s.Sessions())
	defer func() {
		for _, d := range drivers {
			if err := d.Quit(); err != nil {
				log.Debug("browser_quit_failed", "error", err.Error())
			}
		}
	}()
	for range s.Sessions() {
		d, err := r.opts.NewDriver(kind)
		if err != nil {
			return fail(errs.Wrap(errs.Unavailable, "open "+string(kind)+" session", err))
		}
		drivers = append(drivers, d)
	}

	env, err := scenario.NewEnv(ctx, r.opts.Config, t.Env, kind, drivers, r.mailClient(t.Env.Restmail))
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := env.Cleanup(); err != nil {
			log.Warn("mailbox_cleanup_failed", "mailboxes", len(env.Mailboxes()), "error", err.Error())
		}
	}()
	log.Info("scenario_started")
	if err := runScenario(s, env); err != nil {
		out := fail(err)
		out.Snapshot = r.snapshot(ctx, runID, j, drivers, err)
		return out
	}
	o.Status = results.Passed
	o.Duration = time.Since(o.Started)
	log.Info("scenario_passed", "duration_ms", o.Duration.Milliseconds())
	return o
}

// runScenario reports a panicking scenario as an errs.Internal failure.
func runScenario(s scenario.Scenario, env *scenario.Env) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errs.Newf(errs.Internal, "scenario panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return s.Run(env)
}

// snapshot stores the state of every session's focused window. The first
// session's reference is returned; the others sit under the same prefix.
func (r *Runner) snapshot(ctx context.Context, runID string, j job, drivers []browser.Driver, failure error) *artifacts.Ref {
	if r.opts.Artifacts == nil || len(drivers) == 0 {
		return nil
	}
	name := j.target.Env.Name + "-" + j.scenario.Name
	prefix := artifacts.KeyPrefix(runID, name, j.target.Browser)
	var first *artifacts.Ref
	for i, d := range drivers {
		p := prefix
		if i > 0 {
			p = fmt.Sprintf("%s/session-%d", prefix, i)
		}
		ref, err := artifacts.SaveSnapshot(ctx, r.opts.Artifacts, p, j.scenario.Name, j.target.Browser, browser.Capture(d), failure)
		if err != nil {
			obs.From(ctx).Error("snapshot_failed", "prefix", p, "error", err.Error())
			continue
		}
		if first == nil {
			first = &ref
		}
	}
	return first
}
