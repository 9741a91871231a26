package scenario

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/credentials"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/testuser"
	"github.com/kuitang/persona-e2e/internal/wait"
)

// Env is everything one scenario run may touch. Nothing in it is shared with
// other scenarios except the mail client's limiter.
type Env struct {
	Ctx     context.Context
	Config  *config.Config
	URLs    config.Environment
	Browser browser.Kind

	// Driver is Drivers[0]. Scenarios that declare Browsers > 1 reach the
	// others through On.
	Driver  browser.Driver
	Drivers []browser.Driver

	Wait        wait.Waiter
	Mail        *restmail.Client
	MailTimeout time.Duration
	MailDomain  string // testuser.DefaultDomain when empty
	Log         *slog.Logger

	used *mailboxes
}

// mailboxes is the set of addresses a scenario read mail for. Copies of an
// Env made by On share it.
type mailboxes struct {
	mu    sync.Mutex
	addrs []string
}

func (m *mailboxes) add(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.addrs, addr) {
		m.addrs = append(m.addrs, addr)
	}
}

func (m *mailboxes) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.addrs)
}

// NewEnv builds an Env for one target. drivers must not be empty.
func NewEnv(ctx context.Context, cfg *config.Config, urls config.Environment, kind browser.Kind, drivers []browser.Driver, mail *restmail.Client) (*Env, error) {
	if len(drivers) == 0 {
		return nil, errs.New(errs.Configuration, "scenario env needs at least one browser session")
	}
	return &Env{
		Ctx:         ctx,
		Config:      cfg,
		URLs:        urls,
		Browser:     kind,
		Driver:      drivers[0],
		Drivers:     drivers,
		Wait:        wait.New(cfg.PollInterval, cfg.Timeout),
		Mail:        mail,
		MailTimeout: cfg.RestmailTimeout,
		Log:         obs.From(ctx),
		used:        &mailboxes{},
	}, nil
}

// On returns a copy of e driving the i-th browser session.
func (e *Env) On(i int) (*Env, error) {
	if i < 0 || i >= len(e.Drivers) {
		return nil, errs.Newf(errs.Configuration, "scenario has %d browser sessions, asked for #%d", len(e.Drivers), i)
	}
	cp := *e
	cp.Driver = e.Drivers[i]
	return &cp, nil
}

// Step logs the start of a named step.
func (e *Env) Step(name string) {
	e.Log.Info("scenario_step", "step", name)
}

// NewUser returns a fresh identity on the mail domain.
func (e *Env) NewUser() *testuser.User {
	return testuser.New(e.MailDomain)
}

// SiteURL returns the base URL of a relying party in this environment.
func (e *Env) SiteURL(site pages.Site) (string, error) {
	switch site.Name {
	case pages.OneTwoThree.Name:
		return e.URLs.OneTwoThree, nil
	case pages.MyFavoriteBeer.Name:
		return e.URLs.MyFavoriteBeer, nil
	default:
		return "", errs.Newf(errs.Configuration, "no URL for relying party %q", site.Name)
	}
}

// OpenRP binds a relying party to the focused window and loads it.
func (e *Env) OpenRP(site pages.Site) (*pages.RP, error) {
	base, err := e.SiteURL(site)
	if err != nil {
		return nil, err
	}
	rp, err := pages.NewRP(e.Driver, e.Wait, site, base)
	if err != nil {
		return nil, err
	}
	if err := rp.Open(); err != nil {
		return nil, err
	}
	return rp, nil
}

// Link waits for message index (zero-based) to reach addr and returns the
// link for purpose in it with its token.
func (e *Env) Link(addr string, index int, purpose restmail.Purpose) (string, string, error) {
	if e.Mail == nil {
		return "", "", errs.New(errs.Configuration, "scenario env has no mail client")
	}
	if e.used != nil {
		e.used.add(addr)
	}
	return e.Mail.VerificationLink(e.Ctx, addr, index, purpose, e.MailTimeout)
}

// Mailboxes returns the addresses Link has read mail for, in first-use order.
func (e *Env) Mailboxes() []string {
	if e.used == nil {
		return nil
	}
	return e.used.list()
}

// Cleanup empties every mailbox returned by Mailboxes. It runs after the
// scenario, so it ignores cancellation of the scenario's context.
func (e *Env) Cleanup() error {
	if e.Mail == nil {
		return nil
	}
	ctx := context.WithoutCancel(e.Ctx)
	var failed []error
	for _, addr := range e.Mailboxes() {
		if err := e.Mail.Delete(ctx, addr); err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// Account returns the default account from the configured credentials file.
func (e *Env) Account() (credentials.Account, error) {
	path := ""
	if e.Config != nil {
		path = e.Config.CredentialsPath
	}
	f, err := credentials.Load(path)
	if err != nil {
		return credentials.Account{}, err
	}
	return f.Default()
}

// Expectf fails with an assertion error unless ok.
func Expectf(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return errs.Newf(errs.Assertion, format, args...)
}

// ExpectEqual fails with an assertion error carrying a diff when got differs
// from want.
func ExpectEqual(what string, want, got any) error {
	if diff := cmp.Diff(want, got); diff != "" {
		return errs.Newf(errs.Assertion, "%s mismatch (-want +got):\n%s", what, diff)
	}
	return nil
}
