package suite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/browser/browsertest"
	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/credentials"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/fakepersona"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/scenario"
)

func TestDefault_RegistersEveryScenario(t *testing.T) {
	t.Parallel()
	want := []string{
		"add-email",
		"cancel-account",
		"change-password",
		"health-check",
		"new-user/123done",
		"new-user/myfavoritebeer",
		"new-user/other-browser",
		"new-user/persona",
		"public-terminals",
		"remove-email",
		"reset-password",
		"returning-user",
		"sign-in",
	}
	assert.Equal(t, want, Default().Names())

	s, ok := Default().Get("new-user/other-browser")
	require.True(t, ok)
	assert.Equal(t, 2, s.Sessions())

	health, err := Default().Match("tag:" + TagHealth)
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.Equal(t, "health-check", health[0].Name)
}

func TestHealthCheck_NeedsCredentialsFile(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{PollInterval: time.Millisecond, Timeout: 10 * time.Millisecond, RestmailTimeout: 10 * time.Millisecond}
	env, err := scenario.NewEnv(context.Background(), cfg, config.SingleOriginEnvironment("fake", "http://idp.test"),
		browser.Chromium, []browser.Driver{browsertest.New()}, nil)
	require.NoError(t, err)

	s, ok := Default().Get("health-check")
	require.True(t, ok)
	err = s.Run(env)
	assert.True(t, errs.Is(err, errs.Configuration), "got %v", err)
}

var (
	launcherOnce sync.Once
	launcher     *browser.Launcher
	launcherErr  error
)

func testSession(t *testing.T) *browser.Session {
	t.Helper()
	launcherOnce.Do(func() {
		launcher, launcherErr = browser.NewLauncher(browser.LaunchOptions{ActionTimeout: 5 * time.Second})
	})
	if launcherErr != nil {
		t.Skip("Playwright not available:", launcherErr)
	}
	s, err := launcher.NewSession(browser.Chromium)
	if err != nil {
		t.Skip("Could not launch browser:", err)
	}
	t.Cleanup(func() { _ = s.Quit() })
	return s
}

// fakeTarget is one fake deployment with the config a run against it would use.
type fakeTarget struct {
	srv  *fakepersona.Server
	cfg  *config.Config
	mail *restmail.Client
}

func newFakeTarget(t *testing.T) *fakeTarget {
	t.Helper()
	srv, base := fakepersona.TestServer(t, fakepersona.Options{RedirectDelay: time.Second})
	cfg := &config.Config{
		EnvName:         config.FakeEnvName,
		Browser:         string(browser.Chromium),
		Timeout:         8 * time.Second,
		PollInterval:    50 * time.Millisecond,
		RestmailTimeout: 10 * time.Second,
	}
	cfg.UseFake(base)
	return &fakeTarget{srv: srv, cfg: cfg, mail: restmail.NewClient(cfg.RestmailURL, nil)}
}

func (f *fakeTarget) run(t *testing.T, name string) error {
	t.Helper()
	s, ok := Default().Get(name)
	require.True(t, ok, name)
	drivers := make([]browser.Driver, s.Sessions())
	for i := range drivers {
		drivers[i] = testSession(t)
	}
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{Scenario: name, Browser: string(browser.Chromium), Env: config.FakeEnvName})
	env, err := scenario.NewEnv(ctx, f.cfg, f.cfg.Env, browser.Chromium, drivers, f.mail)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, env.Cleanup())
		for _, addr := range env.Mailboxes() {
			assert.Zero(t, f.srv.Mailbox().Count(addr), addr)
		}
	})
	return s.Run(env)
}

func TestScenarios_AgainstFake(t *testing.T) {
	if testing.Short() {
		t.Skip("browser scenarios skipped in -short mode")
	}
	for _, name := range Default().Names() {
		if name == "health-check" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			f := newFakeTarget(t)
			require.NoError(t, f.run(t, name))
		})
	}
}

func TestHealthCheck_AgainstFake(t *testing.T) {
	if testing.Short() {
		t.Skip("browser scenarios skipped in -short mode")
	}
	f := newFakeTarget(t)
	const addr, password = "health@restmail.net", "health-check-password"
	require.NoError(t, f.srv.CreateUser(addr, password))

	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, credentials.Save(path, credentials.File{"default": {Email: addr, Password: password}}))
	f.cfg.CredentialsPath = path

	require.NoError(t, f.run(t, "health-check"))
}
