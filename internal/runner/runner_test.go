package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/persona-e2e/internal/artifacts"
	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/browser/browsertest"
	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/fakepersona"
	"github.com/kuitang/persona-e2e/internal/ratelimit"
	"github.com/kuitang/persona-e2e/internal/results"
	"github.com/kuitang/persona-e2e/internal/scenario"
)

func testConfig() *config.Config {
	return &config.Config{
		EnvName:         "stage",
		Env:             config.SingleOriginEnvironment("stage", "http://idp.test"),
		Browser:         string(browser.Chromium),
		Parallel:        2,
		Timeout:         50 * time.Millisecond,
		PollInterval:    time.Millisecond,
		RestmailTimeout: 50 * time.Millisecond,
		MailRateLimit:   ratelimit.Config{Interval: time.Millisecond, Burst: 1},
	}
}

type fakeDrivers struct {
	mu      sync.Mutex
	drivers []*browsertest.Fake
	kinds   []browser.Kind
	err     error
}

func (f *fakeDrivers) New(kind browser.Kind) (browser.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d := browsertest.New()
	f.drivers = append(f.drivers, d)
	f.kinds = append(f.kinds, kind)
	return d, nil
}

func (f *fakeDrivers) allQuit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drivers {
		if !d.Quitted {
			return false
		}
	}
	return true
}

func newTestRunner(t *testing.T, cfg *config.Config, reg *scenario.Registry, opts Options) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.Config = cfg
	opts.Registry = reg
	opts.Out = &out
	r, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, &out
}

func openResults(t *testing.T) *results.Store {
	t.Helper()
	s, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pass(*scenario.Env) error { return nil }

func TestNew_RequiresConfigAndRegistry(t *testing.T) {
	t.Parallel()
	_, err := New(Options{Registry: scenario.NewRegistry()})
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = New(Options{Config: testConfig()})
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestRun_NoMatchingScenarios(t *testing.T) {
	t.Parallel()
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "sign-in", Run: pass})
	cfg := testConfig()
	cfg.Tests = "new-user/*"
	drivers := &fakeDrivers{}
	r, _ := newTestRunner(t, cfg, reg, Options{NewDriver: drivers.New})

	_, err := r.Run(context.Background())
	assert.True(t, errs.Is(err, errs.Configuration), "got %v", err)
	assert.Empty(t, drivers.drivers)
}

func TestRun_RecordsOutcomesAndSnapshots(t *testing.T) {
	t.Parallel()
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "good", Run: pass})
	reg.MustRegister(scenario.Scenario{Name: "bad", Run: func(e *scenario.Env) error {
		return errs.New(errs.Assertion, "signed in as the wrong user")
	}})
	reg.MustRegister(scenario.Scenario{Name: "broken", Run: func(e *scenario.Env) error {
		var rp map[string]int
		rp["boom"]++
		return nil
	}})

	store := openResults(t)
	dir := t.TempDir()
	drivers := &fakeDrivers{}
	cfg := testConfig()
	r, out := newTestRunner(t, cfg, reg, Options{NewDriver: drivers.New, Results: store, Artifacts: artifacts.DirStore{Root: dir}})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 2, summary.Failed)
	assert.True(t, drivers.allQuit(), "every session must be closed")

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary.RunID, latest.ID)
	assert.False(t, latest.Finished.IsZero())
	assert.Equal(t, []string{"stage"}, latest.Envs)
	assert.Equal(t, []string{"chromium"}, latest.Browsers)

	outcomes, err := store.Outcomes(summary.RunID)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	byName := map[string]results.Outcome{}
	for _, o := range outcomes {
		byName[o.Scenario] = o
	}
	assert.Equal(t, results.Passed, byName["good"].Status)
	assert.Nil(t, byName["good"].Snapshot)
	assert.Equal(t, string(errs.Assertion), byName["bad"].ErrorCode)
	assert.Equal(t, string(errs.Internal), byName["broken"].ErrorCode)
	assert.Contains(t, byName["broken"].Error, "panicked")

	ref := byName["bad"].Snapshot
	require.NotNil(t, ref)
	raw, err := os.ReadFile(ref.Meta)
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "bad", meta["scenario"])
	assert.Contains(t, meta["error"], "wrong user")

	report := out.String()
	assert.Contains(t, report, summary.RunID)
	assert.Contains(t, report, "signed in as the wrong user")
	assert.Contains(t, report, "1 passed, 2 failed, 0 skipped")
}

func TestRun_SnapshotsEverySessionToS3(t *testing.T) {
	t.Parallel()
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "other-browser", Browsers: 2, Run: func(e *scenario.Env) error {
		return errs.New(errs.Timeout, "timed out waiting for verification link")
	}})
	bucket := artifacts.NewTestS3Store(t, "persona-e2e-failures")
	drivers := &fakeDrivers{}
	r, _ := newTestRunner(t, testConfig(), reg, Options{NewDriver: drivers.New, Artifacts: bucket})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)

	prefix := summary.RunID + "/chromium/stage-other-browser"
	keys := artifacts.RunKeys(t, bucket, summary.RunID)
	assert.Contains(t, keys, prefix+"/meta.json")
	assert.Contains(t, keys, prefix+"/screenshot.png")
	assert.Contains(t, keys, prefix+"/session-1/meta.json")
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, prefix+"/"), k)
	}
}

func TestRun_MultiSessionScenarioGetsFreshDrivers(t *testing.T) {
	t.Parallel()
	var seen []browser.Driver
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "pair", Browsers: 2, Run: func(e *scenario.Env) error {
		seen = e.Drivers
		other, err := e.On(1)
		if err != nil {
			return err
		}
		if other.Driver == e.Driver {
			return errors.New("sessions are shared")
		}
		return nil
	}})
	drivers := &fakeDrivers{}
	cfg := testConfig()
	cfg.Browser = string(browser.Firefox)
	r, _ := newTestRunner(t, cfg, reg, Options{NewDriver: drivers.New})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Len(t, seen, 2)
	assert.Equal(t, []browser.Kind{browser.Firefox, browser.Firefox}, drivers.kinds)
}

func TestRun_DriverFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "sign-in", Run: pass})
	store := openResults(t)
	drivers := &fakeDrivers{err: errors.New("no browsers installed")}
	r, _ := newTestRunner(t, testConfig(), reg, Options{NewDriver: drivers.New, Results: store})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	outcomes, err := store.Outcomes(summary.RunID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(errs.Unavailable), outcomes[0].ErrorCode)
}

func TestRun_AllBrowsersEverywhere(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	targets := map[string]bool{}
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "sign-in", Run: func(e *scenario.Env) error {
		mu.Lock()
		defer mu.Unlock()
		targets[e.URLs.Name+"/"+string(e.Browser)] = true
		return nil
	}})
	cfg := testConfig()
	cfg.AllBrowsers = true
	cfg.Everywhere = true
	cfg.Parallel = 4
	drivers := &fakeDrivers{}
	r, _ := newTestRunner(t, cfg, reg, Options{NewDriver: drivers.New})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	want := len(config.Browsers) * len(config.NamedEnvironments())
	assert.Equal(t, want, summary.Passed)
	assert.Len(t, targets, want)
}

func testParallelismIsBounded(t *rapid.T) {
	parallel := rapid.IntRange(1, 4).Draw(t, "parallel")
	n := rapid.IntRange(1, 8).Draw(t, "scenarios")

	var running, peak atomic.Int32
	reg := scenario.NewRegistry()
	for i := range n {
		reg.MustRegister(scenario.Scenario{Name: "s" + string(rune('a'+i)), Run: func(e *scenario.Env) error {
			cur := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			return nil
		}})
	}
	cfg := testConfig()
	cfg.Parallel = parallel
	drivers := &fakeDrivers{}
	r, err := New(Options{Config: cfg, Registry: reg, NewDriver: drivers.New, Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Passed != n {
		t.Fatalf("passed %d of %d", summary.Passed, n)
	}
	if int(peak.Load()) > parallel {
		t.Fatalf("peak concurrency %d exceeds limit %d", peak.Load(), parallel)
	}
}

func TestParallelismIsBounded(t *testing.T) {
	rapid.Check(t, testParallelismIsBounded)
}

func TestRun_CancelledContextSkipsRemaining(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	reg := scenario.NewRegistry()
	reg.MustRegister(scenario.Scenario{Name: "a-first", Run: func(e *scenario.Env) error {
		cancel()
		return nil
	}})
	reg.MustRegister(scenario.Scenario{Name: "b-second", Run: pass})
	cfg := testConfig()
	cfg.Parallel = 1
	drivers := &fakeDrivers{}
	r, _ := newTestRunner(t, cfg, reg, Options{NewDriver: drivers.New})

	summary, err := r.Run(ctx)
	assert.True(t, errs.Is(err, errs.Unavailable), "got %v", err)
	assert.Equal(t, 1, summary.Passed)
}

func TestStartFake(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	stop, err := StartFake(cfg, fakepersona.Options{Hasher: fakepersona.FakeInsecureHasher{}})
	require.NoError(t, err)
	require.NoError(t, stop())
	assert.Equal(t, "http://idp.test", cfg.Env.Persona, "non-fake runs are left alone")

	cfg.EnvName = config.FakeEnvName
	stop, err = StartFake(cfg, fakepersona.Options{Hasher: fakepersona.FakeInsecureHasher{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop() })
	assert.Equal(t, config.FakeEnvName, cfg.Env.Name)
	assert.Equal(t, cfg.Env.Restmail, cfg.RestmailURL)

	resp, err := http.Get(cfg.Env.Persona + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
