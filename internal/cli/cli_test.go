package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/fakepersona"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/results"
)

// execute runs the root command with args and returns what it printed.
// Commands share package-level flag variables, so these tests are serial.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	listTestsPattern = ""
	reportResults, reportList = "", false
	runFlags = config.Flags{}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, want := range []string{"run", "list-tests", "list-browsers", "list-envs", "report", "probe-mail", "serve-fake"} {
		assert.Contains(t, out, want)
	}
}

func TestListTests(t *testing.T) {
	out, err := execute(t, "list-tests", "-t", "new-user/*")
	require.NoError(t, err)
	assert.Contains(t, out, "new-user/123done")
	assert.Contains(t, out, "new-user/other-browser")
	assert.NotContains(t, out, "change-password")

	_, err = execute(t, "list-tests", "-t", "[")
	assert.True(t, errs.Is(err, errs.Configuration), "got %v", err)
}

func TestListBrowsersAndEnvs(t *testing.T) {
	out, err := execute(t, "list-browsers")
	require.NoError(t, err)
	assert.Equal(t, "chromium\nfirefox\nwebkit\n", out)

	out, err = execute(t, "list-envs")
	require.NoError(t, err)
	for _, env := range config.NamedEnvironments() {
		assert.Contains(t, out, env.Persona)
	}
	assert.Contains(t, out, config.FakeEnvName)
}

func TestReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	_, err := execute(t, "report", "--results", path)
	assert.True(t, errs.Is(err, errs.NotFound), "got %v", err)

	store, err := results.Open(path)
	require.NoError(t, err)
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(results.Run{ID: "run-1", Started: t0, Finished: t0.Add(time.Minute), Envs: []string{"stage"}, Browsers: []string{"firefox"}, Pattern: "*"}))
	require.NoError(t, store.Record(results.Outcome{RunID: "run-1", Scenario: "sign-in", Browser: "firefox", Env: "stage", Status: results.Passed, Started: t0, Duration: 4 * time.Second}))
	require.NoError(t, store.Record(results.Outcome{RunID: "run-1", Scenario: "reset-password", Browser: "firefox", Env: "stage", Status: results.Failed,
		Error: "wait: dialog to close: timed out", ErrorCode: "timeout", Started: t0, Duration: 20 * time.Second}))
	require.NoError(t, store.Close())

	out, err := execute(t, "report", "--results", path)
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "reset-password")
	assert.Contains(t, out, "dialog to close: timed out")
	assert.Contains(t, out, "1 passed, 1 failed, 0 skipped")

	out, err = execute(t, "report", "--results", path, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")

	_, err = execute(t, "report", "--results", path, "missing")
	assert.True(t, errs.Is(err, errs.NotFound), "got %v", err)
}

func TestRun_RejectsBadBrowser(t *testing.T) {
	_, err := execute(t, "run", "-b", "netscape", "--results", filepath.Join(t.TempDir(), "r.db"))
	var validation *config.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"failed scenarios", ErrScenariosFailed, 1},
		{"wrapped failed scenarios", fmt.Errorf("run: %w", ErrScenariosFailed), 1},
		{"configuration", errs.New(errs.Configuration, "no scenarios match"), 2},
		{"validation", &config.ValidationError{Errors: []string{"x"}}, 2},
		{"anything else", errors.New("boom"), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestProbeMail_AgainstFake(t *testing.T) {
	srv, base := fakepersona.TestServer(t, fakepersona.Options{})
	mail := restmail.NewClient(base, nil)
	var out bytes.Buffer

	elapsed, err := probeMail(context.Background(), &out, srv.Mailbox(), mail, "restmail.net", 5*time.Second)
	require.NoError(t, err)
	assert.Positive(t, elapsed)
	assert.Contains(t, out.String(), "persona-e2e mail probe")
}

type droppingMailer struct{}

func (droppingMailer) Send(to, templateName string, data any) error { return nil }

func TestProbeMail_TimesOutWhenNothingArrives(t *testing.T) {
	_, base := fakepersona.TestServer(t, fakepersona.Options{})
	mail := restmail.NewClient(base, nil)
	var out bytes.Buffer

	_, err := probeMail(context.Background(), &out, droppingMailer{}, mail, "restmail.net", 600*time.Millisecond)
	assert.True(t, errs.Is(err, errs.Timeout), "got %v", err)
	assert.Contains(t, out.String(), "did not arrive")
}
