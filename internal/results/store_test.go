package results

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/persona-e2e/internal/artifacts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RunsAndOutcomes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(Run{ID: "old", Started: t0, Envs: []string{"prod"}, Browsers: []string{"chromium"}, Pattern: "*"}))
	require.NoError(t, s.SaveRun(Run{ID: "new", Started: t0.Add(time.Hour), Envs: []string{"stage"}, Browsers: []string{"firefox"}, Pattern: "new-user/*"}))

	want := []Outcome{
		{RunID: "new", Scenario: "new-user/123done", Browser: "firefox", Env: "stage", Status: Passed, Started: t0, Duration: 3 * time.Second},
		{RunID: "new", Scenario: "change-password", Browser: "firefox", Env: "stage", Status: Failed,
			Error: "timed out", ErrorCode: "timeout", Started: t0, Duration: time.Second,
			Snapshot: &artifacts.Ref{Prefix: "new/firefox/change-password", Meta: "/tmp/meta.json"}},
	}
	for _, o := range want {
		require.NoError(t, s.Record(o))
	}

	got, err := s.Outcomes("new")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}

	none, err := s.Outcomes("old")
	require.NoError(t, err)
	assert.Empty(t, none)

	latest, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", latest.ID)

	r, ok, err := s.Run("old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"prod"}, r.Envs)
	_, ok, err = s.Run("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RejectsMissingIDs(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	assert.Error(t, s.SaveRun(Run{}))
	assert.Error(t, s.Record(Outcome{Scenario: "x"}))
}

func TestStore_ConcurrentRecord(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Record(Outcome{RunID: "r", Scenario: "s", Status: Passed, Duration: time.Duration(i)}))
		}()
	}
	wg.Wait()
	got, err := s.Outcomes("r")
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(Run{ID: "r1", Started: time.Now().UTC()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	sum := Summarize("r", []Outcome{
		{Scenario: "b", Browser: "webkit", Status: Failed, Error: "x", Snapshot: &artifacts.Ref{Meta: "m", Screenshot: "p"}},
		{Scenario: "a", Status: Passed, Duration: time.Second},
		{Scenario: "a", Browser: "chromium", Status: Failed, Error: "y"},
		{Scenario: "c", Status: Skipped},
	})
	assert.False(t, sum.Success)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, sum.Failures, 2)
	assert.Equal(t, "a", sum.Failures[0].Scenario)
	assert.Equal(t, []string{"m", "p"}, sum.Failures[1].URLs)

	assert.False(t, Summarize("empty", nil).Success)
}

func testSummarize_CountsAddUp(t *rapid.T) {
	statuses := rapid.SliceOf(rapid.SampledFrom([]Status{Passed, Failed, Skipped})).Draw(t, "statuses")
	outcomes := make([]Outcome, len(statuses))
	for i, st := range statuses {
		outcomes[i] = Outcome{Scenario: "s", Status: st}
	}
	sum := Summarize("r", outcomes)
	if sum.Passed+sum.Failed+sum.Skipped != len(outcomes) {
		t.Fatalf("counts %d+%d+%d != %d", sum.Passed, sum.Failed, sum.Skipped, len(outcomes))
	}
	if len(sum.Failures) != sum.Failed {
		t.Fatalf("failures %d != failed %d", len(sum.Failures), sum.Failed)
	}
	if sum.Success != (sum.Failed == 0 && sum.Passed > 0) {
		t.Fatalf("success flag wrong: %+v", sum)
	}
}

func TestSummarize_CountsAddUp(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSummarize_CountsAddUp)
}
