package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/persona-e2e/internal/browser"
)

func failingSnapshot() browser.Snapshot {
	return browser.Snapshot{
		Window:  "w2",
		URL:     "https://login.persona.org/verify_email_address?token=SECRETSECRET",
		Title:   "Mozilla Persona: Complete Registration",
		HTML:    `<a href="/reset_password?token=SECRETSECRET">reset</a>`,
		PNG:     []byte("\x89PNG data"),
		TakenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing/key")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	prefix := KeyPrefix("run-1", "new-user/123done", "chromium")
	ref, err := SaveSnapshot(ctx, store, prefix, "new-user/123done", "chromium", failingSnapshot(), errors.New("timed out waiting for x"))
	require.NoError(t, err)
	assert.NotEmpty(t, ref.Meta)
	assert.NotEmpty(t, ref.HTML)
	assert.NotEmpty(t, ref.Screenshot)

	png, err := store.Get(ctx, prefix+"/screenshot.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG data"), png)

	page, err := store.Get(ctx, prefix+"/page.html")
	require.NoError(t, err)
	assert.NotContains(t, string(page), "SECRETSECRET")

	raw, err := store.Get(ctx, prefix+"/meta.json")
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "timed out waiting for x", meta["error"])
	assert.Equal(t, "chromium", meta["browser"])
	assert.NotContains(t, meta["url"], "SECRETSECRET")
}

func TestS3Store_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewTestS3Store(t, "persona-e2e-artifacts")
	storeContract(t, store)
	assert.Equal(t, "s3://persona-e2e-artifacts/a/b.png", store.Location("/a/b.png"))
	assert.Equal(t, []string{
		"run-1/chromium/new-user_123done/meta.json",
		"run-1/chromium/new-user_123done/page.html",
		"run-1/chromium/new-user_123done/screenshot.png",
	}, RunKeys(t, store, "run-1"))
	assert.Empty(t, RunKeys(t, store, "run-2"))
}

func TestDirStore_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	storeContract(t, DirStore{Root: root})

	_, err := os.Stat(filepath.Join(root, "run-1", "chromium", "new-user_123done", "meta.json"))
	require.NoError(t, err)
}

func TestSaveSnapshot_EmptyCaptureStillWritesMeta(t *testing.T) {
	t.Parallel()
	store := DirStore{Root: t.TempDir()}
	ref, err := SaveSnapshot(context.Background(), store, "p", "s", "firefox",
		browser.Snapshot{Errors: []string{"html: window closed"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, ref.HTML)
	assert.Empty(t, ref.Screenshot)
	assert.NotEmpty(t, ref.Meta)
}

func testDirStore_KeysStayUnderRoot(t *rapid.T) {
	key := rapid.StringMatching(`(\.\./|/|[a-z]{1,4}/){0,6}[a-z]{1,8}`).Draw(t, "key")
	root := "/var/artifacts"
	p, err := DirStore{Root: root}.path(key)
	if err != nil {
		return
	}
	if !strings.HasPrefix(p, root+string(filepath.Separator)) {
		t.Fatalf("key %q escaped root: %q", key, p)
	}
}

func TestDirStore_KeysStayUnderRoot(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testDirStore_KeysStayUnderRoot)
}

func TestKeyPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "r/webkit/change-password", KeyPrefix("r", "change-password", "webkit"))
	assert.Equal(t, "unknown/chromium/a_b", KeyPrefix("", "a b", "chromium"))
}
