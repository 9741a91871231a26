package browser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/browser/browsertest"
	"github.com/kuitang/persona-e2e/internal/errs"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	cases := map[string]browser.Kind{
		"chromium": browser.Chromium,
		"Chrome":   browser.Chromium,
		"firefox":  browser.Firefox,
		" webkit ": browser.WebKit,
		"safari":   browser.WebKit,
	}
	for in, want := range cases {
		got, err := browser.ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := browser.ParseKind("netscape")
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestCapture_FocusedWindow(t *testing.T) {
	t.Parallel()
	f := browsertest.New()
	f.SetPage("w1", "http://rp.test/?token=abc", "123done")

	snap := browser.Capture(f)
	assert.Equal(t, "w1", snap.Window)
	assert.Equal(t, "123done", snap.Title)
	assert.NotEmpty(t, snap.PNG)
	assert.Empty(t, snap.Errors)
	assert.False(t, snap.Empty())
}

func TestCapture_ClosedWindowIsBestEffort(t *testing.T) {
	t.Parallel()
	f := browsertest.New()
	popup := f.OpenWindow()
	require.NoError(t, f.SwitchToWindow(popup))
	f.CloseHandle(popup)

	snap := browser.Capture(f)
	assert.Equal(t, popup, snap.Window)
	assert.True(t, snap.Empty())
	assert.Len(t, snap.Errors, 4)
}
