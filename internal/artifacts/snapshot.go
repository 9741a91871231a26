package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/kuitang/persona-e2e/internal/browser"
	"github.com/kuitang/persona-e2e/internal/logutil"
)

// Ref locates the stored parts of one snapshot.
type Ref struct {
	Prefix     string `json:"prefix" cbor:"1,keyasint"`
	Meta       string `json:"meta" cbor:"2,keyasint"`
	HTML       string `json:"html,omitempty" cbor:"3,keyasint,omitempty"`
	Screenshot string `json:"screenshot,omitempty" cbor:"4,keyasint,omitempty"`
}

type snapshotMeta struct {
	Scenario string    `json:"scenario"`
	Browser  string    `json:"browser"`
	Window   string    `json:"window"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Error    string    `json:"error"`
	TakenAt  time.Time `json:"taken_at"`
	Capture  []string  `json:"capture_errors,omitempty"`
}

var keyUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// KeyPrefix builds the key prefix for a failure of scenario in browser
// during run.
func KeyPrefix(runID, scenario, browserName string) string {
	part := func(s string) string {
		s = keyUnsafe.ReplaceAllString(strings.TrimSpace(s), "_")
		if s == "" {
			return "unknown"
		}
		return s
	}
	return path.Join(part(runID), part(browserName), part(scenario))
}

// SaveSnapshot writes snap under prefix: meta.json always, page.html and
// screenshot.png when captured. URLs are redacted before they are stored.
func SaveSnapshot(ctx context.Context, store Store, prefix, scenario, browserName string, snap browser.Snapshot, failure error) (Ref, error) {
	ref := Ref{Prefix: prefix}
	if snap.HTML != "" {
		loc, err := store.Put(ctx, path.Join(prefix, "page.html"), []byte(logutil.RedactText(snap.HTML)), "text/html; charset=utf-8")
		if err != nil {
			return ref, err
		}
		ref.HTML = loc
	}
	if len(snap.PNG) > 0 {
		loc, err := store.Put(ctx, path.Join(prefix, "screenshot.png"), snap.PNG, "image/png")
		if err != nil {
			return ref, err
		}
		ref.Screenshot = loc
	}

	meta := snapshotMeta{
		Scenario: scenario,
		Browser:  browserName,
		Window:   snap.Window,
		URL:      logutil.RedactURL(snap.URL),
		Title:    snap.Title,
		TakenAt:  snap.TakenAt,
		Capture:  snap.Errors,
	}
	if failure != nil {
		meta.Error = failure.Error()
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return ref, fmt.Errorf("artifacts: marshal snapshot meta: %w", err)
	}
	loc, err := store.Put(ctx, path.Join(prefix, "meta.json"), payload, "application/json")
	if err != nil {
		return ref, err
	}
	ref.Meta = loc
	return ref, nil
}
