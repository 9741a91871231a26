package fakepersona

import (
	"net/http/httptest"
	"testing"
	"time"
)

// TestServer starts a fake on a loopback httptest server and returns it with
// its base URL. Everything is torn down when the test completes.
func TestServer(t testing.TB, opts Options) (*Server, string) {
	t.Helper()
	if opts.Hasher == nil {
		opts.Hasher = FakeInsecureHasher{}
	}
	if opts.RedirectDelay == 0 {
		opts.RedirectDelay = 200 * time.Millisecond
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create fake persona: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts.URL
}
