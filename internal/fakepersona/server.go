// Package fakepersona serves a self-contained imitation of the identity
// provider, its two demo relying parties and a restmail mailbox, all under
// one origin. It lets the suite run hermetically against a real browser.
//
// Layout under the base URL:
//
//	/                          persona.org home or account manager
//	/signin                    persona.org sign-in page
//	/sign_in?rp=<name>         identity dialog (popup)
//	/verify_email_address      complete registration
//	/add_email_address         confirm an added address
//	/reset_password            complete a password reset
//	/wsapi/...                 JSON API used by the pages above
//	/123done/, /myfavoritebeer/  relying parties
//	/mail/{user}               restmail API
//
// Passwords are bcrypt hashed; assertions are EdDSA JWTs checked by the
// relying parties for issuer, audience and expiry.
package fakepersona

import (
	"context"
	"crypto/ed25519"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/email"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/pages"
	"github.com/kuitang/persona-e2e/internal/ratelimit"
)

//go:embed templates/*.html static/*.js
var assets embed.FS

// DefaultRedirectDelay is how long the complete-registration page shows its
// message before redirecting.
const DefaultRedirectDelay = 2 * time.Second

// Options configures a Server. Zero values pick test-friendly defaults.
type Options struct {
	Hasher        PasswordHasher   // default bcrypt at MinCost
	Mailer        email.Mailer     // default: the server's own mailbox
	MailLimit     ratelimit.Config // throttling of /mail/ reads per user
	SigningKey    ed25519.PrivateKey
	Now           func() time.Time
	RedirectDelay time.Duration
}

// Server holds all fake state in memory.
type Server struct {
	opts    Options
	log     *slog.Logger
	signer  *Signer
	hasher  PasswordHasher
	mailbox *email.MemoryMailbox
	mailer  email.Mailer
	limiter *ratelimit.RateLimiter
	tmpl    *template.Template
	handler http.Handler

	mu         sync.Mutex
	accounts   map[string]*account
	byEmail    map[string]string
	pending    map[string]*pending
	sessions   map[string]*idpSession
	rpSessions map[string]string // relying party + "/" + cookie -> email

	srv *http.Server
}

// New creates a server. Call Close to release the mail limiter.
func New(opts Options) (*Server, error) {
	signer, err := NewSigner(opts.SigningKey)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = DefaultRedirectDelay
	}
	if opts.MailLimit.Interval <= 0 {
		opts.MailLimit = ratelimit.Config{Interval: 50 * time.Millisecond, Burst: 10}
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher(bcrypt.MinCost)
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"ms": func(d time.Duration) int64 { return d.Milliseconds() },
	}).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:       opts,
		log:        obs.Pkg("fakepersona"),
		signer:     signer,
		hasher:     hasher,
		mailbox:    email.NewMemoryMailbox("no-reply@persona.org"),
		limiter:    ratelimit.NewRateLimiter(opts.MailLimit),
		tmpl:       tmpl,
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		pending:    make(map[string]*pending),
		sessions:   make(map[string]*idpSession),
		rpSessions: make(map[string]string),
	}
	s.mailer = opts.Mailer
	if s.mailer == nil {
		s.mailer = s.mailbox
	}
	s.handler = obs.AccessLogMiddleware("fakepersona", s.routes())
	return s, nil
}

func (s *Server) now() time.Time { return s.opts.Now() }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mailKey := func(r *http.Request) string {
		return strings.ToLower(strings.TrimPrefix(r.URL.Path, "/mail/"))
	}
	mux.Handle("/mail/", ratelimit.Middleware(s.limiter, mailKey)(s.mailbox.Handler()))
	mux.HandleFunc("GET /static/persona.js", s.serveScript)

	s.registerSitePages(mux)
	s.registerWSAPI(mux)
	for _, site := range pages.Sites() {
		s.registerRelyingParty(mux, site)
	}
	return mux
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Mailbox returns the in-memory mailbox served under /mail/.
func (s *Server) Mailbox() *email.MemoryMailbox { return s.mailbox }

// Environment returns the URL set of this server mounted at base.
func (s *Server) Environment(name, base string) config.Environment {
	return config.SingleOriginEnvironment(name, base)
}

// Listen starts serving on addr ("127.0.0.1:0" picks a free port) and
// returns the base URL.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve_failed", "error", err.Error())
		}
	}()
	base := "http://" + ln.Addr().String()
	s.log.Info("listening", "base", base)
	return base, nil
}

// Close stops a server started by Listen and the mail limiter.
func (s *Server) Close() error {
	s.limiter.Stop()
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// CreateUser registers a verified account directly, skipping the mail round
// trip.
func (s *Server) CreateUser(addr, password string) error {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.createAccountLocked(addr, hash)
	return err
}

// Emails returns the verified addresses of the account owning addr, or nil.
func (s *Server) Emails(addr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountFor(addr)
	if a == nil {
		return nil
	}
	return slices.Clone(a.emails)
}

func (s *Server) serveScript(w http.ResponseWriter, _ *http.Request) {
	js, err := assets.ReadFile("static/persona.js")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(js)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render_failed", "template", name, "error", err.Error())
	}
}

// origin is the scheme and host the request was addressed to.
func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// audience is what assertions for the named relying party are bound to.
func audience(r *http.Request, rp string) string {
	return origin(r) + "/" + rp
}

func isRelyingParty(name string) bool {
	for _, site := range pages.Sites() {
		if site.Name == name {
			return true
		}
	}
	return false
}
