package fakepersona

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/restmail"
)

// Cookie names. RP session cookies are scoped to the relying party's path.
const (
	SessionCookieName = "persona_session"
	BrowserCookieName = "persona_browser"
	rpCookieName      = "rp_session"

	SessionIDLength = 32
	tokenLength     = restmail.TokenLength
	tokenAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrSessionNotFound = errs.New(errs.Unauthenticated, "session not found")
	ErrEmailTaken      = errs.New(errs.FailedPrecondition, "email already registered")
	ErrUnknownToken    = errs.New(errs.NotFound, "unknown or used token")
	ErrNotSignedIn     = errs.New(errs.Unauthenticated, "not signed in")
	ErrBadCredentials  = errs.New(errs.Unauthenticated, "The account cannot be logged in with this username and password.")
	ErrNotOwner        = errs.New(errs.PermissionDenied, "address does not belong to this account")
	ErrUnknownRP       = errs.New(errs.InvalidArgument, "unknown relying party")
)

type account struct {
	id           string
	passwordHash string
	emails       []string
}

// pending is a staged action waiting for its emailed link to be opened.
type pending struct {
	token        string
	purpose      restmail.Purpose
	email        string
	passwordHash string // new account or reset password
	accountID    string // address being added to this account
	site         string // relying party to return to; "" for the persona site
	stagedBy     string // browser cookie of the staging browser
	created      time.Time
}

type idpSession struct {
	id        string
	accountID string
	autoLogin map[string]string // relying party -> email, consumed on use
}

func normalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// The methods below expect s.mu to be held.

func (s *Server) accountFor(addr string) *account {
	id, ok := s.byEmail[normalizeEmail(addr)]
	if !ok {
		return nil
	}
	return s.accounts[id]
}

func (s *Server) createAccountLocked(addr, hash string) (*account, error) {
	addr = normalizeEmail(addr)
	if _, taken := s.byEmail[addr]; taken {
		return nil, ErrEmailTaken
	}
	a := &account{id: uuid.NewString(), passwordHash: hash, emails: []string{addr}}
	s.accounts[a.id] = a
	s.byEmail[addr] = a.id
	return a, nil
}

func (s *Server) addEmailLocked(a *account, addr string) error {
	addr = normalizeEmail(addr)
	if owner, taken := s.byEmail[addr]; taken {
		if owner == a.id {
			return nil
		}
		return ErrEmailTaken
	}
	a.emails = append(a.emails, addr)
	s.byEmail[addr] = a.id
	return nil
}

func (s *Server) removeEmailLocked(a *account, addr string) error {
	addr = normalizeEmail(addr)
	i := slices.Index(a.emails, addr)
	if i < 0 {
		return errs.Newf(errs.NotFound, "%s is not on this account", addr)
	}
	a.emails = slices.Delete(a.emails, i, i+1)
	delete(s.byEmail, addr)
	return nil
}

func (s *Server) deleteAccountLocked(a *account) {
	for _, addr := range a.emails {
		delete(s.byEmail, addr)
	}
	delete(s.accounts, a.id)
	for id, sess := range s.sessions {
		if sess.accountID == a.id {
			delete(s.sessions, id)
		}
	}
}

func (s *Server) stageLocked(p *pending) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	p.token = token
	p.created = s.now()
	s.pending[token] = p
	return token, nil
}

func (s *Server) newSessionLocked(accountID string) (*idpSession, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	sess := &idpSession{id: id, accountID: accountID, autoLogin: make(map[string]string)}
	s.sessions[id] = sess
	return sess, nil
}

// signedInLocked returns the account of the request's session or
// ErrNotSignedIn.
func (s *Server) signedInLocked(r *http.Request) (*account, error) {
	if _, a := s.sessionLocked(r); a != nil {
		return a, nil
	}
	return nil, ErrNotSignedIn
}

// sessionLocked returns the live session named by the request cookie and its
// account. Sessions whose account is gone are dropped.
func (s *Server) sessionLocked(r *http.Request) (*idpSession, *account) {
	id, err := cookieValue(r, SessionCookieName)
	if err != nil {
		return nil, nil
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	a, ok := s.accounts[sess.accountID]
	if !ok {
		delete(s.sessions, id)
		return nil, nil
	}
	return sess, a
}

// Cookie helpers

func setCookie(w http.ResponseWriter, r *http.Request, name, value, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, r *http.Request, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func cookieValue(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// browserID returns the request's browser cookie, issuing one if absent.
func browserID(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, err := cookieValue(r, BrowserCookieName); err == nil && id != "" {
		return id, nil
	}
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	setCookie(w, r, BrowserCookieName, id, "/")
	return id, nil
}

// Helper functions

func generateSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// randomToken returns a link token of the length the inbox poller extracts.
func randomToken() (string, error) {
	var b strings.Builder
	b.Grow(tokenLength)
	size := big.NewInt(int64(len(tokenAlphabet)))
	for range tokenLength {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}
