package fakepersona

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/kuitang/persona-e2e/internal/email"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/restmail"
)

// MinPasswordLength is the shortest password the fake accepts.
const MinPasswordLength = 8

var (
	errEmailRequired    = errs.New(errs.InvalidArgument, "email is required")
	errPasswordTooShort = errs.New(errs.InvalidArgument, "password must be at least 8 characters")
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type sessionContext struct {
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"userid,omitempty"`
	Emails        []string `json:"emails"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"pass"`
	Site     string `json:"site"`
}

type tokenInfo struct {
	Email         string `json:"email"`
	Purpose       string `json:"purpose"`
	NeedsPassword bool   `json:"needs_password"`
}

type completion struct {
	UserID   string `json:"userid"`
	Email    string `json:"email"`
	Purpose  string `json:"purpose"`
	ReturnTo string `json:"return_to"`
}

// registerWSAPI registers the JSON API used by the dialog and persona.org pages.
func (s *Server) registerWSAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /wsapi/session_context", s.SessionContext)
	mux.HandleFunc("GET /wsapi/address_info", s.AddressInfo)
	mux.HandleFunc("POST /wsapi/authenticate_user", s.AuthenticateUser)
	mux.HandleFunc("POST /wsapi/logout", s.Logout)
	mux.HandleFunc("POST /wsapi/assertion", s.Assertion)
	mux.HandleFunc("GET /wsapi/auto_assertion", s.AutoAssertion)
	mux.HandleFunc("POST /wsapi/stage_user", s.StageUser)
	mux.HandleFunc("POST /wsapi/stage_email", s.StageEmail)
	mux.HandleFunc("POST /wsapi/stage_reset", s.StageReset)
	mux.HandleFunc("GET /wsapi/token_info", s.TokenInfo)
	mux.HandleFunc("POST /wsapi/complete", s.Complete)
	mux.HandleFunc("POST /wsapi/update_password", s.UpdatePassword)
	mux.HandleFunc("POST /wsapi/remove_email", s.RemoveEmail)
	mux.HandleFunc("POST /wsapi/account_cancel", s.CancelAccount)
}

// SessionContext handles GET /wsapi/session_context.
func (s *Server) SessionContext(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, a := s.sessionLocked(r)
	if a == nil {
		writeJSON(w, http.StatusOK, sessionContext{Emails: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, sessionContext{
		Authenticated: true,
		UserID:        a.id,
		Emails:        append([]string(nil), a.emails...),
	})
}

// AddressInfo handles GET /wsapi/address_info?email=.
func (s *Server) AddressInfo(w http.ResponseWriter, r *http.Request) {
	addr := normalizeEmail(r.URL.Query().Get("email"))
	if !strings.Contains(addr, "@") {
		writeError(w, errEmailRequired)
		return
	}
	s.mu.Lock()
	known := s.accountFor(addr) != nil
	s.mu.Unlock()
	state := "unknown"
	if known {
		state = "known"
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

// AuthenticateUser handles POST /wsapi/authenticate_user.
func (s *Server) AuthenticateUser(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	a := s.accountFor(req.Email)
	s.mu.Unlock()
	err := ErrBadCredentials
	if a != nil {
		err = s.checkPassword(a, req.Password, ErrBadCredentials)
	}
	if err != nil {
		s.log.Info("authenticate_rejected", "email", req.Email)
		writeError(w, err)
		return
	}

	s.mu.Lock()
	sess, err := s.newSessionLocked(a.id)
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	setCookie(w, r, SessionCookieName, sess.id, "/")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "userid": a.id})
}

// Logout handles POST /wsapi/logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if id, err := cookieValue(r, SessionCookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}
	clearCookie(w, r, SessionCookieName, "/")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Assertion handles POST /wsapi/assertion: it signs an assertion for one of
// the session's addresses, bound to the named relying party.
func (s *Server) Assertion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		RP    string `json:"rp"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !isRelyingParty(req.RP) {
		writeError(w, ErrUnknownRP)
		return
	}
	s.mu.Lock()
	a, err := s.signedInLocked(r)
	if err == nil && s.accountFor(req.Email) != a {
		err = ErrNotOwner
	}
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeAssertion(w, r, normalizeEmail(req.Email), req.RP)
}

// AutoAssertion handles GET /wsapi/auto_assertion?rp=. It answers once with
// an assertion after a verification link completed a sign-in for rp, and
// with 204 otherwise.
func (s *Server) AutoAssertion(w http.ResponseWriter, r *http.Request) {
	rp := r.URL.Query().Get("rp")
	s.mu.Lock()
	sess, _ := s.sessionLocked(r)
	var addr string
	if sess != nil {
		addr = sess.autoLogin[rp]
		delete(sess.autoLogin, rp)
	}
	s.mu.Unlock()
	if addr == "" || !isRelyingParty(rp) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeAssertion(w, r, addr, rp)
}

func (s *Server) writeAssertion(w http.ResponseWriter, r *http.Request, addr, rp string) {
	token, err := s.signer.Sign(r.Host, addr, audience(r, rp), s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assertion": token})
}

// StageUser handles POST /wsapi/stage_user: it records a new account waiting
// for verification and mails the link.
func (s *Server) StageUser(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Password) < MinPasswordLength {
		writeError(w, errs.New(errs.InvalidArgument, "a valid email and a password of at least 8 characters are required"))
		return
	}
	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.stage(w, r, &pending{
		purpose:      restmail.VerifyAccount,
		email:        normalizeEmail(req.Email),
		passwordHash: hash,
		site:         req.Site,
	}, email.TemplateVerifyAccount)
}

// StageEmail handles POST /wsapi/stage_email: it adds an address to the
// signed-in account once confirmed.
func (s *Server) StageEmail(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	a, err := s.signedInLocked(r)
	switch {
	case err != nil:
	case s.accountFor(req.Email) != nil:
		err = ErrEmailTaken
	case !strings.Contains(req.Email, "@"):
		err = errEmailRequired
	}
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	s.stage(w, r, &pending{
		purpose:   restmail.ConfirmEmail,
		email:     normalizeEmail(req.Email),
		accountID: a.id,
		site:      req.Site,
	}, email.TemplateConfirmEmail)
}

// StageReset handles POST /wsapi/stage_reset. The new password takes effect
// when the mailed link is opened.
func (s *Server) StageReset(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	a := s.accountFor(req.Email)
	s.mu.Unlock()
	if a == nil {
		writeError(w, errs.New(errs.NotFound, "no account for this address"))
		return
	}
	if len(req.Password) < MinPasswordLength {
		writeError(w, errPasswordTooShort)
		return
	}
	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.stage(w, r, &pending{
		purpose:      restmail.ResetPassword,
		email:        normalizeEmail(req.Email),
		passwordHash: hash,
		accountID:    a.id,
		site:         req.Site,
	}, email.TemplatePasswordReset)
}

func (s *Server) stage(w http.ResponseWriter, r *http.Request, p *pending, templateName string) {
	if p.site != "" && !isRelyingParty(p.site) {
		writeError(w, ErrUnknownRP)
		return
	}
	browser, err := browserID(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	p.stagedBy = browser

	s.mu.Lock()
	token, err := s.stageLocked(p)
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	site := p.site
	if site == "" {
		site = "persona.org"
	}
	link := origin(r) + "/" + p.purpose.Path() + "?token=" + url.QueryEscape(token)
	if err := s.mailer.Send(p.email, templateName, email.LinkData{Site: site, Link: link}); err != nil {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
		s.log.Error("send_mail_failed", "email", p.email, "error", err.Error())
		writeError(w, errs.Wrap(errs.Unavailable, "could not send mail", err))
		return
	}
	s.log.Info("staged", "purpose", p.purpose.String(), "email", p.email, "site", p.site)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// TokenInfo handles GET /wsapi/token_info?token=. A new account opened in a
// different browser than the one that staged it must re-enter its password.
func (s *Server) TokenInfo(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	browser, _ := cookieValue(r, BrowserCookieName)
	s.mu.Lock()
	p, ok := s.pending[token]
	s.mu.Unlock()
	if !ok {
		writeError(w, ErrUnknownToken)
		return
	}
	writeJSON(w, http.StatusOK, tokenInfo{
		Email:         p.email,
		Purpose:       p.purpose.String(),
		NeedsPassword: p.purpose == restmail.VerifyAccount && browser != p.stagedBy,
	})
}

// Complete handles POST /wsapi/complete: it redeems a token, signs the
// browser in and reports where to go next.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"pass"`
	}
	if !decode(w, r, &req) {
		return
	}
	browser, _ := cookieValue(r, BrowserCookieName)

	s.mu.Lock()
	p, ok := s.pending[req.Token]
	s.mu.Unlock()
	if !ok {
		writeError(w, ErrUnknownToken)
		return
	}
	if p.purpose == restmail.VerifyAccount && browser != p.stagedBy {
		if s.hasher.VerifyPassword(p.passwordHash, req.Password) != nil {
			writeError(w, errs.New(errs.Unauthenticated, "password does not match"))
			return
		}
	}

	s.mu.Lock()
	a, err := s.redeemLocked(p)
	var sess *idpSession
	if err == nil {
		delete(s.pending, p.token)
		sess, err = s.newSessionLocked(a.id)
	}
	if err == nil && p.site != "" {
		sess.autoLogin[p.site] = p.email
	}
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	setCookie(w, r, SessionCookieName, sess.id, "/")

	returnTo := "/"
	if p.site != "" {
		returnTo = "/" + p.site + "/"
	}
	s.log.Info("completed", "purpose", p.purpose.String(), "email", p.email)
	writeJSON(w, http.StatusOK, completion{UserID: a.id, Email: p.email, Purpose: p.purpose.String(), ReturnTo: returnTo})
}

func (s *Server) redeemLocked(p *pending) (*account, error) {
	switch p.purpose {
	case restmail.VerifyAccount:
		return s.createAccountLocked(p.email, p.passwordHash)
	case restmail.ConfirmEmail:
		a, ok := s.accounts[p.accountID]
		if !ok {
			return nil, ErrUnknownToken
		}
		return a, s.addEmailLocked(a, p.email)
	case restmail.ResetPassword:
		a, ok := s.accounts[p.accountID]
		if !ok {
			return nil, ErrUnknownToken
		}
		a.passwordHash = p.passwordHash
		for id, sess := range s.sessions {
			if sess.accountID == a.id {
				delete(s.sessions, id)
			}
		}
		return a, nil
	default:
		return nil, ErrUnknownToken
	}
}

// UpdatePassword handles POST /wsapi/update_password.
func (s *Server) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Old string `json:"oldpass"`
		New string `json:"newpass"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	a, err := s.signedInLocked(r)
	s.mu.Unlock()
	if err == nil {
		err = s.checkPassword(a, req.Old, errs.New(errs.Unauthenticated, "incorrect password"))
	}
	if err == nil && len(req.New) < MinPasswordLength {
		err = errPasswordTooShort
	}
	if err != nil {
		writeError(w, err)
		return
	}
	newHash, err := s.hasher.HashPassword(req.New)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	a.passwordHash = newHash
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RemoveEmail handles POST /wsapi/remove_email. Removing the last address
// cancels the account.
func (s *Server) RemoveEmail(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.signedInLocked(r)
	if err == nil {
		err = s.removeEmailLocked(a, req.Email)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if len(a.emails) == 0 {
		s.deleteAccountLocked(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "emails": append([]string{}, a.emails...)})
}

// CancelAccount handles POST /wsapi/account_cancel.
func (s *Server) CancelAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	_, a := s.sessionLocked(r)
	if a != nil {
		s.deleteAccountLocked(a)
	}
	s.mu.Unlock()
	if a == nil {
		writeError(w, ErrNotSignedIn)
		return
	}
	clearCookie(w, r, SessionCookieName, "/")
	s.log.Info("account_cancelled", "userid", a.id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeError(w, errs.Wrap(errs.InvalidArgument, "invalid JSON body", err))
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes err as a JSON error response. The status comes from the
// error's code; uncoded errors are a 500 whose detail is not sent.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), ErrorResponse{Error: errs.MessageOf(err)})
}

// checkPassword verifies password against the account's hash, returning
// wrong on a mismatch. The hash is read under s.mu; bcrypt runs outside it.
func (s *Server) checkPassword(a *account, password string, wrong error) error {
	s.mu.Lock()
	hash := a.passwordHash
	s.mu.Unlock()
	if s.hasher.VerifyPassword(hash, password) != nil {
		return wrong
	}
	return nil
}
