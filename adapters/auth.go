package adapters

import (
	"context"
	"errors"
	"strings"

	"order-sla-extractor/internal/types"
	"order-sla-extractor/session"
	"order-sla-extractor/utils"
)

// Credentials for the fresh-login path
type Credentials struct {
	Username string
	Password string
}

// Authenticator acquires an authenticated session, restoring a stored one
// when possible and logging in otherwise.
type Authenticator struct {
	*BaseAdapter
	store session.Store
	creds Credentials
}

// NewAuthenticator creates an authenticator persisting sessions in store
func NewAuthenticator(base *BaseAdapter, store session.Store, creds Credentials) *Authenticator {
	return &Authenticator{BaseAdapter: base, store: store, creds: creds}
}

// AcquireSession returns a confirmed session or an *AuthError. Failure is not
// retried here; the caller decides whether to run another cycle.
func (a *Authenticator) AcquireSession(ctx context.Context) (*types.Session, error) {
	if s, ok := a.restore(ctx); ok {
		a.logger.Info("Restored stored session")
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.login(ctx)
}

func (a *Authenticator) restore(ctx context.Context) (*types.Session, bool) {
	stored, err := a.store.Load()
	if err != nil {
		a.logger.Warnf("Failed to load stored session: %v", err)
		return nil, false
	}
	if stored == nil {
		a.logger.Debug("No stored session")
		return nil, false
	}

	target := stored.URL
	if target == "" {
		target = a.profile.OrdersURL
	}
	if err := a.page.Navigate(ctx, target); err != nil {
		a.logger.Warnf("Failed to open %s for session restore: %v", target, err)
		return nil, false
	}
	if err := a.page.SetCookies(ctx, stored.Cookies); err != nil {
		a.logger.Warnf("Failed to apply stored cookies: %v", err)
		a.discard()
		return nil, false
	}
	if err := a.page.Reload(ctx); err != nil {
		a.logger.Warnf("Failed to reload after restoring cookies: %v", err)
		a.discard()
		return nil, false
	}

	if _, err := a.WaitForAny(ctx, "login marker after restore", a.profile.LoginMarker, a.config.ProbeTimeout); err != nil {
		a.logger.Infof("Stored session rejected: %v", err)
		a.discard()
		return nil, false
	}
	return stored, true
}

func (a *Authenticator) discard() {
	if err := a.store.Clear(); err != nil {
		a.logger.Warnf("Failed to clear stored session: %v", err)
	}
}

func (a *Authenticator) login(ctx context.Context) (*types.Session, error) {
	a.logger.Info("Logging in")
	if err := a.page.Navigate(ctx, a.profile.LoginURL); err != nil {
		return nil, &AuthError{Reason: "login page unreachable", Err: err}
	}

	// The browser profile may already carry a valid session.
	if _, ok := a.FirstPresent(ctx, a.profile.LoginMarker); ok {
		a.logger.Info("Already logged in")
		return a.persist(ctx)
	}

	if a.creds.Username == "" || a.creds.Password == "" {
		return nil, &AuthError{Reason: "no credentials configured"}
	}

	user, err := a.WaitForAny(ctx, "username field", a.profile.UsernameFields, a.config.LoginTimeout)
	if err != nil {
		return nil, a.authErr("username field not found", err)
	}
	pass, ok := a.FirstPresent(ctx, a.profile.PasswordFields)
	if !ok {
		return nil, &AuthError{Reason: "password field not found"}
	}
	submit, ok := a.FirstPresent(ctx, a.profile.SubmitButtons)
	if !ok {
		return nil, &AuthError{Reason: "submit button not found"}
	}
	a.logger.Debugf("Login form: username=%s password=%s submit=%s", user.Name, pass.Name, submit.Name)

	if err := a.page.SendKeys(ctx, user.Selector, a.creds.Username); err != nil {
		return nil, &AuthError{Reason: "failed to enter username", Err: err}
	}
	if err := a.page.SendKeys(ctx, pass.Selector, a.creds.Password); err != nil {
		return nil, &AuthError{Reason: "failed to enter password", Err: err}
	}
	if err := a.page.Click(ctx, submit.Selector); err != nil {
		return nil, &AuthError{Reason: "failed to submit login form", Err: err}
	}

	if err := a.WaitFor(ctx, "login confirmation", a.config.LoginTimeout, a.confirmed); err != nil {
		return nil, a.authErr("login not confirmed", err)
	}
	a.logger.Info("Login confirmed")
	return a.persist(ctx)
}

// confirmed holds when the login marker shows, or the page left the login URL
// for one that is not another login or error page.
func (a *Authenticator) confirmed(ctx context.Context) (bool, error) {
	if _, ok := a.FirstPresent(ctx, a.profile.LoginMarker); ok {
		return true, nil
	}
	loc, err := a.page.Location(ctx)
	if err != nil {
		return false, err
	}
	if lower := strings.ToLower(loc); strings.Contains(lower, "login") || strings.Contains(lower, "error") {
		return false, nil
	}
	if loc != "" && loc != a.profile.LoginURL {
		return true, nil
	}
	for _, pattern := range a.profile.PostLoginPatterns {
		if strings.Contains(loc, pattern) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Authenticator) persist(ctx context.Context) (*types.Session, error) {
	cookies, err := a.page.Cookies(ctx)
	if err != nil {
		return nil, &AuthError{Reason: "failed to read session cookies", Err: err}
	}
	loc, err := a.page.Location(ctx)
	if err != nil {
		loc = a.profile.OrdersURL
	}
	s := &types.Session{
		Cookies:   cookies,
		URL:       loc,
		CreatedAt: a.clock.Now(),
		TTL:       a.config.SessionTTL,
	}
	if err := a.store.Save(s); err != nil {
		a.logger.Warnf("Failed to persist session: %v", err)
	}
	return s, nil
}

// authErr keeps cancellation distinguishable from a failed login.
func (a *Authenticator) authErr(reason string, err error) error {
	if !utils.IsTimeout(err) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	return &AuthError{Reason: reason, Err: err}
}
