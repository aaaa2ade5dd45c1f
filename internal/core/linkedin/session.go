package linkedin

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSessionTTL is how long an authenticated session is reused before a
// fresh login is forced.
const DefaultSessionTTL = 6 * time.Hour

// Session is an authenticated LinkedIn browser session. It is immutable and
// safe to share between concurrent scrapes.
type Session struct {
	cookies       []*network.CookieParam
	establishedAt time.Time
}

// NewSession builds a session from cookies captured after a login.
func NewSession(cookies []*network.CookieParam, establishedAt time.Time) *Session {
	cp := make([]*network.CookieParam, len(cookies))
	for i, c := range cookies {
		cc := *c
		cp[i] = &cc
	}
	return &Session{cookies: cp, establishedAt: establishedAt}
}

// Cookies returns a copy of the session cookies.
func (s *Session) Cookies() []*network.CookieParam {
	out := make([]*network.CookieParam, len(s.cookies))
	for i, c := range s.cookies {
		cc := *c
		out[i] = &cc
	}
	return out
}

// EstablishedAt is when the login that produced this session completed.
func (s *Session) EstablishedAt() time.Time { return s.establishedAt }

// Authenticator performs an interactive login and returns the resulting session.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*Session, error)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// TTL bounds how long a session is reused. Zero means DefaultSessionTTL.
	TTL time.Duration
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
	Log *zap.Logger
}

// Manager caches one authenticated session for the whole process.
//
// Concurrent callers that find no valid session share a single login.
// A failed login is reported to every waiting caller and is not retried
// until the next call to Session.
type Manager struct {
	creds CredentialsSource
	auth  Authenticator
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	current *Session
	logins  int
}

// NewManager returns a Manager that logs in with auth using creds.
func NewManager(creds CredentialsSource, auth Authenticator, opts ManagerOptions) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.L()
	}
	return &Manager{
		creds: creds,
		auth:  auth,
		ttl:   opts.TTL,
		now:   opts.Now,
		log:   opts.Log.Named("linkedin.session"),
	}
}

// Session returns the cached session, authenticating first if there is none
// or it has expired.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	if s := m.cached(); s != nil {
		return s, nil
	}

	v, err, shared := m.group.Do("login", func() (interface{}, error) {
		// Another caller may have finished a login while this one waited.
		if s := m.cached(); s != nil {
			return s, nil
		}
		return m.login(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("joined in-flight linkedin login")
	}
	return v.(*Session), nil
}

func (m *Manager) cached() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	if m.now().Sub(m.current.establishedAt) >= m.ttl {
		m.log.Info("linkedin session expired",
			zap.Time("established_at", m.current.establishedAt),
			zap.Duration("ttl", m.ttl),
		)
		m.current = nil
		return nil
	}
	return m.current
}

func (m *Manager) login(ctx context.Context) (*Session, error) {
	if m.creds == nil {
		return nil, ErrCredentialsMissing
	}
	creds, err := m.creds.Credentials(ctx)
	if err != nil {
		if eris.Is(err, ErrCredentialsMissing) {
			return nil, err
		}
		return nil, eris.Wrap(err, "load linkedin credentials")
	}

	m.mu.Lock()
	m.logins++
	m.mu.Unlock()

	m.log.Info("authenticating with linkedin", zap.String("email", creds.Email))
	s, err := m.auth.Authenticate(ctx, creds)
	if err != nil {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		if !eris.Is(err, ErrAuthFailed) {
			err = eris.Wrapf(ErrAuthFailed, "%v", err)
		}
		m.log.Warn("linkedin authentication failed", zap.Error(err))
		return nil, err
	}
	if s == nil {
		return nil, eris.Wrap(ErrAuthFailed, "authenticator returned no session")
	}
	if s.establishedAt.IsZero() {
		s.establishedAt = m.now()
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.log.Info("linkedin session established", zap.Int("cookies", len(s.cookies)))
	return s, nil
}

// Invalidate drops s if it is still the cached session. A session that has
// already been replaced by a newer login is left alone.
func (m *Manager) Invalidate(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.current = nil
		m.log.Info("linkedin session invalidated")
	}
}

// Authentications reports how many logins have been attempted.
func (m *Manager) Authentications() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}
