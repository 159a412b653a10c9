// Package session is the authentication gate of the server. It
// validates session cookies, exchanges Basic credentials for sessions
// and owns the in-memory session store. Sessions slide: every
// successful validation extends the expiry.
package session

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CookieName is the session-identifying cookie, path scoped to the
// whole site and reissued on every response once a session exists.
const CookieName = "__privilegedAccessToken"

const defaultLifetime = 8 * time.Hour

// Session represents one authenticated caller.
type Session struct {
	// Token identifies the session on the wire.
	Token string
	// User is the display name of the session owner.
	User string

	lastAccess time.Time
}

// RealmInfo describes the HTTP challenge sent when authentication is
// required and absent.
type RealmInfo struct {
	Realm string
	Error string
}

// Config configures the authentication gate.
type Config struct {
	// Enabled turns authentication enforcement on.
	Enabled bool `yaml:"enabled"`
	// Realm names the Basic authentication realm.
	Realm string `yaml:"realm"`
	// RealmError is the body of 401 responses.
	RealmError string `yaml:"realm_error"`
	// Lifetime is the sliding session lifetime.
	Lifetime time.Duration `yaml:"lifetime"`
	// Dictionary lists static "user:password" credentials.
	Dictionary []string `yaml:"dictionary"`
}

// Manager validates tokens and issues sessions. Safe for concurrent
// use by every request worker.
type Manager struct {
	cfg        Config
	rootDigest []byte
	dictionary map[string]string

	mu      sync.Mutex
	byToken map[string]*Session
	byUser  map[string]*Session
}

// NewManager builds the authentication gate. The root digest is the
// bcrypt digest of the superuser's "user:password" pair. An invalid
// credential dictionary is a configuration error: the server must not
// start in an ambiguously secured state.
func NewManager(cfg Config, rootDigest string) (*Manager, error) {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.Realm == "" {
		cfg.Realm = "report-gateway"
	}
	if cfg.RealmError == "" {
		cfg.RealmError = "Authentication required to access this server.\n"
	}

	dictionary := make(map[string]string, len(cfg.Dictionary))
	for _, entry := range cfg.Dictionary {
		user, password, found := strings.Cut(entry, ":")
		if !found || user == "" {
			return nil, fmt.Errorf("invalid credential entry %q: want user:password", entry)
		}
		dictionary[user] = password
	}

	return &Manager{
		cfg:        cfg,
		rootDigest: []byte(rootDigest),
		dictionary: dictionary,
		byToken:    make(map[string]*Session),
		byUser:     make(map[string]*Session),
	}, nil
}

// Enabled reports whether authentication is enforced.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Realm returns the challenge information for 401 responses.
func (m *Manager) Realm() RealmInfo {
	return RealmInfo{Realm: m.cfg.Realm, Error: m.cfg.RealmError}
}

// Validate returns the session bound to the token, or nil when the
// token is unknown or the session has expired. A successful lookup
// slides the expiry window.
func (m *Manager) Validate(token string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byToken[token]
	if !ok {
		return nil
	}
	if time.Since(sess.lastAccess) > m.cfg.Lifetime {
		delete(m.byToken, sess.Token)
		delete(m.byUser, sess.User)
		return nil
	}
	sess.lastAccess = time.Now()
	return sess
}

// CreateOrGet exchanges "user:password" credentials for a session,
// idempotently returning the live session already bound to that user.
// It returns nil when the credentials are refused; the reason is never
// reported to the caller.
func (m *Manager) CreateOrGet(credentials string) *Session {
	user, ok := m.checkCredentials(credentials)
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.byUser[user]; ok {
		if time.Since(sess.lastAccess) <= m.cfg.Lifetime {
			sess.lastAccess = time.Now()
			return sess
		}
		delete(m.byToken, sess.Token)
		delete(m.byUser, sess.User)
	}

	sess := &Session{
		Token:      uuid.NewString(),
		User:       user,
		lastAccess: time.Now(),
	}
	m.byToken[sess.Token] = sess
	m.byUser[user] = sess
	return sess
}

// Destroy invalidates the session bound to the token. It reports
// whether a session was found.
func (m *Manager) Destroy(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byToken[token]
	if !ok {
		return false
	}
	delete(m.byToken, sess.Token)
	delete(m.byUser, sess.User)
	return true
}

func (m *Manager) checkCredentials(credentials string) (string, bool) {
	user, password, found := strings.Cut(credentials, ":")
	if !found {
		return "", false
	}

	if expected, ok := m.dictionary[user]; ok {
		if subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1 {
			return user, true
		}
	}

	if len(m.rootDigest) > 0 &&
		bcrypt.CompareHashAndPassword(m.rootDigest, []byte(credentials)) == nil {
		return user, true
	}

	return "", false
}
