package oauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"reddit_relay/internal/domain"
)

// DefaultRefreshBuffer is how long before expiry an access token stops being reused.
const DefaultRefreshBuffer = 5 * time.Minute

// TokenClient performs token endpoint calls.
type TokenClient interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Exchange(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
}

// Store persists the Record.
type Store interface {
	Load() (*Record, error)
	Save(rec *Record) error
}

type ManagerConfig struct {
	RedirectURI string
	// Fallback is used when no token file exists. It is either a refresh token
	// or, when it looks like one, an authorization code to exchange once.
	Fallback      string
	RefreshBuffer time.Duration
}

// Status describes the cached credential for operators.
type Status struct {
	HasRecord bool      `json:"has_record"`
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Scope     string    `json:"scope,omitempty"`
}

// Manager owns the OAuth2 record: it loads it, refreshes it before expiry and
// writes it back after every refresh or exchange. Concurrent callers share a
// single refresh.
type Manager struct {
	client TokenClient
	store  Store
	cfg    ManagerConfig
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	record *Record
	// Set once the configured code or a refresh token has been refused. The
	// store is still consulted on every call so a new authorization written
	// by another process is picked up.
	terminalErr error
	revoked     string
}

func NewManager(client TokenClient, store Store, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.RefreshBuffer == 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	return &Manager{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "oauth"),
		now:    time.Now,
	}
}

// AccessToken returns an access token valid for at least the refresh buffer.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	rec, err := m.current(ctx)
	if err != nil {
		return "", err
	}

	if rec.Usable(m.now(), m.cfg.RefreshBuffer) {
		return rec.AccessToken, nil
	}

	m.logger.Info("access token needs refresh",
		"expires_at", rec.ExpiryTime(),
		"refresh_buffer", m.cfg.RefreshBuffer,
	)

	v, err, shared := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("joined in-flight token refresh")
	}
	return v.(*Record).AccessToken, nil
}

func (m *Manager) current(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	if m.record != nil {
		rec := *m.record
		m.mu.Unlock()
		return &rec, nil
	}
	terminalErr, revoked := m.terminalErr, m.revoked
	m.mu.Unlock()

	rec, err := m.store.Load()
	if err != nil {
		return nil, domain.NewError(domain.KindAuth, domain.CodeTokenIO, "load token record", err)
	}
	if rec != nil && rec.RefreshToken != "" && rec.RefreshToken != revoked {
		if terminalErr != nil {
			m.logger.Info("picked up new token record from store")
		}
		m.setRecord(rec)
		return rec, nil
	}
	if terminalErr != nil {
		return nil, terminalErr
	}

	fallback := strings.TrimSpace(m.cfg.Fallback)
	if fallback == "" {
		return nil, domain.NewError(domain.KindAuth, domain.CodeNoStoredCredential,
			"no token file and no refresh token configured; run `relayctl auth url` to authorize", nil)
	}

	if LooksLikeAuthCode(fallback) {
		m.logger.Info("configured credential looks like an authorization code, exchanging it")
		rec, err := m.Exchange(ctx, fallback)
		if err != nil {
			if domain.CodeOf(err) == domain.CodeExchangeExpired {
				m.mu.Lock()
				m.terminalErr = err
				m.mu.Unlock()
			}
			return nil, err
		}
		return rec, nil
	}

	rec = &Record{RefreshToken: fallback}
	m.setRecord(rec)
	return rec, nil
}

func (m *Manager) refresh(ctx context.Context, rec *Record) (*Record, error) {
	resp, err := m.client.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrRejected) {
			rejected := domain.NewError(domain.KindAuth, domain.CodeRefreshRejected, "refresh token rejected", err)
			m.mu.Lock()
			m.record = nil
			m.terminalErr = rejected
			m.revoked = rec.RefreshToken
			m.mu.Unlock()
			return nil, rejected
		}
		return nil, domain.NewError(domain.KindAuth, domain.CodeRefreshFailed, "refresh access token", err)
	}

	next := &Record{
		RefreshToken: rec.RefreshToken,
		AccessToken:  resp.AccessToken,
		ExpiresAt:    m.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UnixMilli(),
		Scope:        rec.Scope,
	}
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}
	if resp.Scope != "" {
		next.Scope = resp.Scope
	}

	if err := m.store.Save(next); err != nil {
		return nil, domain.NewError(domain.KindAuth, domain.CodeTokenIO, "save refreshed token", err)
	}
	m.setRecord(next)

	m.logger.Info("access token refreshed", "expires_at", next.ExpiryTime())
	return next, nil
}

// Exchange trades a one-time authorization code for a refreshable record and
// persists it. A code that was already used or has expired yields
// EXCHANGE_EXPIRED.
func (m *Manager) Exchange(ctx context.Context, code string) (*Record, error) {
	code = NormalizeCode(code)

	resp, err := m.client.Exchange(ctx, code, m.cfg.RedirectURI)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			return nil, domain.NewError(domain.KindAuth, domain.CodeExchangeExpired,
				"authorization code expired or already used; authorize again", err)
		}
		return nil, domain.NewError(domain.KindAuth, domain.CodeExchangeFailed, "exchange authorization code", err)
	}
	if resp.RefreshToken == "" {
		return nil, domain.NewError(domain.KindAuth, domain.CodeExchangeFailed,
			"no refresh token returned; the grant must be requested with duration=permanent", nil)
	}

	rec := &Record{
		RefreshToken: resp.RefreshToken,
		AccessToken:  resp.AccessToken,
		ExpiresAt:    m.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UnixMilli(),
		Scope:        resp.Scope,
	}
	if err := m.store.Save(rec); err != nil {
		return nil, domain.NewError(domain.KindAuth, domain.CodeTokenIO, "save exchanged token", err)
	}

	m.setRecord(rec)

	m.logger.Info("authorization code exchanged", "scope", rec.Scope, "expires_at", rec.ExpiryTime())
	return rec, nil
}

// Status reports the credential state without calling the token endpoint.
func (m *Manager) Status() (Status, error) {
	m.mu.Lock()
	rec := m.record
	m.mu.Unlock()

	if rec == nil {
		loaded, err := m.store.Load()
		if err != nil {
			return Status{}, domain.NewError(domain.KindAuth, domain.CodeTokenIO, "load token record", err)
		}
		if loaded == nil {
			return Status{}, nil
		}
		rec = loaded
	}

	return Status{
		HasRecord: true,
		Valid:     rec.Usable(m.now(), m.cfg.RefreshBuffer),
		ExpiresAt: rec.ExpiryTime(),
		Scope:     rec.Scope,
	}, nil
}

func (m *Manager) setRecord(rec *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.record = &cp
	m.terminalErr = nil
	m.revoked = ""
}

// LooksLikeAuthCode guesses whether v is a one-time authorization code pasted
// from a redirect URL rather than a refresh token. Codes copied from the
// browser carry the "#_" fragment Reddit appends; refresh tokens never contain
// '#'. This is a heuristic, not a guarantee.
func LooksLikeAuthCode(v string) bool {
	return len(v) >= 20 && strings.Contains(v, "#")
}

// NormalizeCode strips a trailing URL fragment and surrounding whitespace.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '#'); i >= 0 {
		code = code[:i]
	}
	return code
}
