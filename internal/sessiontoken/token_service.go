package sessiontoken

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agor-live/agor/internal/definitions"
	"github.com/golang-jwt/jwt/v5"
)

// Service issues, validates, revokes, and garbage-collects session-scoped
// capability tokens for executor processes. The signed artifact is an HS256
// jwt over a secret shared with the daemon's general authentication layer,
// so it is independently verifiable without consulting the registry; the
// registry adds revocation and use-count enforcement on top.
//
// The registry lives in this process only. Revocation takes effect in the
// issuing process; a shared store would have to be substituted behind this
// interface for a multi-daemon deployment.
type Service interface {

	// Issue mints and registers a new capability token for an executor acting
	// as the given user within the given session.
	Issue(sessionId, userId string) (string, error)

	// Validate checks the registry entry for a token, enforcing revocation,
	// expiry, and the use-count bound, and increments the use count on
	// success. Signature and claim verification is the general auth layer's
	// job and is not repeated here. Returns ErrTokenNotFound for absent,
	// expired, or exhausted tokens.
	Validate(token string) (*SessionInfo, error)

	// Revoke removes a token from the registry. Revoking an absent token is a
	// no-op, not an error.
	Revoke(token string)

	// RevokeSession removes every token belonging to the given session and
	// returns how many were removed.
	RevokeSession(sessionId string) int

	// ActiveCount returns the number of registered tokens, for observability.
	ActiveCount() int

	// SweepExpired evicts every expired registry entry and returns the count.
	// This bounds memory only: Validate's lazy eviction is authoritative, so
	// correctness never depends on the sweep having run.
	SweepExpired() int
}

// Option configures a Service at construction.
type Option func(*service)

// WithTtl overrides the default 24h token lifetime.
func WithTtl(ttl time.Duration) Option {
	return func(s *service) { s.ttl = ttl }
}

// WithMaxUses bounds how many validations each token allows. UnlimitedUses
// (the default) disables the bound.
func WithMaxUses(n int) Option {
	return func(s *service) { s.maxUses = n }
}

// WithClock injects the time source, for deterministic expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new session token Service interface instance returning
// a pointer to the underlying concrete implementation. The registry is owned
// by the returned instance: independent instances never share state.
func NewService(secret []byte, opts ...Option) Service {

	s := &service{
		secret:  secret,
		ttl:     DefaultTtl,
		maxUses: UnlimitedUses,
		now:     time.Now,
		tokens:  make(map[string]*SessionToken),

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageSessionToken)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentTokenService)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ Service = (*service)(nil)

// service is the concrete implementation of the Service interface. All
// registry mutation happens under mu, so back-to-back calls observe a strict
// total order and no caller can see a half-updated record.
type service struct {
	secret  []byte
	ttl     time.Duration
	maxUses int
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]*SessionToken

	logger *slog.Logger
}

// Issue is the concrete implementation of the interface method which mints a
// signed capability token and inserts a fresh registry record.
func (s *service) Issue(sessionId, userId string) (string, error) {

	// issuance before the secret is injected is a configuration error
	if len(s.secret) == 0 {
		return "", ErrNoSigningSecret
	}

	issued := s.now().UTC()
	expires := issued.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":       userId,
		"sessionId": sessionId,
		"iat":       issued.Unix(),
		"exp":       expires.Unix(),
		"aud":       TokenAudience,
		"iss":       TokenIssuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token for session %s: %v", sessionId, err)
	}

	s.mu.Lock()
	s.tokens[signed] = &SessionToken{
		SessionId: sessionId,
		UserId:    userId,
		CreatedAt: issued,
		ExpiresAt: expires,
		MaxUses:   s.maxUses,
		UseCount:  0,
	}
	s.mu.Unlock()

	s.logger.Info(fmt.Sprintf("issued session token for session %s, user %s, expires %s",
		sessionId, userId, expires.Format(time.RFC3339)))

	return signed, nil
}

// Validate is the concrete implementation of the interface method which
// enforces revocation, lazy expiry, and the use-count bound for a token.
func (s *service) Validate(token string) (*SessionInfo, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}

	// expiry is enforced here, lazily; the periodic sweep only bounds memory
	if s.now().UTC().After(record.ExpiresAt) {
		delete(s.tokens, token)
		return nil, ErrTokenNotFound
	}

	if record.MaxUses != UnlimitedUses && record.UseCount >= record.MaxUses {
		delete(s.tokens, token)
		return nil, ErrTokenNotFound
	}

	record.UseCount++

	return &SessionInfo{
		SessionId: record.SessionId,
		UserId:    record.UserId,
	}, nil
}

// Revoke is the concrete implementation of the interface method which removes
// a token from the registry unconditionally.
func (s *service) Revoke(token string) {

	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// RevokeSession is the concrete implementation of the interface method which
// removes every token issued for the given session.
func (s *service) RevokeSession(sessionId string) int {

	s.mu.Lock()
	count := 0
	for token, record := range s.tokens {
		if record.SessionId == sessionId {
			delete(s.tokens, token)
			count++
		}
	}
	s.mu.Unlock()

	if count > 0 {
		s.logger.Info(fmt.Sprintf("revoked %d session token(s) for session %s", count, sessionId))
	}

	return count
}

// ActiveCount is the concrete implementation of the interface method which
// returns the registry size.
func (s *service) ActiveCount() int {

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tokens)
}

// SweepExpired is the concrete implementation of the interface method which
// evicts every expired registry entry.
func (s *service) SweepExpired() int {

	now := s.now().UTC()

	s.mu.Lock()
	evicted := 0
	for token, record := range s.tokens {
		if now.After(record.ExpiresAt) {
			delete(s.tokens, token)
			evicted++
		}
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Info(fmt.Sprintf("swept %d expired session token(s)", evicted))
	}

	return evicted
}
