package sessiontoken

import (
	"errors"
	"time"
)

const (
	// TokenAudience is the fixed audience claim identifying this deployment.
	TokenAudience = "https://agor.live"

	// TokenIssuer is the fixed issuer claim, the deployment's short name.
	TokenIssuer = "agor"

	// DefaultTtl is how long an issued token is valid unless configured otherwise.
	DefaultTtl = 24 * time.Hour

	// UnlimitedUses is the max-use sentinel meaning no use-count bound.
	UnlimitedUses = -1

	// DefaultSweepInterval is the default cadence of the expired-token sweep.
	DefaultSweepInterval = time.Hour
)

// ErrNoSigningSecret signals issuance was attempted before the signing secret
// was injected. This is a configuration error, distinct from any
// authorization failure, and must not be downgraded to "not authenticated".
var ErrNoSigningSecret = errors.New("session token signing secret is not set")

// ErrTokenNotFound is returned by Validate for tokens that are absent from
// the registry. Revoked and never-issued tokens are indistinguishable through
// this error by design: a revoked token must behave exactly as if it never
// existed, so no oracle separates the two.
var ErrTokenNotFound = errors.New("session token not found")

// SessionToken is the registry record backing one issued capability token.
type SessionToken struct {
	SessionId string
	UserId    string
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxUses   int
	UseCount  int
}

// SessionInfo identifies the session and user a validated token acts for.
type SessionInfo struct {
	SessionId string `json:"session_id"`
	UserId    string `json:"user_id"`
}
