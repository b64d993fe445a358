package credentials

import (
	"github.com/tdeslauriers/carapace/pkg/data"
)

// auth bag keys owned by this package. Everything else in the bag (client id,
// scopes, registration metadata) belongs to the connection flow and must pass
// through disconnection untouched.
const (
	authKeyAccessToken       = "access_token"
	authKeyAccessTokenExpiry = "access_token_expires_at"
)

// McpServerRecord is one configured MCP server connection with its decrypted
// auth bag. The bag may hold a shared access token usable by every operator,
// alongside unrelated fields that must be preserved on disconnect.
type McpServerRecord struct {
	Id        string          `json:"id"`
	Name      string          `json:"name"`
	Url       string          `json:"url"`
	Auth      map[string]any  `json:"auth,omitempty"`
	CreatedAt data.CustomTime `json:"created_at"`
}

// mcpServerRow is the database shape of an MCP server record. The auth bag is
// stored as aes-gcm encrypted json.
type mcpServerRow struct {
	Uuid      string          `db:"uuid"`
	Name      string          `db:"name"`
	Url       string          `db:"url"`
	Auth      string          `db:"auth"`
	CreatedAt data.CustomTime `db:"created_at"`
}

// DisconnectResult is the single outcome shape of a disconnect. Disconnect is
// a convergence operation, driving credential state toward fully absent:
// "nothing to disconnect" and "disconnected" are the same success, so callers
// never have to tell them apart.
type DisconnectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
