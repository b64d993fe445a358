package credentials

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tdeslauriers/carapace/pkg/data"
)

// CredentialsRepository defines the durable-storage operations the disconnect
// coordinator depends on: per-user oauth token rows and MCP server records.
type CredentialsRepository interface {

	// DeleteUserToken removes the per-user oauth token for a (user, server)
	// pair and reports whether one existed. Absence is not an error.
	DeleteUserToken(userId, mcpServerId string) (bool, error)

	// FindServer retrieves an MCP server record with its decrypted auth bag.
	// Returns (nil, nil) when no record exists, so callers can treat absence
	// as a no-op rather than a failure.
	FindServer(mcpServerId string) (*McpServerRecord, error)

	// UpdateServerAuth persists a replacement auth bag for a server record,
	// encrypting it at rest.
	UpdateServerAuth(mcpServerId string, auth map[string]any) error
}

// NewCredentialsRepository creates a new instance of CredentialsRepository and
// returns the underlying concrete implementation.
func NewCredentialsRepository(sql *sql.DB, i data.Indexer, c data.Cryptor) CredentialsRepository {
	return &credentialsRepository{
		sql:     sql,
		indexer: i,
		cryptor: c,
	}
}

var _ CredentialsRepository = (*credentialsRepository)(nil)

// credentialsRepository is the concrete implementation of the
// CredentialsRepository interface. User identities are blind-indexed and the
// server auth bag is aes-gcm encrypted at rest.
type credentialsRepository struct {
	sql     *sql.DB
	indexer data.Indexer
	cryptor data.Cryptor
}

// DeleteUserToken removes the per-user oauth token for a (user, server) pair.
func (r *credentialsRepository) DeleteUserToken(userId, mcpServerId string) (bool, error) {

	// re-create the blind index for the user column lookup
	index, err := r.indexer.ObtainBlindIndex(userId)
	if err != nil {
		return false, fmt.Errorf("failed to create blind index for user token lookup: %v", err)
	}

	qry := `DELETE FROM mcp_user_token WHERE user_index = ? AND mcpserver_uuid = ?`
	result, err := r.sql.Exec(qry, index, mcpServerId)
	if err != nil {
		return false, fmt.Errorf("failed to delete user token for mcp server %s: %v", mcpServerId, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for user token delete: %v", err)
	}

	return affected > 0, nil
}

// FindServer retrieves an MCP server record with its decrypted auth bag.
func (r *credentialsRepository) FindServer(mcpServerId string) (*McpServerRecord, error) {

	qry := `
		SELECT
			uuid,
			name,
			url,
			auth,
			created_at
		FROM mcp_server WHERE uuid = ?`
	row, err := data.SelectOneRecord[mcpServerRow](r.sql, qry, mcpServerId)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve mcp server record %s: %v", mcpServerId, err)
	}

	record := &McpServerRecord{
		Id:        row.Uuid,
		Name:      row.Name,
		Url:       row.Url,
		CreatedAt: row.CreatedAt,
	}

	if row.Auth != "" {

		decrypted, err := r.cryptor.DecryptServiceData(row.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt auth bag for mcp server %s: %v", mcpServerId, err)
		}

		var auth map[string]any
		if err := json.Unmarshal(decrypted, &auth); err != nil {
			return nil, fmt.Errorf("failed to unmarshal auth bag for mcp server %s: %v", mcpServerId, err)
		}

		record.Auth = auth
	}

	return record, nil
}

// UpdateServerAuth persists a replacement auth bag for a server record.
func (r *credentialsRepository) UpdateServerAuth(mcpServerId string, auth map[string]any) error {

	marshaled, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal auth bag for mcp server %s: %v", mcpServerId, err)
	}

	encrypted, err := r.cryptor.EncryptServiceData(marshaled)
	if err != nil {
		return fmt.Errorf("failed to encrypt auth bag for mcp server %s: %v", mcpServerId, err)
	}

	qry := `UPDATE mcp_server SET auth = ? WHERE uuid = ?`
	if _, err := r.sql.Exec(qry, encrypted, mcpServerId); err != nil {
		return fmt.Errorf("failed to update auth bag for mcp server %s: %v", mcpServerId, err)
	}

	return nil
}
