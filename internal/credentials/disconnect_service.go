package credentials

import (
	"fmt"
	"log/slog"

	"github.com/agor-live/agor/internal/definitions"
)

// CoreCacheClear clears the lower-level core library's credential cache. The
// core cache has no per-server key, so clearing is always global: every
// cached authorization exchange is dropped, not just the disconnecting
// server's.
type CoreCacheClear func()

// DisconnectService tears down a connected MCP server credential across the
// three tiers that may hold it: the durable per-user token row, the
// daemon-tier origin cache, and the core library cache, then scrubs any
// shared token out of the server record's auth bag.
type DisconnectService interface {

	// Disconnect drives the credential state for (user, server) toward fully
	// absent. Presence or absence of a per-user token, a url, or a shared
	// token are all equally successful outcomes; only a collaborator failure
	// mid-teardown produces a failure result.
	Disconnect(userId, mcpServerId string) DisconnectResult
}

// NewDisconnectService creates a new DisconnectService interface instance
// returning a pointer to the underlying concrete implementation.
func NewDisconnectService(repo CredentialsRepository, cache TokenCache, clearCore CoreCacheClear) DisconnectService {
	return &disconnectService{
		repo:      repo,
		cache:     cache,
		clearCore: clearCore,

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageCredentials)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentDisconnectService)),
	}
}

var _ DisconnectService = (*disconnectService)(nil)

// disconnectService is the concrete implementation of the DisconnectService
// interface.
type disconnectService struct {
	repo      CredentialsRepository
	cache     TokenCache
	clearCore CoreCacheClear

	logger *slog.Logger
}

// Disconnect is the concrete implementation of the interface method which
// removes a connected credential across durable storage and both cache tiers.
// Each step tolerates the previous step's no-op outcome.
func (s *disconnectService) Disconnect(userId, mcpServerId string) DisconnectResult {

	// validation failures return before any side effect
	if userId == "" {
		return DisconnectResult{Success: false, Error: "User not authenticated"}
	}

	if mcpServerId == "" {
		return DisconnectResult{Success: false, Error: "Server ID is required"}
	}

	// drop the durable per-user token; record whether one existed but do not
	// branch on it, absence is an equally valid starting state
	deleted, err := s.repo.DeleteUserToken(userId, mcpServerId)
	if err != nil {
		s.logger.Error(fmt.Sprintf("failed to delete user token for mcp server %s: %v", mcpServerId, err))
		return DisconnectResult{Success: false, Error: err.Error()}
	}

	server, err := s.repo.FindServer(mcpServerId)
	if err != nil {
		s.logger.Error(fmt.Sprintf("failed to look up mcp server %s: %v", mcpServerId, err))
		return DisconnectResult{Success: false, Error: err.Error()}
	}

	if server != nil && server.Url != "" {

		// an unparseable url skips the daemon-cache eviction, nothing more
		if origin := deriveOrigin(server.Url); origin != "" {
			s.cache.Evict(origin)
		}

		// the core cache has no per-server key, so the clear is global
		s.clearCore()
	}

	// scrub a shared token out of the auth bag, preserving every other field
	if server != nil && server.Auth != nil {
		if _, ok := server.Auth[authKeyAccessToken]; ok {

			auth := make(map[string]any, len(server.Auth))
			for k, v := range server.Auth {
				auth[k] = v
			}
			auth[authKeyAccessToken] = nil
			auth[authKeyAccessTokenExpiry] = nil

			if err := s.repo.UpdateServerAuth(mcpServerId, auth); err != nil {
				s.logger.Error(fmt.Sprintf("failed to scrub shared token for mcp server %s: %v", mcpServerId, err))
				return DisconnectResult{Success: false, Error: err.Error()}
			}
		}
	}

	s.logger.Info(fmt.Sprintf("disconnected mcp server %s for user %s (per-user token existed: %t)",
		mcpServerId, userId, deleted))

	return DisconnectResult{Success: true, Message: "Disconnected successfully"}
}
