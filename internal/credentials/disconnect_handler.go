package credentials

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agor-live/agor/internal/definitions"
	"github.com/tdeslauriers/carapace/pkg/connect"
	"github.com/tdeslauriers/carapace/pkg/jwt"
)

// authorization scopes required to disconnect mcp server credentials
var requiredScopes = []string{"w:agor:*", "w:agor:mcp:credentials:*"}

// Handler provides methods for handling MCP credential operations.
type Handler interface {

	// HandleDisconnect handles a request to disconnect a user's credential
	// for an MCP server.
	HandleDisconnect(w http.ResponseWriter, r *http.Request)
}

// NewHandler creates a new credentials handler interface abstracting a
// concrete implementation.
func NewHandler(s DisconnectService, s2s, iam jwt.Verifier) Handler {
	return &handler{
		service: s,
		s2s:     s2s,
		iam:     iam,

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageCredentials)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentCredentialsHandler)),
	}
}

var _ Handler = (*handler)(nil)

// handler is a concrete implementation of the Handler interface.
type handler struct {
	service DisconnectService
	s2s     jwt.Verifier
	iam     jwt.Verifier

	logger *slog.Logger
}

// DisconnectCmd is the request body for a credential disconnect request. The
// acting user is taken from the verified access token, not the body.
type DisconnectCmd struct {
	McpServerId string `json:"mcp_server_id"`
}

// HandleDisconnect is the concrete implementation of the interface method
// which handles a request to disconnect an MCP server credential.
func (h *handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed on /mcp/credentials/disconnect endpoint", http.StatusMethodNotAllowed)
		return
	}

	// check service authorization
	svcToken := r.Header.Get("Service-Authorization")
	if _, err := h.s2s.BuildAuthorized(requiredScopes, svcToken); err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate s2s token: %v", err.Error()))
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}

	// check user access token; the subject becomes the disconnecting user
	userToken := r.Header.Get("Authorization")
	authorized, err := h.iam.BuildAuthorized(requiredScopes, userToken)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate user token: %v", err.Error()))
		connect.RespondAuthFailure(connect.User, err, w)
		return
	}

	var cmd DisconnectCmd
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		errMsg := fmt.Sprintf("failed to decode request body: %v", err)
		h.logger.Error(errMsg)
		e := connect.ErrorHttp{
			StatusCode: http.StatusBadRequest,
			Message:    errMsg,
		}
		e.SendJsonErr(w)
		return
	}

	result := h.service.Disconnect(authorized.Claims.Subject, cmd.McpServerId)

	status := http.StatusOK
	if !result.Success {
		// validation and collaborator failures share the result shape; only
		// the http code differs
		switch result.Error {
		case "User not authenticated":
			status = http.StatusUnauthorized
		case "Server ID is required":
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode disconnect json response: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode disconnect json response",
		}
		e.SendJsonErr(w)
		return
	}
}
