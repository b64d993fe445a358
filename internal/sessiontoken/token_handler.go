package sessiontoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agor-live/agor/internal/definitions"
	"github.com/tdeslauriers/carapace/pkg/connect"
	"github.com/tdeslauriers/carapace/pkg/jwt"
	"github.com/tdeslauriers/carapace/pkg/validate"
)

// authorization scopes required to mint or revoke session tokens
var requiredScopes = []string{"w:agor:*", "w:agor:sessions:tokens:*"}

// Handler provides methods for handling session capability token operations.
type Handler interface {

	// HandleIssue handles a request to mint a capability token for an executor.
	HandleIssue(w http.ResponseWriter, r *http.Request)

	// HandleIntrospect handles a registry-level validation request for a token.
	HandleIntrospect(w http.ResponseWriter, r *http.Request)

	// HandleRevoke handles revocation of a single token or a whole session.
	HandleRevoke(w http.ResponseWriter, r *http.Request)
}

// NewHandler creates a new session token handler interface abstracting a
// concrete implementation.
func NewHandler(s Service, s2s jwt.Verifier) Handler {
	return &handler{
		service: s,
		s2s:     s2s,

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageSessionToken)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentTokenHandler)),
	}
}

var _ Handler = (*handler)(nil)

// handler is a concrete implementation of the Handler interface.
type handler struct {
	service Service
	s2s     jwt.Verifier

	logger *slog.Logger
}

// IssueCmd is the request body for a token issuance request.
type IssueCmd struct {
	SessionId string `json:"session_id"`
	UserId    string `json:"user_id"`
}

// Validate checks the issuance request's identifier formats.
func (cmd IssueCmd) Validate() error {

	if !validate.IsValidUuid(cmd.SessionId) {
		return fmt.Errorf("invalid session id format")
	}

	if !validate.IsValidUuid(cmd.UserId) {
		return fmt.Errorf("invalid user id format")
	}

	return nil
}

// IssueResponse carries the signed token back to the caller.
type IssueResponse struct {
	Token     string `json:"token"`
	SessionId string `json:"session_id"`
	UserId    string `json:"user_id"`
}

// IntrospectCmd is the request body for a token validation request.
type IntrospectCmd struct {
	Token string `json:"token"`
}

// RevokeCmd is the request body for a revocation request. Token revokes a
// single token; SessionId revokes every token of a session.
type RevokeCmd struct {
	Token     string `json:"token,omitempty"`
	SessionId string `json:"session_id,omitempty"`
}

// RevokeResponse reports how many tokens a revocation removed.
type RevokeResponse struct {
	Revoked int `json:"revoked"`
}

// HandleIssue is the concrete implementation of the interface method which
// handles a request to mint a capability token.
func (h *handler) HandleIssue(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed on /sessions/tokens endpoint", http.StatusMethodNotAllowed)
		return
	}

	// check service authorization
	svcToken := r.Header.Get("Service-Authorization")
	if _, err := h.s2s.BuildAuthorized(requiredScopes, svcToken); err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate s2s token: %v", err.Error()))
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}

	var cmd IssueCmd
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

	if err := cmd.Validate(); err != nil {
		h.logger.Error("failed to validate issue token cmd", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    err.Error(),
		}
		e.SendJsonErr(w)
		return
	}

	token, err := h.service.Issue(cmd.SessionId, cmd.UserId)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to issue session token: %v", err.Error()))

		// a missing signing secret is a server misconfiguration, not an auth failure
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to issue session token",
		}
		e.SendJsonErr(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(IssueResponse{
		Token:     token,
		SessionId: cmd.SessionId,
		UserId:    cmd.UserId,
	}); err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode issue token json response: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode issue token json response",
		}
		e.SendJsonErr(w)
		return
	}
}

// HandleIntrospect is the concrete implementation of the interface method
// which handles a registry-level validation request for a token.
func (h *handler) HandleIntrospect(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed on /sessions/tokens/introspect endpoint", http.StatusMethodNotAllowed)
		return
	}

	svcToken := r.Header.Get("Service-Authorization")
	if _, err := h.s2s.BuildAuthorized(requiredScopes, svcToken); err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate s2s token: %v", err.Error()))
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}

	var cmd IntrospectCmd
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

	info, err := h.service.Validate(cmd.Token)
	if err != nil {
		// absent, expired, exhausted, and revoked all look identical here
		if errors.Is(err, ErrTokenNotFound) {
			e := connect.ErrorHttp{
				StatusCode: http.StatusUnauthorized,
				Message:    err.Error(),
			}
			e.SendJsonErr(w)
			return
		}

		h.logger.Error(fmt.Sprintf("failed to validate session token: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to validate session token",
		}
		e.SendJsonErr(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode session info json response: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode session info json response",
		}
		e.SendJsonErr(w)
		return
	}
}

// HandleRevoke is the concrete implementation of the interface method which
// handles revocation of a single token or every token of a session.
func (h *handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed on /sessions/tokens/revoke endpoint", http.StatusMethodNotAllowed)
		return
	}

	svcToken := r.Header.Get("Service-Authorization")
	if _, err := h.s2s.BuildAuthorized(requiredScopes, svcToken); err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate s2s token: %v", err.Error()))
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}

	var cmd RevokeCmd
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

	if cmd.Token == "" && cmd.SessionId == "" {
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "token or session_id is required",
		}
		e.SendJsonErr(w)
		return
	}

	revoked := 0
	if cmd.Token != "" {
		h.service.Revoke(cmd.Token)
		revoked = 1
	}
	if cmd.SessionId != "" {
		revoked += h.service.RevokeSession(cmd.SessionId)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(RevokeResponse{Revoked: revoked}); err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode revoke json response: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode revoke json response",
		}
		e.SendJsonErr(w)
		return
	}
}
