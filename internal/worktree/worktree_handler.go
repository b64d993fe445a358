package worktree

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agor-live/agor/internal/definitions"
	"github.com/tdeslauriers/carapace/pkg/connect"
	"github.com/tdeslauriers/carapace/pkg/jwt"
)

// authorization scopes required to manage worktree groups
var requiredScopes = []string{"w:agor:*", "w:agor:worktrees:*"}

// Handler provides methods for handling worktree group provisioning requests.
type Handler interface {

	// HandleGroups handles provisioning (POST) and teardown (DELETE) requests
	// for a worktree's shared OS group, responding with the command plan the
	// caller must execute.
	HandleGroups(w http.ResponseWriter, r *http.Request)
}

// NewHandler creates a new worktree handler interface abstracting a concrete implementation.
func NewHandler(s GroupService, s2s, iam jwt.Verifier) Handler {
	return &handler{
		service: s,
		s2s:     s2s,
		iam:     iam,

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageWorktree)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentWorktreeHandler)),
	}
}

var _ Handler = (*handler)(nil)

// handler is a concrete implementation of the Handler interface.
type handler struct {
	service GroupService
	s2s     jwt.Verifier
	iam     jwt.Verifier

	logger *slog.Logger
}

// ProvisionCmd is the request body for a worktree group provisioning request.
type ProvisionCmd struct {
	WorktreeId  string      `json:"worktree_id"`
	Path        string      `json:"path"`
	AccessLevel AccessLevel `json:"access_level,omitempty"`
}

// TeardownCmd is the request body for a worktree group teardown request.
type TeardownCmd struct {
	WorktreeId string `json:"worktree_id"`
}

// HandleGroups is the concrete implementation of the interface method which
// routes worktree group requests by http method.
func (h *handler) HandleGroups(w http.ResponseWriter, r *http.Request) {

	switch r.Method {
	case http.MethodPost:
		h.handleProvision(w, r)
	case http.MethodDelete:
		h.handleTeardown(w, r)
	default:
		http.Error(w, "method not allowed on /worktrees/groups endpoint", http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleProvision(w http.ResponseWriter, r *http.Request) {

	// check service authorization
	svcToken := r.Header.Get("Service-Authorization")
	if _, err := h.s2s.BuildAuthorized(requiredScopes, svcToken); err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate s2s token: %v", err.Error()))
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}

	// check user access token
	userToken := r.Header.Get("Authorization")
	authorized, err := h.iam.BuildAuthorized(requiredScopes, userToken)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate user token: %v", err.Error()))
		connect.RespondAuthFailure(connect.User, err, w)
		return
	}

	// decode request body
	var cmd ProvisionCmd
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

	plan, err := h.service.ProvisionCommands(cmd.WorktreeId, cmd.Path, cmd.AccessLevel)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to build provisioning plan: %v", err.Error()))
		h.respondServiceError(err, w)
		return
	}

	h.logger.Info(fmt.Sprintf("provisioning plan for worktree %s built for user '%s'", plan.WorktreeId, authorized.Claims.Subject))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(plan); err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode provisioning plan json response: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode provisioning plan json response",
		}
		e.SendJsonErr(w)
		return
	}
}

func (h *handler) handleTeardown(w http.ResponseWriter, r *http.Request) {

	// check service authorization
	svcToken := r.Header.Get("Service-Authorization")
	if _, err := h.s2s.BuildAuthorized(requiredScopes, svcToken); err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate s2s token: %v", err.Error()))
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}

	// check user access token
	userToken := r.Header.Get("Authorization")
	authorized, err := h.iam.BuildAuthorized(requiredScopes, userToken)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to validate user token: %v", err.Error()))
		connect.RespondAuthFailure(connect.User, err, w)
		return
	}

	var cmd TeardownCmd
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

	plan, err := h.service.TeardownCommands(cmd.WorktreeId)
	if err != nil {
		h.logger.Error(fmt.Sprintf("failed to build teardown plan: %v", err.Error()))
		h.respondServiceError(err, w)
		return
	}

	h.logger.Info(fmt.Sprintf("teardown plan for worktree %s built for user '%s'", plan.WorktreeId, authorized.Claims.Subject))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(plan); err != nil {
		h.logger.Error(fmt.Sprintf("failed to encode teardown plan json response: %v", err.Error()))
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode teardown plan json response",
		}
		e.SendJsonErr(w)
		return
	}
}

// respondServiceError is a helper method to respond with error messages and the
// correct http code if the underlying service fails.
func (h *handler) respondServiceError(err error, w http.ResponseWriter) {

	switch {
	case strings.Contains(err.Error(), "invalid"), strings.Contains(err.Error(), "required"):
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    err.Error(),
		}
		e.SendJsonErr(w)
		return
	default:
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "internal server error",
		}
		e.SendJsonErr(w)
	}
}
